// Package github implements the organization, team and repository
// gateways and the installation token issuer against the GitHub REST API.
package github

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"fmt"
	"net/http"
	"net/url"
)

// APIVersion is sent as X-GitHub-Api-Version.
const APIVersion = "2022-11-28"

// Client talks to one GitHub (or GitHub Enterprise) API root.
type Client struct {
	api *rest.Client
}

// New creates a client on top of a configured transport.
func New(api *rest.Client) *Client {
	return &Client{api: api}
}

// orgID returns the organization's numeric id, looking it up when the
// course record does not carry it.
func (c *Client) orgID(ctx context.Context, org gateway.Org) (int64, error) {
	if org.ID != 0 {
		return org.ID, nil
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodGet, Path: "orgs/" + url.PathEscape(org.Name), Token: org.Token}, &out); err != nil {
		return 0, fmt.Errorf("looking up organization %s: %w", org.Name, err)
	}
	return out.ID, nil
}

var (
	_ gateway.OrgMembers   = (*Client)(nil)
	_ gateway.Teams        = (*Client)(nil)
	_ gateway.Repositories = (*Client)(nil)
)
