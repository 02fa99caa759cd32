package github

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CreateRepository creates an organization repository. A 422 reporting
// that the name exists is not an error; created is false then.
func (c *Client) CreateRepository(ctx context.Context, org gateway.Org, name string, private bool) (bool, error) {
	body := map[string]any{"name": name, "private": private}
	path := fmt.Sprintf("orgs/%s/repos", url.PathEscape(org.Name))
	_, err := c.api.Do(ctx, rest.Request{Method: http.MethodPost, Path: path, Token: org.Token, Body: body}, nil)
	if err == nil {
		return true, nil
	}
	if rest.StatusCode(err) == http.StatusUnprocessableEntity && strings.Contains(err.Error(), "already exists") {
		return false, nil
	}
	return false, fmt.Errorf("creating repository %s/%s: %w", org.Name, name, err)
}

// AddCollaborator grants the login a permission (pull, triage, push, maintain, admin) on the repository.
func (c *Client) AddCollaborator(ctx context.Context, org gateway.Org, repo, login, permission string) error {
	path := fmt.Sprintf("repos/%s/%s/collaborators/%s", url.PathEscape(org.Name), url.PathEscape(repo), url.PathEscape(login))
	body := map[string]string{"permission": permission}
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodPut, Path: path, Token: org.Token, Body: body}, nil); err != nil {
		return fmt.Errorf("adding %s to %s/%s: %w", login, org.Name, repo, err)
	}
	return nil
}
