// Package canvas reads group sets from the Canvas LMS REST API.
package canvas

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"coursesync/internal/roster"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Client reads Canvas groups. The transport's base URL includes /api/v1.
type Client struct {
	api   *rest.Client
	token string
}

// New creates a client. defaultToken is used for courses without their own token.
// A nil api yields a client that reports Canvas as unconfigured.
func New(api *rest.Client, defaultToken string) *Client {
	return &Client{api: api, token: defaultToken}
}

type group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type user struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	LoginID string `json:"login_id"`
}

// email prefers the primary email and falls back to an email-shaped login.
func (u user) email() string {
	if u.Email != "" {
		return u.Email
	}
	if strings.Contains(u.LoginID, "@") {
		return u.LoginID
	}
	return ""
}

// ListGroups returns every group of the group set with its member emails.
func (c *Client) ListGroups(ctx context.Context, course roster.Course, groupSetID string) ([]gateway.CanvasGroup, error) {
	courseID := strconv.FormatInt(course.ID, 10)
	if !course.HasCanvas() {
		return nil, apperrors.Linkage("course", courseID, fmt.Sprintf("course %s has no linked Canvas course", course.Name))
	}
	if c.api == nil {
		return nil, apperrors.Linkage("course", courseID, "Canvas is not configured")
	}
	token := course.CanvasToken
	if token == "" {
		token = c.token
	}
	if token == "" {
		return nil, apperrors.Linkage("course", courseID, fmt.Sprintf("course %s has no Canvas API token", course.Name))
	}

	path := fmt.Sprintf("group_categories/%s/groups?per_page=100", url.PathEscape(groupSetID))
	groups, err := rest.GetAll[group](ctx, c.api, path, token)
	if err != nil {
		return nil, fmt.Errorf("listing groups of group set %s: %w", groupSetID, err)
	}

	result := make([]gateway.CanvasGroup, 0, len(groups))
	for _, g := range groups {
		path := fmt.Sprintf("groups/%d/users?per_page=100&include[]=email", g.ID)
		users, err := rest.GetAll[user](ctx, c.api, path, token)
		if err != nil {
			return nil, fmt.Errorf("listing members of group %q: %w", g.Name, err)
		}
		emails := make([]string, 0, len(users))
		for _, u := range users {
			if e := u.email(); e != "" {
				emails = append(emails, e)
			}
		}
		result = append(result, gateway.CanvasGroup{ID: g.ID, Name: g.Name, MemberEmails: emails})
	}
	return result, nil
}

var _ gateway.Canvas = (*Client)(nil)
