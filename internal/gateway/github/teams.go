package github

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"coursesync/internal/roster"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type team struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

type teamMembership struct {
	Role  string `json:"role"`
	State string `json:"state"`
}

// Slug approximates the slug GitHub derives from a team name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// FindOrCreateTeam looks the team up by slug and creates it on 404.
func (c *Client) FindOrCreateTeam(ctx context.Context, org gateway.Org, name string) (int64, error) {
	var t team
	path := fmt.Sprintf("orgs/%s/teams/%s", url.PathEscape(org.Name), url.PathEscape(Slug(name)))
	_, err := c.api.Do(ctx, rest.Request{Method: http.MethodGet, Path: path, Token: org.Token}, &t)
	if err == nil {
		return t.ID, nil
	}
	if !rest.IsNotFound(err) {
		return 0, fmt.Errorf("finding team %q: %w", name, err)
	}

	body := map[string]string{"name": name, "privacy": "closed"}
	path = fmt.Sprintf("orgs/%s/teams", url.PathEscape(org.Name))
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodPost, Path: path, Token: org.Token, Body: body}, &t); err != nil {
		return 0, fmt.Errorf("creating team %q: %w", name, err)
	}
	return t.ID, nil
}

func (c *Client) membershipPath(ctx context.Context, org gateway.Org, teamID int64, login string) (string, error) {
	id, err := c.orgID(ctx, org)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("organizations/%d/team/%d/memberships/%s", id, teamID, url.PathEscape(login)), nil
}

const membershipPending = "pending"

// status maps a team membership to a TeamStatus. A pending membership waits
// on an unaccepted organization invitation, so the login is not on the team yet.
func (m teamMembership) status() roster.TeamStatus {
	if m.State == membershipPending {
		return roster.TeamStatusNotOrgMember
	}
	if m.Role == gateway.RoleMaintainer {
		return roster.TeamStatusTeamMaintainer
	}
	return roster.TeamStatusTeamMember
}

// MembershipStatus maps the team membership to a TeamStatus; found is false on 404.
func (c *Client) MembershipStatus(ctx context.Context, org gateway.Org, login string, teamID int64) (roster.TeamStatus, bool, error) {
	path, err := c.membershipPath(ctx, org, teamID, login)
	if err != nil {
		return "", false, err
	}
	var m teamMembership
	_, err = c.api.Do(ctx, rest.Request{Method: http.MethodGet, Path: path, Token: org.Token}, &m)
	if rest.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading team membership of %s: %w", login, err)
	}
	return m.status(), true, nil
}

// AddMember adds or updates the login's team membership with the given role.
func (c *Client) AddMember(ctx context.Context, org gateway.Org, login string, teamID int64, role string) (roster.TeamStatus, error) {
	path, err := c.membershipPath(ctx, org, teamID, login)
	if err != nil {
		return "", err
	}
	var m teamMembership
	_, err = c.api.Do(ctx, rest.Request{Method: http.MethodPut, Path: path, Token: org.Token, Body: map[string]string{"role": role}}, &m)
	if err != nil {
		return "", fmt.Errorf("adding %s to team %d: %w", login, teamID, err)
	}
	return m.status(), nil
}

// RemoveMember removes the login from the team.
func (c *Client) RemoveMember(ctx context.Context, org gateway.Org, login string, teamID int64) error {
	path, err := c.membershipPath(ctx, org, teamID, login)
	if err != nil {
		return err
	}
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodDelete, Path: path, Token: org.Token}, nil); err != nil {
		return fmt.Errorf("removing %s from team %d: %w", login, teamID, err)
	}
	return nil
}

// DeleteTeam deletes the team.
func (c *Client) DeleteTeam(ctx context.Context, org gateway.Org, teamID int64) error {
	id, err := c.orgID(ctx, org)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("organizations/%d/team/%d", id, teamID)
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodDelete, Path: path, Token: org.Token}, nil); err != nil {
		return fmt.Errorf("deleting team %d: %w", teamID, err)
	}
	return nil
}
