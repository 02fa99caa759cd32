package github

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"fmt"
	"net/http"
	"net/url"
)

// ListMembers returns every member of the organization, admins included.
func (c *Client) ListMembers(ctx context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	return c.listMembers(ctx, org, "all")
}

// ListAdmins returns the organization owners.
func (c *Client) ListAdmins(ctx context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	return c.listMembers(ctx, org, "admin")
}

func (c *Client) listMembers(ctx context.Context, org gateway.Org, role string) ([]gateway.RemoteIdentity, error) {
	path := fmt.Sprintf("orgs/%s/members?role=%s&per_page=100", url.PathEscape(org.Name), role)
	members, err := rest.GetAll[gateway.RemoteIdentity](ctx, c.api, path, org.Token)
	if err != nil {
		return nil, fmt.Errorf("listing %s members of %s: %w", role, org.Name, err)
	}
	return members, nil
}

type invitation struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

// ListInvitees returns the accounts with a pending invitation. Invitation
// objects carry the invitation id, not the account id, so each login is
// resolved; email-only invitations and deleted accounts are skipped.
func (c *Client) ListInvitees(ctx context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	path := fmt.Sprintf("orgs/%s/invitations?per_page=100", url.PathEscape(org.Name))
	invitations, err := rest.GetAll[invitation](ctx, c.api, path, org.Token)
	if err != nil {
		return nil, fmt.Errorf("listing invitations of %s: %w", org.Name, err)
	}

	invitees := make([]gateway.RemoteIdentity, 0, len(invitations))
	for _, inv := range invitations {
		if inv.Login == "" {
			continue
		}
		var user gateway.RemoteIdentity
		_, err := c.api.Do(ctx, rest.Request{Method: http.MethodGet, Path: "users/" + url.PathEscape(inv.Login), Token: org.Token}, &user)
		if rest.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving invitee %s: %w", inv.Login, err)
		}
		invitees = append(invitees, user)
	}
	return invitees, nil
}

// Invite sends an organization invitation to the account.
func (c *Client) Invite(ctx context.Context, org gateway.Org, externalID int64) error {
	body := map[string]any{"invitee_id": externalID, "role": "direct_member"}
	path := fmt.Sprintf("orgs/%s/invitations", url.PathEscape(org.Name))
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodPost, Path: path, Token: org.Token, Body: body}, nil); err != nil {
		return fmt.Errorf("inviting user %d to %s: %w", externalID, org.Name, err)
	}
	return nil
}

// Remove drops the login's membership or pending invitation.
func (c *Client) Remove(ctx context.Context, org gateway.Org, login string) error {
	path := fmt.Sprintf("orgs/%s/memberships/%s", url.PathEscape(org.Name), url.PathEscape(login))
	if _, err := c.api.Do(ctx, rest.Request{Method: http.MethodDelete, Path: path, Token: org.Token}, nil); err != nil {
		return fmt.Errorf("removing %s from %s: %w", login, org.Name, err)
	}
	return nil
}
