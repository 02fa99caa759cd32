// Package gateway declares the remote services the reconciliation tasks
// talk to: GitHub organization membership, teams and repositories, Canvas
// groups, and GitHub App installation tokens.
//
// Every call is blocking and may fail; callers decide at which scope a
// failure is caught.
package gateway

import (
	"context"
	"coursesync/internal/roster"
)

// RemoteIdentity is a GitHub account. Local records are matched by ID, never by login.
type RemoteIdentity struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Org addresses a GitHub organization with an installation token.
// Team endpoints are addressed by the numeric ID, everything else by Name.
type Org struct {
	Name  string
	ID    int64
	Token string
}

// OrgMembers manages organization membership.
type OrgMembers interface {
	ListMembers(ctx context.Context, org Org) ([]RemoteIdentity, error)
	ListAdmins(ctx context.Context, org Org) ([]RemoteIdentity, error)
	// ListInvitees returns accounts with a pending invitation.
	ListInvitees(ctx context.Context, org Org) ([]RemoteIdentity, error)
	Invite(ctx context.Context, org Org, externalID int64) error
	Remove(ctx context.Context, org Org, login string) error
}

// Team roles accepted by AddMember.
const (
	RoleMember     = "member"
	RoleMaintainer = "maintainer"
)

// Teams manages GitHub teams and team membership.
type Teams interface {
	// FindOrCreateTeam returns the id of the team with the given name,
	// creating it when it does not exist.
	FindOrCreateTeam(ctx context.Context, org Org, name string) (int64, error)
	// MembershipStatus reports the login's team status; found is false when
	// the login is not on the team.
	MembershipStatus(ctx context.Context, org Org, login string, teamID int64) (status roster.TeamStatus, found bool, err error)
	AddMember(ctx context.Context, org Org, login string, teamID int64, role string) (roster.TeamStatus, error)
	RemoveMember(ctx context.Context, org Org, login string, teamID int64) error
	DeleteTeam(ctx context.Context, org Org, teamID int64) error
}

// Repositories provisions organization repositories.
type Repositories interface {
	// CreateRepository creates the repository; created is false when it already existed.
	CreateRepository(ctx context.Context, org Org, name string, private bool) (created bool, err error)
	AddCollaborator(ctx context.Context, org Org, repo, login, permission string) error
}

// CanvasGroup is a Canvas group with the emails of its members.
type CanvasGroup struct {
	ID           int64
	Name         string
	MemberEmails []string
}

// Canvas reads Canvas group sets.
type Canvas interface {
	ListGroups(ctx context.Context, course roster.Course, groupSetID string) ([]CanvasGroup, error)
}

// TokenIssuer issues installation tokens for a course's organization.
type TokenIssuer interface {
	// InstallationToken fails with an apperrors.ErrLinkage error when the
	// course has no linked organization.
	InstallationToken(ctx context.Context, course roster.Course) (string, error)
}

// OrgFor returns the addressed organization of a linked course.
func OrgFor(ctx context.Context, tokens TokenIssuer, course roster.Course) (Org, error) {
	token, err := tokens.InstallationToken(ctx, course)
	if err != nil {
		return Org{}, err
	}
	return Org{Name: course.OrgName, ID: course.OrgID, Token: token}, nil
}
