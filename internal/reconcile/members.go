package reconcile

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
)

// precondition returns a message explaining why the GitHub side of a
// single team operation cannot run, or "" when it can.
func precondition(course roster.Course, team roster.Team, login string, needLogin bool) string {
	switch {
	case !course.HasOrg():
		return fmt.Sprintf("Course %s has no linked organization", course.Name)
	case team.GithubTeamID == 0:
		return fmt.Sprintf("Team %s has no GitHub team; push teams first", team.Name)
	case needLogin && login == "":
		return "Student has no GitHub login"
	}
	return ""
}

// AddTeamMember adds one linked student to the team's GitHub team and
// records the resulting status.
type AddTeamMember struct {
	Course  roster.Course
	Team    roster.Team
	Member  roster.TeamMember
	Role    string // defaults to member
	Members roster.TeamMemberRepository
	Tokens  gateway.TokenIssuer
	GitHub  gateway.Teams
}

func (AddTeamMember) Kind() string { return "add-team-member" }

func (t AddTeamMember) Run(ctx context.Context, jc *job.Context) error {
	login := t.Member.Login()
	if msg := precondition(t.Course, t.Team, login, true); msg != "" {
		jc.Log(msg)
		return nil
	}
	org, err := gateway.OrgFor(ctx, t.Tokens, t.Course)
	if err != nil {
		jc.Logf("Cannot reach organization: %v", err)
		return nil
	}

	role := t.Role
	if role == "" {
		role = gateway.RoleMember
	}
	status, err := t.GitHub.AddMember(ctx, org, login, t.Team.GithubTeamID, role)
	if err != nil {
		jc.Logf("Failed to add %s to team %s: %v", login, t.Team.Name, err)
		return nil
	}

	if err := t.Members.UpdateStatus(ctx, t.Member.ID, status); err != nil {
		return fmt.Errorf("saving team member status: %w", err)
	}
	jc.Logf("Added %s to team %s as %s", login, t.Team.Name, status)
	return nil
}

// RemoveTeamMember removes one student from the team's GitHub team and
// drops the local link. The local link is dropped even when the GitHub
// side is skipped or fails.
type RemoveTeamMember struct {
	Course  roster.Course
	Team    roster.Team
	Member  roster.TeamMember
	Members roster.TeamMemberRepository
	Tokens  gateway.TokenIssuer
	GitHub  gateway.Teams
}

func (RemoveTeamMember) Kind() string { return "remove-team-member" }

func (t RemoveTeamMember) Run(ctx context.Context, jc *job.Context) error {
	login := t.Member.Login()
	if msg := precondition(t.Course, t.Team, login, true); msg != "" {
		jc.Log(msg)
	} else if org, err := gateway.OrgFor(ctx, t.Tokens, t.Course); err != nil {
		jc.Logf("Cannot reach organization: %v", err)
	} else if err := t.GitHub.RemoveMember(ctx, org, login, t.Team.GithubTeamID); err != nil {
		jc.Logf("Failed to remove %s from team %s: %v", login, t.Team.Name, err)
	} else {
		jc.Logf("Removed %s from GitHub team %s", login, t.Team.Name)
	}

	if err := t.Members.Delete(ctx, t.Member.ID); err != nil {
		return fmt.Errorf("deleting team member: %w", err)
	}
	jc.Logf("Removed team member %d from team %s", t.Member.ID, t.Team.Name)
	return nil
}

// DeleteTeam deletes the GitHub team and the local team with its links.
type DeleteTeam struct {
	Course roster.Course
	Team   roster.Team
	Teams  roster.TeamRepository
	Tokens gateway.TokenIssuer
	GitHub gateway.Teams
}

func (DeleteTeam) Kind() string { return "delete-team" }

func (t DeleteTeam) Run(ctx context.Context, jc *job.Context) error {
	if msg := precondition(t.Course, t.Team, "", false); msg != "" {
		jc.Log(msg)
	} else if org, err := gateway.OrgFor(ctx, t.Tokens, t.Course); err != nil {
		jc.Logf("Cannot reach organization: %v", err)
	} else if err := t.GitHub.DeleteTeam(ctx, org, t.Team.GithubTeamID); err != nil {
		jc.Logf("Failed to delete GitHub team %s: %v", t.Team.Name, err)
	} else {
		jc.Logf("Deleted GitHub team %s", t.Team.Name)
	}

	if err := t.Teams.Delete(ctx, t.Team.ID); err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	jc.Logf("Deleted team %s", t.Team.Name)
	return nil
}
