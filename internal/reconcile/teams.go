package reconcile

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
	"strconv"
	"strings"
)

// PullTeams imports the groups of a Canvas group set as local teams.
// Nothing is written unless every group is processed.
type PullTeams struct {
	Course     roster.Course
	GroupSetID string
	Canvas     gateway.Canvas
	Students   roster.StudentRepository
	Teams      roster.TeamRepository
	Email      roster.EmailRule
}

func (PullTeams) Kind() string { return "pull-teams" }

func (t PullTeams) Run(ctx context.Context, jc *job.Context) error {
	if !t.Course.HasCanvas() {
		return apperrors.Linkage("course", strconv.FormatInt(t.Course.ID, 10),
			fmt.Sprintf("course %s has no linked Canvas course", t.Course.Name))
	}

	groups, err := t.Canvas.ListGroups(ctx, t.Course, t.GroupSetID)
	if err != nil {
		return fmt.Errorf("fetching Canvas group set %s: %w", t.GroupSetID, err)
	}
	jc.Logf("Fetched %d groups from Canvas group set %s", len(groups), t.GroupSetID)

	students, err := t.Students.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading students: %w", err)
	}
	byEmail := make(map[string]*roster.Student, len(students))
	for i := range students {
		email := t.Email.Canonical(students[i].Email)
		if _, dup := byEmail[email]; !dup {
			byEmail[email] = &students[i]
		}
	}

	existing, err := t.Teams.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading teams: %w", err)
	}
	idx := newTeamIndex(existing)

	var (
		touched            []*roster.Team
		seen               = make(map[*roster.Team]bool)
		created, unmatched int
	)
	for _, g := range groups {
		team, isNew, err := idx.resolve(t.Course.ID, g)
		if err != nil {
			return err
		}
		if isNew {
			created++
		}
		if !seen[team] {
			seen[team] = true
			touched = append(touched, team)
		}

		added, skipped := 0, 0
		for _, raw := range g.MemberEmails {
			email := t.Email.Canonical(raw)
			st, ok := byEmail[email]
			if !ok {
				unmatched++
				jc.Logf("Team %s: no roster student with email %s", team.Name, email)
				continue
			}
			if team.HasStudent(st.ID) {
				skipped++
				continue
			}
			team.Members = append(team.Members, roster.TeamMember{
				TeamID:    team.ID,
				StudentID: st.ID,
				Status:    roster.TeamStatusNoGithubID,
				Student:   st,
			})
			added++
		}
		jc.Logf("Team %s: %d added, %d already linked", team.Name, added, skipped)
	}

	if err := t.Teams.SaveAll(ctx, touched); err != nil {
		return fmt.Errorf("saving teams: %w", err)
	}
	jc.Logf("Imported %d groups: %d new teams, %d unmatched emails", len(groups), created, unmatched)
	jc.Log("Done")
	return nil
}

// teamIndex finds local teams by Canvas group id and by trimmed name.
type teamIndex struct {
	byGroup map[int64]*roster.Team
	byName  map[string][]*roster.Team
}

func newTeamIndex(teams []roster.Team) *teamIndex {
	idx := &teamIndex{
		byGroup: make(map[int64]*roster.Team, len(teams)),
		byName:  make(map[string][]*roster.Team, len(teams)),
	}
	for i := range teams {
		idx.add(&teams[i])
	}
	return idx
}

func (idx *teamIndex) add(team *roster.Team) {
	if team.CanvasGroupID != 0 {
		if _, ok := idx.byGroup[team.CanvasGroupID]; !ok {
			idx.byGroup[team.CanvasGroupID] = team
		}
	}
	name := strings.TrimSpace(team.Name)
	idx.byName[name] = append(idx.byName[name], team)
}

// resolve returns the team for a Canvas group, creating it when no team
// matches. A name match already linked to another group is a conflict.
func (idx *teamIndex) resolve(courseID int64, g gateway.CanvasGroup) (*roster.Team, bool, error) {
	if team, ok := idx.byGroup[g.ID]; ok {
		return team, false, nil
	}

	name := strings.TrimSpace(g.Name)
	matches := idx.byName[name]
	for _, team := range matches {
		if team.CanvasGroupID != 0 && team.CanvasGroupID != g.ID {
			return nil, false, apperrors.Conflict("team", name, fmt.Sprintf(
				"team %q is linked to Canvas group %d, refusing to link it to group %d", name, team.CanvasGroupID, g.ID))
		}
	}

	if len(matches) > 0 {
		team := matches[0]
		team.CanvasGroupID = g.ID
		idx.byGroup[g.ID] = team
		return team, false, nil
	}

	team := &roster.Team{CourseID: courseID, Name: name, CanvasGroupID: g.ID}
	idx.add(team)
	return team, true, nil
}

// PushTeams mirrors every local team and its members to GitHub.
type PushTeams struct {
	Course roster.Course
	Teams  roster.TeamRepository
	Tokens gateway.TokenIssuer
	GitHub gateway.Teams
}

func (PushTeams) Kind() string { return "push-teams" }

func (t PushTeams) Run(ctx context.Context, jc *job.Context) error {
	org, err := gateway.OrgFor(ctx, t.Tokens, t.Course)
	if err != nil {
		return err
	}

	teams, err := t.Teams.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading teams: %w", err)
	}
	jc.Logf("Pushing %d teams to %s", len(teams), org.Name)

	for i := range teams {
		t.pushTeam(ctx, jc, org, &teams[i])
	}

	jc.Log("Done")
	return nil
}

func (t PushTeams) pushTeam(ctx context.Context, jc *job.Context, org gateway.Org, team *roster.Team) {
	id, err := t.GitHub.FindOrCreateTeam(ctx, org, team.Name)
	if err != nil {
		jc.Logf("Team %s: %v", team.Name, err)
		return
	}
	dirty := id != team.GithubTeamID
	team.GithubTeamID = id

	counts := make(map[roster.TeamStatus]int)
	for i := range team.Members {
		m := &team.Members[i]
		status := t.memberStatus(ctx, jc, org, team, m)
		counts[status]++
		if status != m.Status {
			m.Status = status
			dirty = true
		}
	}

	if dirty {
		if err := t.Teams.Save(ctx, team); err != nil {
			jc.Logf("Team %s: failed to save: %v", team.Name, err)
			return
		}
	}
	jc.Logf("Team %s: %d on team, %d without GitHub login, %d not in organization",
		team.Name,
		counts[roster.TeamStatusTeamMember]+counts[roster.TeamStatusTeamMaintainer],
		counts[roster.TeamStatusNoGithubID],
		counts[roster.TeamStatusNotOrgMember])
}

func (t PushTeams) memberStatus(ctx context.Context, jc *job.Context, org gateway.Org, team *roster.Team, m *roster.TeamMember) roster.TeamStatus {
	login := m.Login()
	if login == "" {
		return roster.TeamStatusNoGithubID
	}

	status, found, err := t.GitHub.MembershipStatus(ctx, org, login, team.GithubTeamID)
	if err != nil {
		jc.Logf("Team %s: failed to read membership of %s: %v", team.Name, login, err)
		return roster.TeamStatusNotOrgMember
	}
	if found && status.OnTeam() {
		return status
	}

	status, err = t.GitHub.AddMember(ctx, org, login, team.GithubTeamID, gateway.RoleMember)
	if err != nil {
		jc.Logf("Team %s: failed to add %s: %v", team.Name, login, err)
		return roster.TeamStatusNotOrgMember
	}
	return status
}
