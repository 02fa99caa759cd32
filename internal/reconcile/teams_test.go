package reconcile

import (
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"errors"
	"slices"
	"testing"
)

var ucsbEmail = roster.EmailRule{AliasDomain: "umail.ucsb.edu", CanonicalDomain: "ucsb.edu"}

func pullTask(canvas *fakeCanvas, students *fakeStudents, teams *fakeTeams) PullTeams {
	return PullTeams{
		Course:     linkedCourse,
		GroupSetID: "42",
		Canvas:     canvas,
		Students:   students,
		Teams:      teams,
		Email:      ucsbEmail,
	}
}

func TestPullTeams_CreatesTeamFromAliasEmail(t *testing.T) {
	t.Parallel()

	students := &fakeStudents{students: []roster.Student{student(1, 1, 0, "alice", roster.OrgStatusPending)}}
	teams := &fakeTeams{}
	canvas := &fakeCanvas{groups: []gateway.CanvasGroup{
		{ID: 123, Name: "Team Alpha", MemberEmails: []string{"Alice@umail.ucsb.edu", "ghost@ucsb.edu"}},
	}}

	j := runTask(t, pullTask(canvas, students, teams))

	if j.Status != job.StatusComplete {
		t.Fatalf("Status = %q; log:\n%s", j.Status, j.Log)
	}
	if got := lastLine(j); got != "Done" {
		t.Errorf("last log line = %q", got)
	}

	team, ok := teams.byName("Team Alpha")
	if !ok {
		t.Fatal("team Team Alpha was not created")
	}
	if team.CanvasGroupID != 123 {
		t.Errorf("CanvasGroupID = %d, want 123", team.CanvasGroupID)
	}
	if len(team.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(team.Members))
	}
	m := team.Members[0]
	if m.StudentID != 1 || m.Status != roster.TeamStatusNoGithubID {
		t.Errorf("member = %+v, want student 1 with NO_GITHUB_ID", m)
	}
	if !logContains(j, "no roster student with email ghost@ucsb.edu") {
		t.Errorf("log missing unmatched email:\n%s", j.Log)
	}
	if !logContains(j, "1 new teams, 1 unmatched emails") {
		t.Errorf("log missing summary:\n%s", j.Log)
	}
}

func TestPullTeams_RepeatedImportAddsNoDuplicates(t *testing.T) {
	t.Parallel()

	students := &fakeStudents{students: []roster.Student{
		student(1, 1, 0, "alice", roster.OrgStatusPending),
		student(2, 1, 0, "bob", roster.OrgStatusPending),
	}}
	teams := &fakeTeams{}
	canvas := &fakeCanvas{groups: []gateway.CanvasGroup{
		{ID: 123, Name: "Team Alpha", MemberEmails: []string{"alice@umail.ucsb.edu", "bob@ucsb.edu"}},
	}}

	for range 2 {
		if j := runTask(t, pullTask(canvas, students, teams)); j.Status != job.StatusComplete {
			t.Fatalf("Status = %q; log:\n%s", j.Status, j.Log)
		}
	}

	all, _ := teams.ListByCourse(t.Context(), 1)
	if len(all) != 1 {
		t.Fatalf("teams = %d, want 1", len(all))
	}
	if got := len(all[0].Members); got != 2 {
		t.Errorf("members = %d, want 2", got)
	}
}

func TestPullTeams_AdoptsUnlinkedTeamByName(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{teams: []roster.Team{{ID: 7, CourseID: 1, Name: "Team Beta"}}}
	canvas := &fakeCanvas{groups: []gateway.CanvasGroup{{ID: 55, Name: "  Team Beta "}}}

	j := runTask(t, pullTask(canvas, &fakeStudents{}, teams))

	if j.Status != job.StatusComplete {
		t.Fatalf("Status = %q; log:\n%s", j.Status, j.Log)
	}
	team, err := teams.Get(t.Context(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if team.CanvasGroupID != 55 {
		t.Errorf("CanvasGroupID = %d, want 55", team.CanvasGroupID)
	}
	all, _ := teams.ListByCourse(t.Context(), 1)
	if len(all) != 1 {
		t.Errorf("teams = %d, want the existing team adopted", len(all))
	}
}

func TestPullTeams_ConflictWritesNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		local  []roster.Team
		groups []gateway.CanvasGroup
	}{
		{
			name:  "name linked to another group",
			local: []roster.Team{{ID: 1, CourseID: 1, Name: "Team Alpha", CanvasGroupID: 100}},
			groups: []gateway.CanvasGroup{
				{ID: 200, Name: "Team Gamma", MemberEmails: []string{"alice@ucsb.edu"}},
				{ID: 300, Name: "Team Alpha"},
			},
		},
		{
			name: "duplicate names linked to other groups",
			local: []roster.Team{
				{ID: 1, CourseID: 1, Name: "Team Alpha", CanvasGroupID: 100},
				{ID: 2, CourseID: 1, Name: "Team Alpha", CanvasGroupID: 200},
			},
			groups: []gateway.CanvasGroup{
				{ID: 300, Name: " Team Alpha ", MemberEmails: []string{"alice@ucsb.edu"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			students := &fakeStudents{students: []roster.Student{student(1, 1, 0, "alice", roster.OrgStatusPending)}}
			teams := &fakeTeams{teams: tt.local}
			canvas := &fakeCanvas{groups: tt.groups}

			j := runTask(t, pullTask(canvas, students, teams))

			if j.Status != job.StatusError {
				t.Fatalf("Status = %q, want error", j.Status)
			}
			want := `team "Team Alpha" is linked to Canvas group 100, refusing to link it to group 300`
			if got := lastLine(j); got != want {
				t.Errorf("last log line = %q, want %q", got, want)
			}
			if n := teams.writeCount(); n != 0 {
				t.Errorf("team writes = %d, want 0", n)
			}
			if _, ok := teams.byName("Team Gamma"); ok {
				t.Error("Team Gamma was persisted despite the conflict")
			}
		})
	}
}

func TestPullTeams_RequiresCanvasLink(t *testing.T) {
	t.Parallel()

	canvas := &fakeCanvas{}
	task := pullTask(canvas, &fakeStudents{}, &fakeTeams{})
	task.Course = roster.Course{ID: 1, Name: "CS156", OrgName: "ucsb-cs156", InstallationID: 77}

	j := runTask(t, task)

	if j.Status != job.StatusError {
		t.Fatalf("Status = %q, want error", j.Status)
	}
	if got := lastLine(j); got != "course CS156 has no linked Canvas course" {
		t.Errorf("last log line = %q", got)
	}
	if canvas.calls != 0 {
		t.Errorf("Canvas called %d times", canvas.calls)
	}
}

func TestPullTeams_CanvasFailure(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{}
	j := runTask(t, pullTask(&fakeCanvas{err: errors.New("GET group_categories/42/groups: HTTP 401")}, &fakeStudents{}, teams))

	if j.Status != job.StatusError {
		t.Fatalf("Status = %q, want error", j.Status)
	}
	if !logContains(j, "HTTP 401") {
		t.Errorf("log missing Canvas error:\n%s", j.Log)
	}
	if teams.writeCount() != 0 {
		t.Error("teams written after Canvas failure")
	}
}

func linkedStudent(id int64, login string) *roster.Student {
	st := student(id, 1, id+10, login, roster.OrgStatusMember)
	return &st
}

func TestPushTeams(t *testing.T) {
	t.Parallel()

	noLogin := student(3, 1, 0, "", roster.OrgStatusPending)
	teams := &fakeTeams{teams: []roster.Team{{
		ID: 1, CourseID: 1, Name: "Team Alpha",
		Members: []roster.TeamMember{
			{ID: 1, TeamID: 1, StudentID: 1, Status: roster.TeamStatusNoGithubID, Student: linkedStudent(1, "alice")},
			{ID: 2, TeamID: 1, StudentID: 2, Status: roster.TeamStatusNoGithubID, Student: linkedStudent(2, "bob")},
			{ID: 3, TeamID: 1, StudentID: 3, Status: roster.TeamStatusNoGithubID, Student: &noLogin},
			{ID: 4, TeamID: 1, StudentID: 4, Status: roster.TeamStatusNoGithubID, Student: linkedStudent(4, "dave")},
		},
	}}}
	gh := newFakeGitHubTeams()
	gh.addErr["bob"] = errors.New("PUT memberships/bob: HTTP 422")
	gh.statusErr["dave"] = errors.New("GET memberships/dave: HTTP 500")

	j := runTask(t, PushTeams{Course: linkedCourse, Teams: teams, Tokens: &fakeTokens{}, GitHub: gh})

	if j.Status != job.StatusComplete {
		t.Fatalf("Status = %q; log:\n%s", j.Status, j.Log)
	}
	if got := lastLine(j); got != "Done" {
		t.Errorf("last log line = %q", got)
	}

	team, _ := teams.Get(t.Context(), 1)
	if team.GithubTeamID == 0 {
		t.Error("GithubTeamID was not recorded")
	}
	want := map[int64]roster.TeamStatus{
		1: roster.TeamStatusTeamMember,
		2: roster.TeamStatusNotOrgMember,
		3: roster.TeamStatusNoGithubID,
		4: roster.TeamStatusNotOrgMember,
	}
	for _, m := range team.Members {
		if m.Status != want[m.ID] {
			t.Errorf("member %d: Status = %q, want %q", m.ID, m.Status, want[m.ID])
		}
	}
	if adds := gh.addCalls(); !slices.Equal(adds, []string{"alice", "bob"}) {
		t.Errorf("AddMember calls = %v, want [alice bob]", adds)
	}
	if !logContains(j, "failed to add bob") {
		t.Errorf("log missing add failure:\n%s", j.Log)
	}
}

func TestPushTeams_MemberAlreadyOnTeam(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{teams: []roster.Team{{
		ID: 1, CourseID: 1, Name: "Team Alpha", GithubTeamID: 5001,
		Members: []roster.TeamMember{
			{ID: 1, TeamID: 1, StudentID: 1, Status: roster.TeamStatusTeamMaintainer, Student: linkedStudent(1, "alice")},
		},
	}}}
	gh := newFakeGitHubTeams()
	gh.ids["Team Alpha"] = 5001
	gh.memberships[membershipKey(5001, "alice")] = roster.TeamStatusTeamMaintainer

	j := runTask(t, PushTeams{Course: linkedCourse, Teams: teams, Tokens: &fakeTokens{}, GitHub: gh})

	if j.Status != job.StatusComplete {
		t.Fatalf("Status = %q", j.Status)
	}
	if adds := gh.addCalls(); len(adds) != 0 {
		t.Errorf("AddMember calls = %v, want none", adds)
	}
	if n := teams.writeCount(); n != 0 {
		t.Errorf("team writes = %d, want 0 for an unchanged team", n)
	}
}

func TestPushTeams_IsIdempotent(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{teams: []roster.Team{
		{ID: 1, CourseID: 1, Name: "Team Alpha", Members: []roster.TeamMember{
			{ID: 1, TeamID: 1, StudentID: 1, Status: roster.TeamStatusNoGithubID, Student: linkedStudent(1, "alice")},
		}},
		{ID: 2, CourseID: 1, Name: "Team Beta"},
	}}
	gh := newFakeGitHubTeams()
	task := PushTeams{Course: linkedCourse, Teams: teams, Tokens: &fakeTokens{}, GitHub: gh}

	runTask(t, task)
	writes := teams.writeCount()
	runTask(t, task)

	if gh.creates != 2 {
		t.Errorf("GitHub teams created = %d, want 2", gh.creates)
	}
	if got := gh.addCalls(); len(got) != 1 {
		t.Errorf("AddMember calls = %v, want one", got)
	}
	if teams.writeCount() != writes {
		t.Errorf("second push wrote %d more times", teams.writeCount()-writes)
	}
}

func TestPushTeams_TeamFailureIsolated(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{teams: []roster.Team{
		{ID: 1, CourseID: 1, Name: "Team Alpha"},
		{ID: 2, CourseID: 1, Name: "Team Beta"},
	}}
	gh := newFakeGitHubTeams()
	gh.findErr["Team Alpha"] = errors.New("POST orgs/ucsb-cs156/teams: HTTP 403")

	j := runTask(t, PushTeams{Course: linkedCourse, Teams: teams, Tokens: &fakeTokens{}, GitHub: gh})

	if j.Status != job.StatusComplete {
		t.Fatalf("Status = %q", j.Status)
	}
	if !logContains(j, "Team Team Alpha: POST orgs/ucsb-cs156/teams: HTTP 403") {
		t.Errorf("log missing team failure:\n%s", j.Log)
	}
	beta, _ := teams.Get(t.Context(), 2)
	if beta.GithubTeamID == 0 {
		t.Error("Team Beta was not pushed")
	}
}

func TestPushTeams_UnlinkedCourse(t *testing.T) {
	t.Parallel()

	gh := newFakeGitHubTeams()
	j := runTask(t, PushTeams{Course: roster.Course{ID: 3, Name: "CS8"}, Teams: &fakeTeams{}, Tokens: &fakeTokens{}, GitHub: gh})

	if j.Status != job.StatusError {
		t.Fatalf("Status = %q, want error", j.Status)
	}
	if gh.creates != 0 {
		t.Error("GitHub called for unlinked course")
	}
}
