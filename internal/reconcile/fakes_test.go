package reconcile

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// runTask executes task through a real Runner and returns the finished job.
func runTask(t *testing.T, task job.Task) *job.Job {
	t.Helper()
	ctx := context.Background()
	runner := job.NewRunner(job.NewMemoryStore(), nil)
	id, err := runner.Submit(ctx, "instructor@ucsb.edu", task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	runner.Wait()
	j, err := runner.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return j
}

func logLines(j *job.Job) []string {
	return strings.Split(j.Log, "\n")
}

func lastLine(j *job.Job) string {
	lines := logLines(j)
	return lines[len(lines)-1]
}

func logContains(j *job.Job, substr string) bool {
	return strings.Contains(j.Log, substr)
}

// --- repositories ---

type fakeCourses struct {
	courses []roster.Course
}

func (f *fakeCourses) Get(_ context.Context, id int64) (*roster.Course, error) {
	for _, c := range f.courses {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("course", strconv.FormatInt(id, 10))
}

func (f *fakeCourses) ListLinked(context.Context) ([]roster.Course, error) {
	var linked []roster.Course
	for _, c := range f.courses {
		if c.HasOrg() {
			linked = append(linked, c)
		}
	}
	return linked, nil
}

type fakeStudents struct {
	mu       sync.Mutex
	students []roster.Student
	saves    [][]roster.Student
}

func (f *fakeStudents) Get(_ context.Context, id int64) (*roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, apperrors.NotFound("student", strconv.FormatInt(id, 10))
}

func (f *fakeStudents) ListByCourse(_ context.Context, courseID int64) ([]roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []roster.Student
	for _, s := range f.students {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStudents) SaveAll(_ context.Context, students []roster.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, slices.Clone(students))
	for _, s := range students {
		for i := range f.students {
			if f.students[i].ID == s.ID {
				f.students[i] = s
			}
		}
	}
	return nil
}

func (f *fakeStudents) byID(id int64) roster.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.ID == id {
			return s
		}
	}
	return roster.Student{}
}

func (f *fakeStudents) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

type fakeStaff struct {
	mu    sync.Mutex
	staff []roster.Staff
	saves [][]roster.Staff
}

func (f *fakeStaff) Get(_ context.Context, id int64) (*roster.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.staff {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, apperrors.NotFound("staff", strconv.FormatInt(id, 10))
}

func (f *fakeStaff) ListByCourse(_ context.Context, courseID int64) ([]roster.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []roster.Staff
	for _, s := range f.staff {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStaff) SaveAll(_ context.Context, staff []roster.Staff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, slices.Clone(staff))
	for _, s := range staff {
		for i := range f.staff {
			if f.staff[i].ID == s.ID {
				f.staff[i] = s
			}
		}
	}
	return nil
}

func (f *fakeStaff) byID(id int64) roster.Staff {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.staff {
		if s.ID == id {
			return s
		}
	}
	return roster.Staff{}
}

// fakeTeams stores deep copies; writes counts every mutating call.
type fakeTeams struct {
	mu           sync.Mutex
	teams        []roster.Team
	nextTeamID   int64
	nextMemberID int64
	writes       int
}

func cloneTeam(t roster.Team) roster.Team {
	t.Members = slices.Clone(t.Members)
	return t
}

func (f *fakeTeams) Get(_ context.Context, id int64) (*roster.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.teams {
		if t.ID == id {
			c := cloneTeam(t)
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("team", strconv.FormatInt(id, 10))
}

func (f *fakeTeams) ListByCourse(_ context.Context, courseID int64) ([]roster.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []roster.Team
	for _, t := range f.teams {
		if t.CourseID == courseID {
			out = append(out, cloneTeam(t))
		}
	}
	return out, nil
}

func (f *fakeTeams) save(team *roster.Team) {
	if team.ID == 0 {
		f.nextTeamID++
		team.ID = 100 + f.nextTeamID
	}
	for i := range team.Members {
		team.Members[i].TeamID = team.ID
		if team.Members[i].ID == 0 {
			f.nextMemberID++
			team.Members[i].ID = 1000 + f.nextMemberID
		}
	}
	for i := range f.teams {
		if f.teams[i].ID == team.ID {
			f.teams[i] = cloneTeam(*team)
			return
		}
	}
	f.teams = append(f.teams, cloneTeam(*team))
}

func (f *fakeTeams) Save(_ context.Context, team *roster.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.save(team)
	return nil
}

func (f *fakeTeams) SaveAll(_ context.Context, teams []*roster.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	for _, t := range teams {
		f.save(t)
	}
	return nil
}

func (f *fakeTeams) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	for i := range f.teams {
		if f.teams[i].ID == id {
			f.teams = slices.Delete(f.teams, i, i+1)
			return nil
		}
	}
	return apperrors.NotFound("team", strconv.FormatInt(id, 10))
}

func (f *fakeTeams) byName(name string) (roster.Team, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.teams {
		if t.Name == name {
			return cloneTeam(t), true
		}
	}
	return roster.Team{}, false
}

func (f *fakeTeams) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fakeTeamMembers struct {
	mu               sync.Mutex
	members          map[int64]roster.TeamMember
	updates          map[int64]roster.TeamStatus
	deleted          []int64
	deletedByStudent []int64
}

func newFakeTeamMembers(members ...roster.TeamMember) *fakeTeamMembers {
	f := &fakeTeamMembers{members: map[int64]roster.TeamMember{}, updates: map[int64]roster.TeamStatus{}}
	for _, m := range members {
		f.members[m.ID] = m
	}
	return f
}

func (f *fakeTeamMembers) Get(_ context.Context, id int64) (*roster.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil, apperrors.NotFound("team member", strconv.FormatInt(id, 10))
	}
	return &m, nil
}

func (f *fakeTeamMembers) UpdateStatus(_ context.Context, id int64, status roster.TeamStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = status
	return nil
}

func (f *fakeTeamMembers) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.members, id)
	return nil
}

func (f *fakeTeamMembers) DeleteByStudent(_ context.Context, studentID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedByStudent = append(f.deletedByStudent, studentID)
	var n int64
	for id, m := range f.members {
		if m.StudentID == studentID {
			delete(f.members, id)
			n++
		}
	}
	return n, nil
}

// --- gateways ---

type fakeTokens struct {
	failFor map[string]error
}

func (f *fakeTokens) InstallationToken(_ context.Context, c roster.Course) (string, error) {
	if !c.HasOrg() {
		return "", apperrors.Linkage("course", strconv.FormatInt(c.ID, 10),
			fmt.Sprintf("course %s has no linked organization", c.Name))
	}
	if err := f.failFor[c.OrgName]; err != nil {
		return "", err
	}
	return "token-" + c.OrgName, nil
}

type fakeOrg struct {
	mu        sync.Mutex
	members   map[string][]gateway.RemoteIdentity
	admins    map[string][]gateway.RemoteIdentity
	invitees  map[string][]gateway.RemoteIdentity
	listErr   map[string]error
	inviteErr map[int64]error
	invited   []int64
	removed   []string
	removeErr error
}

func (f *fakeOrg) ListMembers(_ context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	if err := f.listErr[org.Name]; err != nil {
		return nil, err
	}
	return f.members[org.Name], nil
}

func (f *fakeOrg) ListAdmins(_ context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	return f.admins[org.Name], nil
}

func (f *fakeOrg) ListInvitees(_ context.Context, org gateway.Org) ([]gateway.RemoteIdentity, error) {
	return f.invitees[org.Name], nil
}

func (f *fakeOrg) Invite(_ context.Context, _ gateway.Org, externalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.inviteErr[externalID]; err != nil {
		return err
	}
	f.invited = append(f.invited, externalID)
	return nil
}

func (f *fakeOrg) Remove(_ context.Context, _ gateway.Org, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, login)
	return f.removeErr
}

type fakeGitHubTeams struct {
	mu          sync.Mutex
	ids         map[string]int64
	nextID      int64
	creates     int
	findErr     map[string]error
	memberships map[string]roster.TeamStatus // "<teamID>/<login>"
	statusErr   map[string]error
	addErr      map[string]error
	adds        []string
	removes     []string
	deletes     []int64
	removeErr   error
	deleteErr   error
}

func newFakeGitHubTeams() *fakeGitHubTeams {
	return &fakeGitHubTeams{
		ids:         map[string]int64{},
		findErr:     map[string]error{},
		memberships: map[string]roster.TeamStatus{},
		statusErr:   map[string]error{},
		addErr:      map[string]error{},
	}
}

func membershipKey(teamID int64, login string) string {
	return fmt.Sprintf("%d/%s", teamID, login)
}

func (f *fakeGitHubTeams) FindOrCreateTeam(_ context.Context, _ gateway.Org, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.findErr[name]; err != nil {
		return 0, err
	}
	if id, ok := f.ids[name]; ok {
		return id, nil
	}
	f.creates++
	f.nextID++
	f.ids[name] = 5000 + f.nextID
	return f.ids[name], nil
}

func (f *fakeGitHubTeams) MembershipStatus(_ context.Context, _ gateway.Org, login string, teamID int64) (roster.TeamStatus, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[login]; err != nil {
		return "", false, err
	}
	status, ok := f.memberships[membershipKey(teamID, login)]
	return status, ok, nil
}

func (f *fakeGitHubTeams) AddMember(_ context.Context, _ gateway.Org, login string, teamID int64, role string) (roster.TeamStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, login)
	if err := f.addErr[login]; err != nil {
		return "", err
	}
	status := roster.TeamStatusTeamMember
	if role == gateway.RoleMaintainer {
		status = roster.TeamStatusTeamMaintainer
	}
	f.memberships[membershipKey(teamID, login)] = status
	return status, nil
}

func (f *fakeGitHubTeams) RemoveMember(_ context.Context, _ gateway.Org, login string, teamID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, login)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.memberships, membershipKey(teamID, login))
	return nil
}

func (f *fakeGitHubTeams) DeleteTeam(_ context.Context, _ gateway.Org, teamID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, teamID)
	return f.deleteErr
}

func (f *fakeGitHubTeams) addCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.adds)
}

type fakeRepos struct {
	mu            sync.Mutex
	existing      map[string]bool
	createErr     map[string]error
	collabErr     map[string]error
	created       []string
	collaborators []string
}

func (f *fakeRepos) CreateRepository(_ context.Context, _ gateway.Org, name string, _ bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[name]; err != nil {
		return false, err
	}
	if f.existing[name] {
		return false, nil
	}
	f.created = append(f.created, name)
	return true, nil
}

func (f *fakeRepos) AddCollaborator(_ context.Context, _ gateway.Org, repo, login, permission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.collabErr[login]; err != nil {
		return err
	}
	f.collaborators = append(f.collaborators, repo+":"+login+":"+permission)
	return nil
}

type fakeCanvas struct {
	groups []gateway.CanvasGroup
	err    error
	calls  int
}

func (f *fakeCanvas) ListGroups(context.Context, roster.Course, string) ([]gateway.CanvasGroup, error) {
	f.calls++
	return f.groups, f.err
}

var (
	_ roster.CourseRepository     = (*fakeCourses)(nil)
	_ roster.StudentRepository    = (*fakeStudents)(nil)
	_ roster.StaffRepository      = (*fakeStaff)(nil)
	_ roster.TeamRepository       = (*fakeTeams)(nil)
	_ roster.TeamMemberRepository = (*fakeTeamMembers)(nil)
	_ gateway.TokenIssuer         = (*fakeTokens)(nil)
	_ gateway.OrgMembers          = (*fakeOrg)(nil)
	_ gateway.Teams               = (*fakeGitHubTeams)(nil)
	_ gateway.Repositories        = (*fakeRepos)(nil)
	_ gateway.Canvas              = (*fakeCanvas)(nil)
)

var linkedCourse = roster.Course{ID: 1, Name: "CS156", OrgName: "ucsb-cs156", OrgID: 500, InstallationID: 77, CanvasCourseID: "9001"}
