package reconcile

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"strings"
)

// Submitter starts tasks as jobs. *job.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, creator string, task job.Task) (string, error)
}

// Deps are the repositories and gateways tasks are built from.
type Deps struct {
	Courses     roster.CourseRepository
	Students    roster.StudentRepository
	Staff       roster.StaffRepository
	Teams       roster.TeamRepository
	TeamMembers roster.TeamMemberRepository

	Tokens       gateway.TokenIssuer
	Org          gateway.OrgMembers
	GitHubTeams  gateway.Teams
	Repositories gateway.Repositories
	Canvas       gateway.Canvas

	Email roster.EmailRule
}

// Service resolves ids into entities, builds tasks and submits them.
// Unknown ids fail with an apperrors.ErrNotFound error before any job is created.
type Service struct {
	runner Submitter
	deps   Deps
}

// NewService creates a service submitting to runner.
func NewService(runner Submitter, deps Deps) *Service {
	return &Service{runner: runner, deps: deps}
}

// AuditTask builds a membership audit over every linked course.
func (s *Service) AuditTask() job.Task {
	return MembershipAudit{
		Courses:  s.deps.Courses,
		Students: s.deps.Students,
		Staff:    s.deps.Staff,
		Tokens:   s.deps.Tokens,
		Org:      s.deps.Org,
	}
}

// Audit submits a membership audit.
func (s *Service) Audit(ctx context.Context, creator string) (string, error) {
	return s.runner.Submit(ctx, creator, s.AuditTask())
}

// InviteMembers submits organization invitations for a course.
func (s *Service) InviteMembers(ctx context.Context, creator string, courseID int64) (string, error) {
	course, err := s.deps.Courses.Get(ctx, courseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, InviteMembers{
		Course:   *course,
		Students: s.deps.Students,
		Staff:    s.deps.Staff,
		Tokens:   s.deps.Tokens,
		Org:      s.deps.Org,
	})
}

// PullTeams submits an import of a Canvas group set.
func (s *Service) PullTeams(ctx context.Context, creator string, courseID int64, groupSetID string) (string, error) {
	groupSetID = strings.TrimSpace(groupSetID)
	if groupSetID == "" {
		return "", apperrors.Validation("groupSetId", "groupSetId is required")
	}
	course, err := s.deps.Courses.Get(ctx, courseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, PullTeams{
		Course:     *course,
		GroupSetID: groupSetID,
		Canvas:     s.deps.Canvas,
		Students:   s.deps.Students,
		Teams:      s.deps.Teams,
		Email:      s.deps.Email,
	})
}

// PushTeams submits a push of every course team to GitHub.
func (s *Service) PushTeams(ctx context.Context, creator string, courseID int64) (string, error) {
	course, err := s.deps.Courses.Get(ctx, courseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, PushTeams{
		Course: *course,
		Teams:  s.deps.Teams,
		Tokens: s.deps.Tokens,
		GitHub: s.deps.GitHubTeams,
	})
}

// RepoOptions parameterize CreateRepos.
type RepoOptions struct {
	Prefix     string `json:"prefix"`
	Private    bool   `json:"private"`
	Permission string `json:"permission"`
}

// CreateRepos submits per-student repository provisioning.
func (s *Service) CreateRepos(ctx context.Context, creator string, courseID int64, opts RepoOptions) (string, error) {
	opts.Prefix = strings.TrimSpace(opts.Prefix)
	if opts.Prefix == "" {
		return "", apperrors.Validation("prefix", "prefix is required")
	}
	if opts.Permission == "" {
		opts.Permission = "push"
	}
	if !repoPermissions[opts.Permission] {
		return "", apperrors.Validation("permission", "permission must be one of pull, triage, push, maintain, admin")
	}
	course, err := s.deps.Courses.Get(ctx, courseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, CreateStudentRepos{
		Course:     *course,
		Prefix:     opts.Prefix,
		Private:    opts.Private,
		Permission: opts.Permission,
		Students:   s.deps.Students,
		Tokens:     s.deps.Tokens,
		Repos:      s.deps.Repositories,
	})
}

// memberContext loads a team member link with its team and course.
func (s *Service) memberContext(ctx context.Context, memberID int64) (*roster.TeamMember, *roster.Team, *roster.Course, error) {
	member, err := s.deps.TeamMembers.Get(ctx, memberID)
	if err != nil {
		return nil, nil, nil, err
	}
	team, course, err := s.teamContext(ctx, member.TeamID)
	if err != nil {
		return nil, nil, nil, err
	}
	return member, team, course, nil
}

func (s *Service) teamContext(ctx context.Context, teamID int64) (*roster.Team, *roster.Course, error) {
	team, err := s.deps.Teams.Get(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	course, err := s.deps.Courses.Get(ctx, team.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return team, course, nil
}

// AddTeamMember submits adding one team member to its GitHub team.
func (s *Service) AddTeamMember(ctx context.Context, creator string, memberID int64) (string, error) {
	member, team, course, err := s.memberContext(ctx, memberID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, AddTeamMember{
		Course:  *course,
		Team:    *team,
		Member:  *member,
		Members: s.deps.TeamMembers,
		Tokens:  s.deps.Tokens,
		GitHub:  s.deps.GitHubTeams,
	})
}

// RemoveTeamMember submits removing one team member.
func (s *Service) RemoveTeamMember(ctx context.Context, creator string, memberID int64) (string, error) {
	member, team, course, err := s.memberContext(ctx, memberID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, RemoveTeamMember{
		Course:  *course,
		Team:    *team,
		Member:  *member,
		Members: s.deps.TeamMembers,
		Tokens:  s.deps.Tokens,
		GitHub:  s.deps.GitHubTeams,
	})
}

// DeleteTeam submits deleting a team.
func (s *Service) DeleteTeam(ctx context.Context, creator string, teamID int64) (string, error) {
	team, course, err := s.teamContext(ctx, teamID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, DeleteTeam{
		Course: *course,
		Team:   *team,
		Teams:  s.deps.Teams,
		Tokens: s.deps.Tokens,
		GitHub: s.deps.GitHubTeams,
	})
}

// RemoveStudent submits removing a student from the course organization.
func (s *Service) RemoveStudent(ctx context.Context, creator string, studentID int64) (string, error) {
	st, err := s.deps.Students.Get(ctx, studentID)
	if err != nil {
		return "", err
	}
	course, err := s.deps.Courses.Get(ctx, st.CourseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, RemoveStudent{
		Course:   *course,
		Student:  *st,
		Students: s.deps.Students,
		Members:  s.deps.TeamMembers,
		Tokens:   s.deps.Tokens,
		Org:      s.deps.Org,
	})
}

// RemoveStaff submits removing a staff member from the course organization.
func (s *Service) RemoveStaff(ctx context.Context, creator string, staffID int64) (string, error) {
	st, err := s.deps.Staff.Get(ctx, staffID)
	if err != nil {
		return "", err
	}
	course, err := s.deps.Courses.Get(ctx, st.CourseID)
	if err != nil {
		return "", err
	}
	return s.runner.Submit(ctx, creator, RemoveStaff{
		Course: *course,
		Member: *st,
		Staff:  s.deps.Staff,
		Tokens: s.deps.Tokens,
		Org:    s.deps.Org,
	})
}
