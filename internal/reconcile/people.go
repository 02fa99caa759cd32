package reconcile

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
)

// removeFromOrg removes the person's GitHub account from the course
// organization when both are known. Failures are logged.
func removeFromOrg(ctx context.Context, jc *job.Context, course roster.Course, p roster.Person, tokens gateway.TokenIssuer, org gateway.OrgMembers) {
	switch {
	case !course.HasOrg():
		jc.Logf("Course %s has no linked organization; skipping GitHub removal", course.Name)
		return
	case p.GithubLogin == "":
		jc.Logf("%s has no GitHub login; skipping GitHub removal", p.DisplayName())
		return
	}

	o, err := gateway.OrgFor(ctx, tokens, course)
	if err != nil {
		jc.Logf("Cannot reach organization: %v", err)
		return
	}
	if err := org.Remove(ctx, o, p.GithubLogin); err != nil {
		jc.Logf("Failed to remove %s from %s: %v", p.GithubLogin, o.Name, err)
		return
	}
	jc.Logf("Removed %s from %s", p.GithubLogin, o.Name)
}

// RemoveStudent removes a student from the organization, marks them
// REMOVED and drops their team links.
type RemoveStudent struct {
	Course   roster.Course
	Student  roster.Student
	Students roster.StudentRepository
	Members  roster.TeamMemberRepository
	Tokens   gateway.TokenIssuer
	Org      gateway.OrgMembers
}

func (RemoveStudent) Kind() string { return "remove-student" }

func (t RemoveStudent) Run(ctx context.Context, jc *job.Context) error {
	removeFromOrg(ctx, jc, t.Course, t.Student.Person, t.Tokens, t.Org)

	st := t.Student
	st.OrgStatus = roster.OrgStatusRemoved
	if err := t.Students.SaveAll(ctx, []roster.Student{st}); err != nil {
		return fmt.Errorf("saving student: %w", err)
	}

	n, err := t.Members.DeleteByStudent(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("deleting team memberships: %w", err)
	}
	jc.Logf("Marked %s as removed and dropped %d team memberships", st.DisplayName(), n)
	return nil
}

// RemoveStaff removes a staff member from the organization and marks them REMOVED.
type RemoveStaff struct {
	Course roster.Course
	Member roster.Staff
	Staff  roster.StaffRepository
	Tokens gateway.TokenIssuer
	Org    gateway.OrgMembers
}

func (RemoveStaff) Kind() string { return "remove-staff" }

func (t RemoveStaff) Run(ctx context.Context, jc *job.Context) error {
	removeFromOrg(ctx, jc, t.Course, t.Member.Person, t.Tokens, t.Org)

	st := t.Member
	st.OrgStatus = roster.OrgStatusRemoved
	if err := t.Staff.SaveAll(ctx, []roster.Staff{st}); err != nil {
		return fmt.Errorf("saving staff: %w", err)
	}
	jc.Logf("Marked %s as removed", st.DisplayName())
	return nil
}
