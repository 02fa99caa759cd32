// Package reconcile holds the tasks that bring GitHub organization
// membership, GitHub teams and Canvas groups in line with the local roster.
//
// Each task is a struct carrying the entities, parameters and services it
// needs plus a Run method. Failures of a single remote call are logged to
// the job and processing moves on to the next member, team or course; only
// linkage failures on a required step, conflicts and persistence failures
// end a job with status error.
package reconcile

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
)

// MembershipAudit refreshes the OrgStatus of every roster entry with a
// known GitHub id, for every course linked to an organization.
type MembershipAudit struct {
	Courses  roster.CourseRepository
	Students roster.StudentRepository
	Staff    roster.StaffRepository
	Tokens   gateway.TokenIssuer
	Org      gateway.OrgMembers
}

func (MembershipAudit) Kind() string { return "membership-audit" }

func (t MembershipAudit) Run(ctx context.Context, jc *job.Context) error {
	courses, err := t.Courses.ListLinked(ctx)
	if err != nil {
		return fmt.Errorf("listing linked courses: %w", err)
	}
	jc.Logf("Auditing %d linked courses", len(courses))

	for _, c := range courses {
		if err := t.auditCourse(ctx, jc, c); err != nil {
			jc.Logf("Course %s: audit failed: %v", c.Name, err)
		}
	}

	jc.Log("Done")
	return nil
}

func (t MembershipAudit) auditCourse(ctx context.Context, jc *job.Context, c roster.Course) error {
	org, err := gateway.OrgFor(ctx, t.Tokens, c)
	if err != nil {
		return err
	}

	members, err := t.Org.ListMembers(ctx, org)
	if err != nil {
		return err
	}
	admins, err := t.Org.ListAdmins(ctx, org)
	if err != nil {
		return err
	}
	invitees, err := t.Org.ListInvitees(ctx, org)
	if err != nil {
		return err
	}
	jc.Logf("Course %s: %d members, %d owners, %d pending invitations in %s",
		c.Name, len(members), len(admins), len(invitees), org.Name)

	statuses := orgStatuses(members, admins, invitees)

	students, err := t.Students.ListByCourse(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading students: %w", err)
	}
	var changedStudents []roster.Student
	for i := range students {
		if applyOrgStatus(&students[i].Person, statuses) {
			changedStudents = append(changedStudents, students[i])
		}
	}
	if len(changedStudents) > 0 {
		if err := t.Students.SaveAll(ctx, changedStudents); err != nil {
			return fmt.Errorf("saving students: %w", err)
		}
	}

	staff, err := t.Staff.ListByCourse(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading staff: %w", err)
	}
	var changedStaff []roster.Staff
	for i := range staff {
		if applyOrgStatus(&staff[i].Person, statuses) {
			changedStaff = append(changedStaff, staff[i])
		}
	}
	if len(changedStaff) > 0 {
		if err := t.Staff.SaveAll(ctx, changedStaff); err != nil {
			return fmt.Errorf("saving staff: %w", err)
		}
	}

	jc.Logf("Course %s: updated %d students and %d staff", c.Name, len(changedStudents), len(changedStaff))
	return nil
}

// orgStatuses maps GitHub ids to OrgStatus. Later writes win, so an owner
// listed among members ends up OWNER and an invitee that already joined
// ends up MEMBER.
func orgStatuses(members, admins, invitees []gateway.RemoteIdentity) map[int64]roster.OrgStatus {
	statuses := make(map[int64]roster.OrgStatus, len(members)+len(invitees))
	for _, id := range invitees {
		statuses[id.ID] = roster.OrgStatusInvited
	}
	for _, id := range members {
		statuses[id.ID] = roster.OrgStatusMember
	}
	for _, id := range admins {
		statuses[id.ID] = roster.OrgStatusOwner
	}
	return statuses
}

// applyOrgStatus reports whether p's status changed. Entries without a
// GitHub id, or absent from every listing, are left alone.
func applyOrgStatus(p *roster.Person, statuses map[int64]roster.OrgStatus) bool {
	if p.GithubID == 0 {
		return false
	}
	status, ok := statuses[p.GithubID]
	if !ok || status == p.OrgStatus {
		return false
	}
	p.OrgStatus = status
	return true
}

// InviteMembers invites every roster entry with a GitHub id that is not
// yet in the organization.
type InviteMembers struct {
	Course   roster.Course
	Students roster.StudentRepository
	Staff    roster.StaffRepository
	Tokens   gateway.TokenIssuer
	Org      gateway.OrgMembers
}

func (InviteMembers) Kind() string { return "invite-members" }

func (t InviteMembers) Run(ctx context.Context, jc *job.Context) error {
	org, err := gateway.OrgFor(ctx, t.Tokens, t.Course)
	if err != nil {
		return err
	}

	students, err := t.Students.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading students: %w", err)
	}
	var invitedStudents []roster.Student
	for i := range students {
		if t.invite(ctx, jc, org, &students[i].Person) {
			invitedStudents = append(invitedStudents, students[i])
		}
	}
	if len(invitedStudents) > 0 {
		if err := t.Students.SaveAll(ctx, invitedStudents); err != nil {
			return fmt.Errorf("saving students: %w", err)
		}
	}

	staff, err := t.Staff.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading staff: %w", err)
	}
	var invitedStaff []roster.Staff
	for i := range staff {
		if t.invite(ctx, jc, org, &staff[i].Person) {
			invitedStaff = append(invitedStaff, staff[i])
		}
	}
	if len(invitedStaff) > 0 {
		if err := t.Staff.SaveAll(ctx, invitedStaff); err != nil {
			return fmt.Errorf("saving staff: %w", err)
		}
	}

	jc.Logf("Invited %d students and %d staff to %s", len(invitedStudents), len(invitedStaff), org.Name)
	jc.Log("Done")
	return nil
}

// invite reports whether an invitation was sent and p marked INVITED.
func (t InviteMembers) invite(ctx context.Context, jc *job.Context, org gateway.Org, p *roster.Person) bool {
	if p.GithubID == 0 || p.OrgStatus.InOrg() || p.OrgStatus == roster.OrgStatusRemoved {
		return false
	}
	if err := t.Org.Invite(ctx, org, p.GithubID); err != nil {
		jc.Logf("Failed to invite %s: %v", p.DisplayName(), err)
		return false
	}
	p.OrgStatus = roster.OrgStatusInvited
	return true
}
