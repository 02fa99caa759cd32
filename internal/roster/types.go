// Package roster defines courses, roster entries and teams, and the
// repository interfaces the reconciliation tasks read and write through.
package roster

import "time"

// OrgStatus is a roster entry's standing in the course's GitHub organization.
type OrgStatus string

const (
	OrgStatusNone       OrgStatus = "NONE"
	OrgStatusPending    OrgStatus = "PENDING"
	OrgStatusJoinCourse OrgStatus = "JOINCOURSE"
	OrgStatusInvited    OrgStatus = "INVITED"
	OrgStatusMember     OrgStatus = "MEMBER"
	OrgStatusOwner      OrgStatus = "OWNER"
	OrgStatusRemoved    OrgStatus = "REMOVED"
)

// InOrg reports whether the status means the person already belongs to,
// or has been invited to, the organization.
func (s OrgStatus) InOrg() bool {
	return s == OrgStatusMember || s == OrgStatusOwner || s == OrgStatusInvited
}

// TeamStatus is a team membership link's standing in the GitHub team.
type TeamStatus string

const (
	TeamStatusNoGithubID     TeamStatus = "NO_GITHUB_ID"
	TeamStatusNotOrgMember   TeamStatus = "NOT_ORG_MEMBER"
	TeamStatusTeamMember     TeamStatus = "TEAM_MEMBER"
	TeamStatusTeamMaintainer TeamStatus = "TEAM_MAINTAINER"
)

// OnTeam reports whether the status means the person is already on the GitHub team.
func (s TeamStatus) OnTeam() bool {
	return s == TeamStatusTeamMember || s == TeamStatusTeamMaintainer
}

// Course links a roster to a GitHub organization and a Canvas course.
type Course struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OrgName        string    `json:"orgName,omitempty"`
	OrgID          int64     `json:"orgId,omitempty"`
	InstallationID int64     `json:"installationId,omitempty"`
	CanvasCourseID string    `json:"canvasCourseId,omitempty"`
	CanvasToken    string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasOrg reports whether the course is linked to a GitHub organization
// through an app installation.
func (c Course) HasOrg() bool {
	return c.OrgName != "" && c.InstallationID != 0
}

// HasCanvas reports whether the course is linked to a Canvas course.
func (c Course) HasCanvas() bool {
	return c.CanvasCourseID != ""
}

// Person is the shape shared by students and staff.
type Person struct {
	ID          int64     `json:"id"`
	CourseID    int64     `json:"courseId"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	GithubID    int64     `json:"githubId,omitempty"`
	GithubLogin string    `json:"githubLogin,omitempty"`
	OrgStatus   OrgStatus `json:"orgStatus"`
}

// DisplayName returns "First Last", falling back to the email.
func (p Person) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.Email
	}
}

// Student is an enrolled roster entry.
type Student struct {
	Person
	StudentID string `json:"studentId,omitempty"` // institutional perm number
}

// Staff is an instructor or TA roster entry.
type Staff struct {
	Person
}

// Team is a course team, optionally mirrored as a Canvas group and a GitHub team.
type Team struct {
	ID            int64        `json:"id"`
	CourseID      int64        `json:"courseId"`
	Name          string       `json:"name"`
	CanvasGroupID int64        `json:"canvasGroupId,omitempty"`
	GithubTeamID  int64        `json:"githubTeamId,omitempty"`
	Members       []TeamMember `json:"members,omitempty"`
}

// HasStudent reports whether the student is already linked to the team.
func (t *Team) HasStudent(studentID int64) bool {
	for _, m := range t.Members {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}

// TeamMember links a team to a roster student.
type TeamMember struct {
	ID        int64      `json:"id"`
	TeamID    int64      `json:"teamId"`
	StudentID int64      `json:"studentId"`
	Status    TeamStatus `json:"status"`

	// Student is loaded alongside the link by repositories; it is never written through it.
	Student *Student `json:"student,omitempty"`
}

// Login returns the linked student's GitHub login, or "" when unknown.
func (m TeamMember) Login() string {
	if m.Student == nil {
		return ""
	}
	return m.Student.GithubLogin
}
