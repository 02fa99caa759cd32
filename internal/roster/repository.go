package roster

import "context"

// Repository lookups return an error matching apperrors.ErrNotFound when
// the id does not exist.

// CourseRepository reads courses.
type CourseRepository interface {
	Get(ctx context.Context, id int64) (*Course, error)
	// ListLinked returns every course linked to a GitHub organization.
	ListLinked(ctx context.Context) ([]Course, error)
}

// StudentRepository reads and writes roster students.
type StudentRepository interface {
	Get(ctx context.Context, id int64) (*Student, error)
	ListByCourse(ctx context.Context, courseID int64) ([]Student, error)
	// SaveAll updates the given students in a single transaction.
	SaveAll(ctx context.Context, students []Student) error
}

// StaffRepository reads and writes course staff.
type StaffRepository interface {
	Get(ctx context.Context, id int64) (*Staff, error)
	ListByCourse(ctx context.Context, courseID int64) ([]Staff, error)
	SaveAll(ctx context.Context, staff []Staff) error
}

// TeamRepository reads and writes teams together with their member links.
type TeamRepository interface {
	Get(ctx context.Context, id int64) (*Team, error)
	// ListByCourse returns the course's teams with members (and their students) loaded.
	ListByCourse(ctx context.Context, courseID int64) ([]Team, error)
	// Save upserts the team row and its member links; new rows get their ids assigned.
	Save(ctx context.Context, team *Team) error
	// SaveAll saves several teams in one transaction.
	SaveAll(ctx context.Context, teams []*Team) error
	Delete(ctx context.Context, id int64) error
}

// TeamMemberRepository reads and writes individual team member links.
type TeamMemberRepository interface {
	// Get returns the link with its Student loaded.
	Get(ctx context.Context, id int64) (*TeamMember, error)
	UpdateStatus(ctx context.Context, id int64, status TeamStatus) error
	Delete(ctx context.Context, id int64) error
	// DeleteByStudent drops every team link of a student.
	DeleteByStudent(ctx context.Context, studentID int64) (int64, error)
}
