package storage

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/db"
	"coursesync/internal/roster"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const personColumns = `id, course_id, email, first_name, last_name, github_id, github_login, org_status`

func personFields(p *roster.Person) []any {
	return []any{&p.ID, &p.CourseID, &p.Email, &p.FirstName, &p.LastName, &p.GithubID, &p.GithubLogin, &p.OrgStatus}
}

// StudentStore reads and writes roster students.
type StudentStore struct {
	db *db.DB
}

// NewStudentStore creates a student store.
func NewStudentStore(d *db.DB) *StudentStore {
	return &StudentStore{db: d}
}

// Create inserts a student and assigns its id.
func (s *StudentStore) Create(ctx context.Context, st *roster.Student) error {
	if st.OrgStatus == "" {
		st.OrgStatus = roster.OrgStatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO students (course_id, email, first_name, last_name, student_id, github_id, github_login, org_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.CourseID, st.Email, st.FirstName, st.LastName, st.StudentID, st.GithubID, st.GithubLogin, st.OrgStatus,
	)
	if err != nil {
		return fmt.Errorf("creating student: %w", err)
	}
	st.ID, err = res.LastInsertId()
	return err
}

// Get returns a student by id.
func (s *StudentStore) Get(ctx context.Context, id int64) (*roster.Student, error) {
	st := &roster.Student{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+`, student_id FROM students WHERE id = ?`, id,
	).Scan(append(personFields(&st.Person), &st.StudentID)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("student", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("getting student: %w", err)
	}
	return st, nil
}

// ListByCourse returns the course roster ordered by id.
func (s *StudentStore) ListByCourse(ctx context.Context, courseID int64) ([]roster.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+`, student_id FROM students WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer rows.Close()

	var students []roster.Student
	for rows.Next() {
		var st roster.Student
		if err := rows.Scan(append(personFields(&st.Person), &st.StudentID)...); err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// SaveAll writes the mutable fields of every student in one transaction.
func (s *StudentStore) SaveAll(ctx context.Context, students []roster.Student) error {
	people := make([]roster.Person, len(students))
	for i, st := range students {
		people[i] = st.Person
	}
	return savePeople(ctx, s.db, "students", people)
}

// StaffStore reads and writes course staff.
type StaffStore struct {
	db *db.DB
}

// NewStaffStore creates a staff store.
func NewStaffStore(d *db.DB) *StaffStore {
	return &StaffStore{db: d}
}

// Create inserts a staff member and assigns its id.
func (s *StaffStore) Create(ctx context.Context, st *roster.Staff) error {
	if st.OrgStatus == "" {
		st.OrgStatus = roster.OrgStatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO staff (course_id, email, first_name, last_name, github_id, github_login, org_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.CourseID, st.Email, st.FirstName, st.LastName, st.GithubID, st.GithubLogin, st.OrgStatus,
	)
	if err != nil {
		return fmt.Errorf("creating staff: %w", err)
	}
	st.ID, err = res.LastInsertId()
	return err
}

// Get returns a staff member by id.
func (s *StaffStore) Get(ctx context.Context, id int64) (*roster.Staff, error) {
	st := &roster.Staff{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM staff WHERE id = ?`, id,
	).Scan(personFields(&st.Person)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("staff", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("getting staff: %w", err)
	}
	return st, nil
}

// ListByCourse returns the course staff ordered by id.
func (s *StaffStore) ListByCourse(ctx context.Context, courseID int64) ([]roster.Staff, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM staff WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing staff: %w", err)
	}
	defer rows.Close()

	var staff []roster.Staff
	for rows.Next() {
		var st roster.Staff
		if err := rows.Scan(personFields(&st.Person)...); err != nil {
			return nil, fmt.Errorf("scanning staff: %w", err)
		}
		staff = append(staff, st)
	}
	return staff, rows.Err()
}

// SaveAll writes the mutable fields of every staff member in one transaction.
func (s *StaffStore) SaveAll(ctx context.Context, staff []roster.Staff) error {
	people := make([]roster.Person, len(staff))
	for i, st := range staff {
		people[i] = st.Person
	}
	return savePeople(ctx, s.db, "staff", people)
}

// savePeople updates identity and status columns; table is one of the two
// fixed roster tables, never user input.
func savePeople(ctx context.Context, d *db.DB, table string, people []roster.Person) error {
	if len(people) == 0 {
		return nil
	}
	return d.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE `+table+` SET email = ?, first_name = ?, last_name = ?, github_id = ?, github_login = ?, org_status = ?
			 WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("preparing %s update: %w", table, err)
		}
		defer stmt.Close()

		for _, p := range people {
			if _, err := stmt.ExecContext(ctx, p.Email, p.FirstName, p.LastName, p.GithubID, p.GithubLogin, p.OrgStatus, p.ID); err != nil {
				return fmt.Errorf("saving %s %d: %w", table, p.ID, err)
			}
		}
		return nil
	})
}

var (
	_ roster.StudentRepository = (*StudentStore)(nil)
	_ roster.StaffRepository   = (*StaffStore)(nil)
)
