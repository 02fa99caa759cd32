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
	"time"
)

const courseColumns = `id, name, org_name, org_id, installation_id, canvas_course_id, canvas_token, created_at`

// CourseStore reads and writes courses.
type CourseStore struct {
	db *db.DB
}

// NewCourseStore creates a course store.
func NewCourseStore(d *db.DB) *CourseStore {
	return &CourseStore{db: d}
}

// Create inserts a course and assigns its id.
func (s *CourseStore) Create(ctx context.Context, c *roster.Course) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (name, org_name, org_id, installation_id, canvas_course_id, canvas_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.OrgName, c.OrgID, c.InstallationID, c.CanvasCourseID, c.CanvasToken, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating course: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// Get returns a course by id.
func (s *CourseStore) Get(ctx context.Context, id int64) (*roster.Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("course", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("getting course: %w", err)
	}
	return c, nil
}

// ListLinked returns the courses linked to a GitHub organization.
func (s *CourseStore) ListLinked(ctx context.Context) ([]roster.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses
		 WHERE org_name != '' AND installation_id != 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing linked courses: %w", err)
	}
	defer rows.Close()

	var courses []roster.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (*roster.Course, error) {
	c := &roster.Course{}
	err := row.Scan(&c.ID, &c.Name, &c.OrgName, &c.OrgID, &c.InstallationID, &c.CanvasCourseID, &c.CanvasToken, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ roster.CourseRepository = (*CourseStore)(nil)
