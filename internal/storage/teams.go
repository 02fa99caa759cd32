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

const memberJoin = `SELECT tm.id, tm.team_id, tm.student_id, tm.status,
        s.id, s.course_id, s.email, s.first_name, s.last_name, s.github_id, s.github_login, s.org_status, s.student_id
    FROM team_members tm JOIN students s ON s.id = tm.student_id`

// TeamStore reads and writes teams and their member links.
type TeamStore struct {
	db *db.DB
}

// NewTeamStore creates a team store.
func NewTeamStore(d *db.DB) *TeamStore {
	return &TeamStore{db: d}
}

// Get returns a team with its members.
func (s *TeamStore) Get(ctx context.Context, id int64) (*roster.Team, error) {
	t := &roster.Team{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, name, canvas_group_id, github_team_id FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.CourseID, &t.Name, &t.CanvasGroupID, &t.GithubTeamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("team", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("getting team: %w", err)
	}

	members, err := s.queryMembers(ctx, memberJoin+` WHERE tm.team_id = ? ORDER BY tm.id`, id)
	if err != nil {
		return nil, err
	}
	t.Members = members
	return t, nil
}

// ListByCourse returns the course's teams ordered by id, members loaded.
func (s *TeamStore) ListByCourse(ctx context.Context, courseID int64) ([]roster.Team, error) {
	teams, err := s.listTeams(ctx, courseID)
	if err != nil {
		return nil, err
	}
	members, err := s.queryMembers(ctx,
		memberJoin+` JOIN teams t ON t.id = tm.team_id WHERE t.course_id = ? ORDER BY tm.id`, courseID)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(teams))
	for i, t := range teams {
		index[t.ID] = i
	}
	for _, m := range members {
		if i, ok := index[m.TeamID]; ok {
			teams[i].Members = append(teams[i].Members, m)
		}
	}
	return teams, nil
}

func (s *TeamStore) listTeams(ctx context.Context, courseID int64) ([]roster.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, name, canvas_group_id, github_team_id FROM teams WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []roster.Team
	for rows.Next() {
		var t roster.Team
		if err := rows.Scan(&t.ID, &t.CourseID, &t.Name, &t.CanvasGroupID, &t.GithubTeamID); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *TeamStore) queryMembers(ctx context.Context, query string, arg int64) ([]roster.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer rows.Close()

	var members []roster.TeamMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func scanMember(row scanner) (*roster.TeamMember, error) {
	m := &roster.TeamMember{Student: &roster.Student{}}
	dest := append([]any{&m.ID, &m.TeamID, &m.StudentID, &m.Status}, personFields(&m.Student.Person)...)
	dest = append(dest, &m.Student.StudentID)
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning team member: %w", err)
	}
	return m, nil
}

// Save upserts the team and its member links in one transaction.
func (s *TeamStore) Save(ctx context.Context, team *roster.Team) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		return saveTeam(ctx, tx, team)
	})
}

// SaveAll saves every team in one transaction.
func (s *TeamStore) SaveAll(ctx context.Context, teams []*roster.Team) error {
	if len(teams) == 0 {
		return nil
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, t := range teams {
			if err := saveTeam(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveTeam(ctx context.Context, tx *sql.Tx, t *roster.Team) error {
	if t.ID == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO teams (course_id, name, canvas_group_id, github_team_id) VALUES (?, ?, ?, ?)`,
			t.CourseID, t.Name, t.CanvasGroupID, t.GithubTeamID)
		if err != nil {
			return fmt.Errorf("creating team %q: %w", t.Name, err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`UPDATE teams SET name = ?, canvas_group_id = ?, github_team_id = ? WHERE id = ?`,
			t.Name, t.CanvasGroupID, t.GithubTeamID, t.ID)
		if err != nil {
			return fmt.Errorf("updating team %q: %w", t.Name, err)
		}
	}

	for i := range t.Members {
		m := &t.Members[i]
		m.TeamID = t.ID
		if m.ID != 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE team_members SET status = ? WHERE id = ?`, m.Status, m.ID); err != nil {
				return fmt.Errorf("updating team member %d: %w", m.ID, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, student_id, status) VALUES (?, ?, ?)
			 ON CONFLICT(team_id, student_id) DO UPDATE SET status = excluded.status`,
			m.TeamID, m.StudentID, m.Status)
		if err != nil {
			return fmt.Errorf("adding member %d to team %q: %w", m.StudentID, t.Name, err)
		}
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM team_members WHERE team_id = ? AND student_id = ?`, m.TeamID, m.StudentID,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("reading team member id: %w", err)
		}
	}
	return nil
}

// Delete removes a team; member links cascade.
func (s *TeamStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("team", strconv.FormatInt(id, 10))
	}
	return nil
}

// TeamMemberStore reads and writes single team member links.
type TeamMemberStore struct {
	db *db.DB
}

// NewTeamMemberStore creates a team member store.
func NewTeamMemberStore(d *db.DB) *TeamMemberStore {
	return &TeamMemberStore{db: d}
}

// Get returns the link with its student.
func (s *TeamMemberStore) Get(ctx context.Context, id int64) (*roster.TeamMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, memberJoin+` WHERE tm.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("team member", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateStatus sets the link's team status.
func (s *TeamMemberStore) UpdateStatus(ctx context.Context, id int64, status roster.TeamStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE team_members SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating team member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("team member", strconv.FormatInt(id, 10))
	}
	return nil
}

// Delete removes a link.
func (s *TeamMemberStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("team member", strconv.FormatInt(id, 10))
	}
	return nil
}

// DeleteByStudent removes every link of a student and reports how many went.
func (s *TeamMemberStore) DeleteByStudent(ctx context.Context, studentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE student_id = ?`, studentID)
	if err != nil {
		return 0, fmt.Errorf("deleting team memberships: %w", err)
	}
	return res.RowsAffected()
}

var (
	_ roster.TeamRepository       = (*TeamStore)(nil)
	_ roster.TeamMemberRepository = (*TeamMemberStore)(nil)
)
