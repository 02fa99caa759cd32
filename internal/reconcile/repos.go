package reconcile

import (
	"context"
	"coursesync/internal/gateway"
	"coursesync/internal/job"
	"coursesync/internal/roster"
	"fmt"
)

// Collaborator permissions accepted by CreateStudentRepos.
var repoPermissions = map[string]bool{
	"pull": true, "triage": true, "push": true, "maintain": true, "admin": true,
}

// CreateStudentRepos provisions one "<prefix>-<login>" repository per
// student with a GitHub login and grants the student access to it.
type CreateStudentRepos struct {
	Course     roster.Course
	Prefix     string
	Private    bool
	Permission string
	Students   roster.StudentRepository
	Tokens     gateway.TokenIssuer
	Repos      gateway.Repositories
}

func (CreateStudentRepos) Kind() string { return "create-repos" }

func (t CreateStudentRepos) Run(ctx context.Context, jc *job.Context) error {
	org, err := gateway.OrgFor(ctx, t.Tokens, t.Course)
	if err != nil {
		return err
	}
	students, err := t.Students.ListByCourse(ctx, t.Course.ID)
	if err != nil {
		return fmt.Errorf("loading students: %w", err)
	}

	var created, existing, skipped, failed int
	for _, st := range students {
		if st.GithubLogin == "" {
			skipped++
			continue
		}
		name := t.Prefix + "-" + st.GithubLogin

		isNew, err := t.Repos.CreateRepository(ctx, org, name, t.Private)
		if err != nil {
			jc.Logf("Failed to create %s: %v", name, err)
			failed++
			continue
		}
		if isNew {
			created++
		} else {
			existing++
		}

		if err := t.Repos.AddCollaborator(ctx, org, name, st.GithubLogin, t.Permission); err != nil {
			jc.Logf("Failed to add %s to %s: %v", st.GithubLogin, name, err)
			failed++
		}
	}

	jc.Logf("Repositories: %d created, %d already existed, %d students without login, %d failures",
		created, existing, skipped, failed)
	jc.Log("Done")
	return nil
}
