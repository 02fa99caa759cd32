package main

import (
	"context"
	"coursesync/internal/config"
	"coursesync/internal/db"
	"coursesync/internal/gateway/canvas"
	"coursesync/internal/gateway/github"
	"coursesync/internal/gateway/rest"
	"coursesync/internal/job"
	"coursesync/internal/observability"
	"coursesync/internal/reconcile"
	"coursesync/internal/roster"
	"coursesync/internal/storage"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const userAgent = "coursesync"

// app holds the long-lived components shared by every command.
type app struct {
	db             *db.DB
	runner         *job.Runner
	service        *reconcile.Service
	metrics        *observability.Metrics
	metricsHandler http.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.GitHub.AppID == 0 {
		return nil, errors.New("github.app_id and github.private_key_file are required")
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	privateKey, err := config.ReadSecretFile(cfg.GitHub.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading GitHub App private key: %w", err)
	}
	githubAPI, err := rest.New("github", gatewayConfig(cfg.Gateway, cfg.GitHub.APIURL, map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": github.APIVersion,
	}), metrics)
	if err != nil {
		return nil, err
	}
	tokens, err := github.NewTokenIssuer(githubAPI, cfg.GitHub.AppID, []byte(privateKey))
	if err != nil {
		return nil, err
	}
	gh := github.New(githubAPI)

	var canvasAPI *rest.Client
	if cfg.Canvas.BaseURL != "" {
		canvasAPI, err = rest.New("canvas", gatewayConfig(cfg.Gateway, cfg.Canvas.BaseURL, nil), metrics)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Warn("Canvas is not configured; team imports will fail")
	}
	canvasToken, err := config.ReadSecretFile(cfg.Canvas.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading Canvas token: %w", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("Opened database", "path", database.Path())

	runner := job.NewRunner(storage.NewJobStore(database), metrics)
	service := reconcile.NewService(runner, reconcile.Deps{
		Courses:      storage.NewCourseStore(database),
		Students:     storage.NewStudentStore(database),
		Staff:        storage.NewStaffStore(database),
		Teams:        storage.NewTeamStore(database),
		TeamMembers:  storage.NewTeamMemberStore(database),
		Tokens:       tokens,
		Org:          gh,
		GitHubTeams:  gh,
		Repositories: gh,
		Canvas:       canvas.New(canvasAPI, canvasToken),
		Email: roster.EmailRule{
			AliasDomain:     cfg.Email.AliasDomain,
			CanonicalDomain: cfg.Email.CanonicalDomain,
		},
	})

	return &app{
		db:             database,
		runner:         runner,
		service:        service,
		metrics:        metrics,
		metricsHandler: metricsHandler,
	}, nil
}

func gatewayConfig(g config.GatewayConfig, baseURL string, headers map[string]string) rest.Config {
	return rest.Config{
		BaseURL:    baseURL,
		Timeout:    g.Timeout,
		MaxRetries: g.MaxRetries,
		Backoff:    rest.BackoffConfig{Initial: g.BackoffInitial, Max: g.BackoffMax},
		Breaker:    rest.BreakerConfig{Threshold: g.BreakerThreshold, Cooldown: g.BreakerCooldown},
		UserAgent:  userAgent,
		Headers:    headers,
	}
}

// close waits up to ctx for running jobs, then closes the database.
func (a *app) close(ctx context.Context) {
	if err := a.runner.WaitContext(ctx); err != nil {
		slog.Warn("Jobs still running at shutdown; their status stays running", "error", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
