package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/stackgen/internal/app/migrate"
	"github.com/splax/stackgen/internal/git"
	httpx "github.com/splax/stackgen/internal/http"
	"github.com/splax/stackgen/internal/repository/postgres"
	"github.com/splax/stackgen/internal/service/artifact"
	"github.com/splax/stackgen/internal/service/history"
	"github.com/splax/stackgen/internal/service/publish"
	"github.com/splax/stackgen/internal/workspace"
	"github.com/splax/stackgen/internal/ws"
	"github.com/splax/stackgen/pkg/config"
	"github.com/splax/stackgen/pkg/crypto"
	jwtpkg "github.com/splax/stackgen/pkg/jwt"
	"github.com/splax/stackgen/pkg/logger"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for the given subject and exit")
	skipMigrations := flag.Bool("skip-migrations", false, "do not apply database migrations on startup")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			log.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	if *skipMigrations || !cfg.AutoMigrate {
		log.Info("skipping database migrations")
	} else if err := applyMigrations(ctx, cfg, log); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	sealer, err := crypto.NewSealer(cfg.TokenEncryptionKey)
	if err != nil {
		log.Error("invalid token encryption key", "error", err)
		os.Exit(1)
	}
	workspaces, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Error("workspace unavailable", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	defer hub.Close()

	historySvc := history.New(repo, hub, sealer, log, history.Options{
		DefaultLimit: cfg.HistoryLimit,
		MaxLimit:     cfg.HistoryMaxLimit,
	})
	publisher := publish.New(selectGitClient(cfg, log), workspaces, log, publish.Options{
		BaseURL: cfg.GitBaseURL,
		Branch:  cfg.PublishBranch,
		Author:  git.Signature{Name: cfg.CommitAuthorName, Email: cfg.CommitAuthorEmail},
		Timeout: cfg.GitTimeout,
	})
	artifactSvc := artifact.New(publisher, historySvc, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}
	if cfg.AuthSecret == "" {
		log.Warn("AUTH_SECRET not set; mutating endpoints are unauthenticated")
	}

	router := httpx.NewRouter(log, artifactSvc, historySvc, hub, limiter, cfg.AuthSecret, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "git_backend", cfg.GitBackend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func applyMigrations(ctx context.Context, cfg config.APIConfig, log *slog.Logger) error {
	migrations, source, err := migrate.Source(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	runner, err := migrate.Open(ctx, cfg.DatabaseURL, migrations, log)
	if err != nil {
		return err
	}
	defer runner.Close()
	log.Info("applying migrations", "source", source)
	return runner.Up(ctx)
}

// selectGitClient honours GIT_BACKEND and falls back to go-git when the git
// binary is missing.
func selectGitClient(cfg config.APIConfig, log *slog.Logger) git.Client {
	switch strings.ToLower(cfg.GitBackend) {
	case config.GitBackendGoGit:
		return git.NewGoGitClient()
	case config.GitBackendExec, "":
		client := git.NewExecClient()
		if err := client.Available(); err != nil {
			log.Warn("git binary unavailable, using in-process git", "error", err)
			return git.NewGoGitClient()
		}
		return client
	default:
		log.Warn("unknown git backend, using exec", "backend", cfg.GitBackend)
		return git.NewExecClient()
	}
}

func printToken(cfg config.APIConfig, subject string) error {
	if cfg.AuthSecret == "" {
		return errors.New("AUTH_SECRET must be set to issue tokens")
	}
	token, err := jwtpkg.GenerateToken(subject, "api", cfg.AuthSecret, cfg.AuthTokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
