package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/analyzer"
	"github.com/svylabs/ilumina/internal/blob"
	"github.com/svylabs/ilumina/internal/gitrepo"
	"github.com/svylabs/ilumina/internal/orchestrator"
	"github.com/svylabs/ilumina/internal/queue"
	"github.com/svylabs/ilumina/internal/runner"
	"github.com/svylabs/ilumina/internal/scaffold"
	"github.com/svylabs/ilumina/internal/store"
	anthropicpkg "github.com/svylabs/ilumina/pkg/anthropic"
)

// orchestratorEnv holds the initialized clients and the orchestrator
// needed by the serve/analyze/simulations commands.
type orchestratorEnv struct {
	Store store.Store
	Blob  blob.Store
	Queue *queue.HTTPQueue
	Git   *gitrepo.Git
	Orch  *orchestrator.Orchestrator
}

// Close drains in-flight task dispatch and releases the store.
func (e *orchestratorEnv) Close() {
	if e.Queue != nil {
		e.Queue.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, blob backend, queue, LLM client, and the
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*orchestratorEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	blobs, err := initBlob(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tasks := queue.NewHTTP(queue.HTTPQueueConfig{
		HandlerBaseURL: cfg.Queue.HandlerBaseURL,
		Secret:         cfg.Queue.Secret,
		DefaultDelay:   time.Duration(cfg.Queue.DefaultDelaySecs) * time.Second,
		DispatchPerSec: cfg.Queue.DispatchPerSec,
	})

	llm := analyzer.New(anthropicpkg.NewClient(cfg.Anthropic.Key), analyzer.Config{
		Model:       cfg.Anthropic.Model,
		ReviewModel: cfg.Anthropic.ReviewModel,
		MaxTokens:   cfg.Anthropic.MaxTokens,
	})

	run := runner.New(time.Duration(cfg.Runner.TimeoutSecs) * time.Second)
	git := gitrepo.New(run)
	sc := scaffold.New(git, cfg.Simulation.TemplateRepo, cfg.Workspace.RootDir)

	orch := orchestrator.New(st, blobs, tasks, llm, sc, git, run, orchestrator.Config{
		MaxSimultaneousRuns: cfg.Simulation.MaxSimultaneousRuns,
		SplitDelay:          time.Duration(cfg.Simulation.SplitDelaySecs) * time.Second,
	})

	zap.L().Info("orchestrator initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", cfg.Blob.Backend),
		zap.String("model", cfg.Anthropic.Model),
	)

	return &orchestratorEnv{
		Store: st,
		Blob:  blobs,
		Queue: tasks,
		Git:   git,
		Orch:  orch,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ilumina.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBlob(ctx context.Context) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "fs":
		return blob.NewFS(cfg.Blob.RootDir)
	case "minio":
		return blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
	default:
		return nil, eris.Errorf("unsupported blob backend: %s", cfg.Blob.Backend)
	}
}
