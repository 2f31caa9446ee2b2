package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/blob"
	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/orchestrator"
	"github.com/svylabs/ilumina/internal/queue"
	"github.com/svylabs/ilumina/internal/store"
)

var servePort int

// stepEndpoints are the task-handler routes, one per executable step.
// begin_analysis is absent: its route doubles as intake and has its own
// handler.
var stepEndpoints = []model.Step{
	model.StepAnalyzeProject,
	model.StepAnalyzeActors,
	model.StepAnalyzeDeployment,
	model.StepImplementDeploymentScript,
	model.StepVerifyDeploymentScript,
	model.StepDebugDeploymentScript,
	model.StepScaffold,
	model.StepAnalyzeAllActions,
	model.StepAnalyzeAllSnapshots,
	model.StepImplementSnapshots,
	model.StepImplementAllActions,
	model.StepAnalyzeAction,
	model.StepAnalyzeSnapshot,
	model.StepImplementAction,
	model.StepCheckContractActionsAnalyzed,
	model.StepCheckContractActionsImplemented,
	model.StepCheckContractSnapshotsAnalyzed,
	model.StepRunSimulation,
	model.StepSplitBatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task-handler and API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := newRouter(env, cfg.Queue.Secret)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *orchestratorEnv, secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(secret))

		r.Post("/begin_analysis", handleBeginAnalysis(env))
		r.Post("/analyze", handleAnalyze(env))
		for _, step := range stepEndpoints {
			r.Post("/"+string(step), handleStep(env, step))
		}

		r.Route("/api/submission/{id}", func(r chi.Router) {
			r.Get("/", handleGetSubmission(env))
			r.Get("/history", handleHistory(env))
			r.Get("/summary", handleArtifact(env, model.StepAnalyzeProject, model.ArtifactProjectSummary))
			r.Get("/actors", handleArtifact(env, model.StepAnalyzeActors, model.ArtifactActorSummary))
			r.Get("/deployment", handleArtifact(env, model.StepAnalyzeDeployment, model.ArtifactDeploymentInstructions))

			r.Post("/simulations/new", handleNewSimulation(env))
			r.Get("/simulations/list", handleListSimulations(env))
			r.Post("/simulations/batch/new", handleNewBatch(env))
			r.Get("/simulations/batch/{batchID}/list", handleListBatch(env))
			r.Post("/simulations/batch/split", handleSplitBatch(env))
		})
	})

	return r
}

// bearerAuth rejects requests without the shared queue secret. An empty
// secret disables auth for local development.
func bearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && r.Header.Get("Authorization") != "Bearer "+secret {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleBeginAnalysis serves the /begin_analysis route in both of its
// roles. With a github_repository_url it is intake: validate the
// repository, create the submission, and enqueue the first step
// (re-POSTing an existing submission re-enqueues without recreating it).
// Without one it is the queue callback for the begin_analysis step and
// dispatches to the executor like any other step route.
func handleBeginAnalysis(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			queue.Task
			RepositoryURL string `json:"github_repository_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		if req.RepositoryURL == "" && req.SubmissionID != "" {
			task := req.Task
			task.Step = model.StepBeginAnalysis
			result, err := env.Orch.Execute(r.Context(), task)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
		if req.RepositoryURL == "" || req.SubmissionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "github_repository_url and submission_id are required"})
			return
		}

		ctx := r.Context()
		if _, err := env.Store.GetSubmission(ctx, req.SubmissionID); err != nil {
			if !eris.Is(err, store.ErrNotFound) {
				writeError(w, err)
				return
			}
			if err := env.Git.LsRemote(ctx, req.RepositoryURL); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": fmt.Sprintf("repository unreachable: %s", req.RepositoryURL),
				})
				return
			}
			if err := env.Store.CreateSubmission(ctx, &model.Submission{
				ID:            req.SubmissionID,
				RepositoryURL: req.RepositoryURL,
				Status:        model.StatusCreated,
			}); err != nil {
				writeError(w, err)
				return
			}
		}

		taskName, err := env.Queue.Enqueue(ctx, queue.Task{
			SubmissionID:   req.SubmissionID,
			Step:           model.StepBeginAnalysis,
			RequestContext: model.ContextBackground,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"task_name": taskName})
	}
}

// handleAnalyze is the router entry point: compute the next step for the
// submission and enqueue it.
func handleAnalyze(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SubmissionID string     `json:"submission_id"`
			Step         model.Step `json:"step,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		next, err := env.Orch.Route(r.Context(), req.SubmissionID, req.Step)
		if err != nil {
			writeError(w, err)
			return
		}
		if next == "" {
			writeJSON(w, http.StatusOK, map[string]string{"message": "pipeline complete"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("enqueued %s", next),
		})
	}
}

// handleStep executes one step per the task-queue callback contract.
// Step-level failures are recorded on the submission and answered 200 so
// the queue does not redeliver what is already handled.
func handleStep(env *orchestratorEnv, step model.Step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var task queue.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		task.Step = step

		result, err := env.Orch.Execute(r.Context(), task)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleGetSubmission(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := env.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

func handleHistory(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := env.Store.ListSubmissionLogs(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// handleArtifact reads a versioned artifact through the version the
// producing step recorded, never the latest blob written.
func handleArtifact(env *orchestratorEnv, producer model.Step, kind model.ArtifactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sub, err := env.Store.GetSubmission(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		version := sub.Metadata(producer).ArtifactVersion
		if version == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("no %s artifact recorded", kind),
			})
			return
		}

		var artifact json.RawMessage
		if err := blob.ReadArtifact(ctx, env.Blob, model.ArtifactVersion{
			SubmissionID: sub.ID,
			Kind:         kind,
			Version:      version,
		}, &artifact); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":  version,
			"artifact": artifact,
		})
	}
}

func handleNewSimulation(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Branch string `json:"branch,omitempty"`
		}
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck

		run, err := env.Orch.NewSimulationRun(r.Context(), chi.URLParam(r, "id"), req.Branch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleNewBatch(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NumSimulations int    `json:"num_simulations"`
			Branch         string `json:"branch,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		batch, err := env.Orch.NewBatch(r.Context(), chi.URLParam(r, "id"), req.NumSimulations, req.Branch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batch)
	}
}

func handleListSimulations(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := env.Store.ListSimulationRuns(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleListBatch(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := env.Store.ListBatchRuns(r.Context(), chi.URLParam(r, "batchID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleSplitBatch(env *orchestratorEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BatchID string `json:"batch_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BatchID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch_id is required"})
			return
		}

		result, err := env.Orch.Execute(r.Context(), queue.Task{
			SubmissionID:   chi.URLParam(r, "id"),
			Step:           model.StepSplitBatch,
			RequestContext: model.ContextBackground,
			SimulationID:   req.BatchID,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError maps store misses to 404, missing prerequisites to 400, and
// everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, orchestrator.ErrPrerequisite):
		status = http.StatusBadRequest
	}
	zap.L().Warn("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
