package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/svylabs/ilumina/internal/resilience"
)

// HTTPQueue delivers tasks by POSTing to the step handler after a delay.
// Dispatch runs detached from the enqueuing request: a task enqueued from
// a finished HTTP handler still fires.
type HTTPQueue struct {
	baseURL string
	secret  string
	delay   time.Duration
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	wg sync.WaitGroup
}

// HTTPQueueConfig configures task delivery.
type HTTPQueueConfig struct {
	HandlerBaseURL string
	Secret         string
	DefaultDelay   time.Duration
	DispatchPerSec float64
}

// NewHTTP creates an HTTPQueue.
func NewHTTP(cfg HTTPQueueConfig) *HTTPQueue {
	delay := cfg.DefaultDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	perSec := cfg.DispatchPerSec
	if perSec <= 0 {
		perSec = 5
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("queue", "deliver")

	return &HTTPQueue{
		baseURL: cfg.HandlerBaseURL,
		secret:  cfg.Secret,
		delay:   delay,
		client:  &http.Client{Timeout: 15 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		retry:   retryCfg,
	}
}

// Enqueue schedules the task and returns its generated name immediately.
func (q *HTTPQueue) Enqueue(_ context.Context, task Task) (string, error) {
	if task.Step == "" {
		return "", eris.New("queue: task has no step")
	}

	name := "task-" + uuid.New().String()
	delay := task.Delay
	if delay <= 0 {
		delay = q.delay
	}

	q.wg.Add(1)
	go q.dispatch(name, task, delay)

	zap.L().Info("task enqueued",
		zap.String("task", name),
		zap.String("submission_id", task.SubmissionID),
		zap.String("step", string(task.Step)),
		zap.Duration("delay", delay),
	)
	return name, nil
}

// Wait blocks until all scheduled tasks have been dispatched. Used by
// graceful shutdown and tests.
func (q *HTTPQueue) Wait() {
	q.wg.Wait()
}

func (q *HTTPQueue) dispatch(name string, task Task, delay time.Duration) {
	defer q.wg.Done()
	time.Sleep(delay)

	ctx := context.Background()
	if err := q.limiter.Wait(ctx); err != nil {
		return
	}

	err := resilience.Do(ctx, q.retry, func(ctx context.Context) error {
		return q.deliver(ctx, task)
	})
	if err != nil {
		// At-least-once, not exactly-once: a lost delivery surfaces as a
		// stalled step and is recovered by re-POSTing it.
		zap.L().Error("task delivery failed",
			zap.String("task", name),
			zap.String("submission_id", task.SubmissionID),
			zap.String("step", string(task.Step)),
			zap.Error(err),
		)
	}
}

func (q *HTTPQueue) deliver(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "queue: marshal task")
	}

	url := q.baseURL + "/" + string(task.Step)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "queue: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+q.secret)

	resp, err := q.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "queue: post %s", url)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("queue: handler returned %d for %s", resp.StatusCode, task.Step)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
