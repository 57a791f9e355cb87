// Package engine composes the queue, selector, validator, recovery and
// metrics components into a bounded worker pool with periodic persistence,
// state export, and progress reporting.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/calder/foreman/internal/agent"
	"github.com/calder/foreman/internal/config"
	"github.com/calder/foreman/internal/history"
	"github.com/calder/foreman/internal/logger"
	"github.com/calder/foreman/internal/metrics"
	"github.com/calder/foreman/internal/models"
	"github.com/calder/foreman/internal/queue"
	"github.com/calder/foreman/internal/recovery"
	"github.com/calder/foreman/internal/selector"
	"github.com/calder/foreman/internal/validator"
)

// callRetries bounds the inner retry-with-backoff loop around a single
// executor invocation. Task-level retries are tracked on the task record.
const callRetries = 2

// Engine owns the worker pool and the engine lifecycle. It never touches
// queue or metrics internals directly: all shared state mutation goes
// through their already-synchronized methods.
type Engine struct {
	cfg       *config.Config
	queue     *queue.TaskQueue
	selector  *selector.ModelSelector
	rotation  *selector.RotationManager
	validator *validator.Validator
	recovery  *recovery.Manager
	metrics   *metrics.Collector
	executor  agent.Executor
	history   *history.Store // optional
	log       *logger.Console

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	completed int // completed count at last progress tick
}

// Deps carries the engine's collaborators. Nil optional fields pick
// defaults; Executor and Config are required.
type Deps struct {
	Config    *config.Config
	Queue     *queue.TaskQueue
	Selector  *selector.ModelSelector
	Rotation  *selector.RotationManager
	Validator *validator.Validator
	Recovery  *recovery.Manager
	Metrics   *metrics.Collector
	Executor  agent.Executor
	History   *history.Store
	Logger    *logger.Console
}

// New wires an Engine from its dependencies.
func New(deps Deps) (*Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("engine requires a config")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("engine requires an executor")
	}

	e := &Engine{
		cfg:       deps.Config,
		queue:     deps.Queue,
		selector:  deps.Selector,
		rotation:  deps.Rotation,
		validator: deps.Validator,
		recovery:  deps.Recovery,
		metrics:   deps.Metrics,
		executor:  deps.Executor,
		history:   deps.History,
		log:       deps.Logger,
	}
	if e.queue == nil {
		e.queue = queue.New(deps.Config.QueueCapacity)
	}
	if e.log == nil {
		e.log = logger.NewConsole(os.Stderr, deps.Config.LogLevel)
	}
	if e.selector == nil {
		e.selector = selector.New(selector.DefaultCatalog(), deps.Config.Selector.MaxModelFailures)
	}
	if e.rotation == nil {
		chain := make([]string, 0)
		for _, m := range e.selector.Catalog() {
			chain = append(chain, m.ID)
		}
		e.rotation = selector.NewRotationManager(chain,
			deps.Config.Rotation.RotateThreshold,
			deps.Config.Rotation.BreakerThreshold,
			e.log)
	}
	if e.validator == nil {
		e.validator = validator.New()
	}
	if e.recovery == nil {
		e.recovery = recovery.NewManager(nil, nil, deps.Config.Recovery.AllowMockFallback)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewCollector()
	}
	return e, nil
}

// Submit accepts a task into the queue and returns its ID. A zero
// MaxRetries picks up the configured default.
func (e *Engine) Submit(task *models.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task cannot be nil")
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = e.cfg.MaxRetries
	}
	return e.queue.Enqueue(task)
}

// Status returns a copy of the task record.
func (e *Engine) Status(taskID string) (*models.Task, error) {
	return e.queue.Get(taskID)
}

// Stats returns queue counts by status.
func (e *Engine) Stats() queue.QueueStats {
	return e.queue.Stats()
}

// MetricsSummary returns system and per-model execution aggregates.
func (e *Engine) MetricsSummary() models.MetricsSummary {
	return e.metrics.Summary()
}

// Start launches the worker pool and the three periodic background jobs:
// state export, durable persistence, and progress reporting. Start is
// idempotent while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	e.log.Infof("engine starting: %d workers, queue capacity %d", e.cfg.Workers, e.cfg.QueueCapacity)

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}

	e.wg.Add(3)
	go e.exportJob(ctx)
	go e.persistJob(ctx)
	go e.progressJob(ctx)

	return nil
}

// Stop cancels workers and background jobs, waits for their
// acknowledgement, then performs one final synchronous save. No executor
// call outlives Stop.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.log.LogShutdown("cancelling workers and background jobs")
	cancel()
	e.wg.Wait()

	e.log.LogShutdown("final queue save")
	if err := e.queue.SaveToFile(e.cfg.QueuePath()); err != nil {
		e.log.Errorf("final save failed: %v", err)
	}
	e.log.LogShutdown("complete")
}

// Running reports whether the engine has been started and not yet stopped.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// worker loops on the queue until cancelled, sleeping briefly on empty
// dequeues rather than busy-spinning.
func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()

	e.log.Debugf("worker %d started", id)
	for {
		if ctx.Err() != nil {
			e.log.Debugf("worker %d stopping", id)
			return
		}

		// An open failover breaker halts dispatch entirely; tasks stay
		// queued until the cooldown lets a probe through.
		if e.rotation.BreakerOpen() {
			select {
			case <-ctx.Done():
				e.log.Debugf("worker %d stopping", id)
				return
			case <-time.After(e.cfg.PollInterval):
			}
			continue
		}

		task := e.queue.Dequeue()
		if task == nil {
			select {
			case <-ctx.Done():
				e.log.Debugf("worker %d stopping", id)
				return
			case <-time.After(e.cfg.PollInterval):
			}
			continue
		}

		e.executeTask(ctx, task)
	}
}

// executeTask runs one execution attempt for a dequeued task. Exactly one
// metrics record is appended per attempt, success or failure, regardless of
// which branch is taken.
func (e *Engine) executeTask(ctx context.Context, task *models.Task) {
	attempt := task.RetryCount + 1
	rec := models.ExecutionRecord{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	}
	defer func() {
		e.metrics.RecordExecution(rec)
		e.recordHistory(ctx, rec)
	}()

	model := e.selector.SelectModel(models.Requirements{
		Category:       task.Type,
		MinQuality:     e.cfg.Selector.MinQuality,
		PreferredModel: e.rotation.Current(),
	})
	if model == nil {
		rec.Error = fmt.Sprintf("no available model for category %q", task.Type)
		e.failTask(task.ID, rec.Error)
		return
	}
	rec.ModelID = model.ID

	e.log.LogTaskStart(task.ID, task.Type, model.ID, attempt)

	start := time.Now()
	output, execErr := e.invokeWithRetry(ctx, task, model.ID)
	rec.Duration = time.Since(start)

	if execErr != nil {
		rec.Error = execErr.Error()
		e.handleExecutionError(task, model.ID, execErr)
		return
	}

	// Invocation succeeded; gate completion behind validation.
	vr := e.validator.Validate(&validator.Artifact{
		Content: output,
		Path:    task.TargetPath,
	})
	rec.ValidationScore = vr.Score
	rec.ValidationPass = vr.Passed

	e.selector.MarkSuccess(model.ID)
	e.rotation.OnSuccess(model.ID, rec.Duration)

	if vr.Passed {
		rec.Success = true
		result := map[string]interface{}{
			"output":           output,
			"model_id":         model.ID,
			"validation_score": vr.Score,
		}
		if len(vr.Warnings) > 0 {
			result["validation_warnings"] = vr.Warnings
		}
		if err := e.queue.MarkCompleted(task.ID, result); err != nil {
			e.log.Errorf("mark completed %s: %v", task.ID, err)
			return
		}
		e.log.LogTaskComplete(task.ID, rec.Duration, vr.Score)
		return
	}

	reason := fmt.Sprintf("validation failed: %s", strings.Join(vr.Errors, "; "))
	rec.Error = reason
	if task.CanRetry() {
		if err := e.queue.Requeue(task.ID, nil); err != nil {
			e.log.Errorf("requeue %s: %v", task.ID, err)
			e.failTask(task.ID, reason)
			return
		}
		e.log.LogTaskRequeue(task.ID, task.RetryCount+1, task.MaxRetries, reason)
		return
	}
	e.failTask(task.ID, reason)
}

// invokeWithRetry calls the executor through the recovery manager inside a
// bounded retry-with-backoff loop, under the per-call timeout. Strategy
// selection comes from the recovery layer; the delay and attempt counting
// happen here.
func (e *Engine) invokeWithRetry(ctx context.Context, task *models.Task, modelID string) (string, error) {
	var lastErr error

	for call := 0; call <= callRetries; call++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, recResult, err := e.recovery.ExecuteWithRecovery(ctx, task.ID, modelID, call+1,
			func(opCtx context.Context) (map[string]interface{}, error) {
				res, execErr := e.executor.Execute(opCtx, agent.Request{
					Description: task.Description,
					Workspace:   workspaceFor(task),
					Timeout:     e.cfg.TaskTimeout,
				})
				if execErr != nil {
					return nil, execErr
				}
				if !res.Success {
					return nil, fmt.Errorf("executor reported failure: %s", res.Error)
				}
				return map[string]interface{}{"output": res.Output}, nil
			})

		if err == nil {
			if result != nil {
				if out, ok := result["output"].(string); ok {
					return out, nil
				}
			}
			// FALLBACK_MOCK substitute result.
			if recResult != nil && recResult.Recovered {
				if content, ok := recResult.Substitute["content"].(string); ok {
					return content, nil
				}
			}
			return "", fmt.Errorf("executor returned no output")
		}

		lastErr = err
		if recResult == nil {
			return "", err
		}

		switch recResult.Strategy {
		case recovery.StrategyRetry:
			continue
		case recovery.StrategyRetryWithBackoff:
			delay := recovery.Backoff(call, e.cfg.Recovery.BaseBackoff, e.cfg.Recovery.MaxBackoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			continue
		default:
			// FALLBACK_MODEL, CIRCUIT_BREAK, ESCALATE: re-raise to the task
			// level, where requeue/failover/abandonment is decided.
			return "", err
		}
	}
	return "", lastErr
}

// handleExecutionError applies the task-level failure policy: rate-limited
// calls with retries remaining go back to the queue with a not-before delay
// so the next dequeue re-selects a model; everything else fails the task
// with the verbatim error text.
func (e *Engine) handleExecutionError(task *models.Task, modelID string, execErr error) {
	e.selector.MarkFailure(modelID)

	if recovery.IsRateLimited(execErr) {
		e.rotation.OnRateLimit(modelID)
	} else {
		e.rotation.OnFailure(modelID)
	}
	if e.rotation.ShouldRotate() {
		e.rotation.Next()
	}

	if recovery.IsRateLimited(execErr) && task.CanRetry() {
		notBefore := time.Now().UTC().Add(recovery.Backoff(task.RetryCount, e.cfg.Recovery.BaseBackoff, e.cfg.Recovery.MaxBackoff))
		if err := e.queue.Requeue(task.ID, &notBefore); err != nil {
			e.log.Errorf("requeue %s: %v", task.ID, err)
			e.failTask(task.ID, execErr.Error())
			return
		}
		e.log.LogTaskRequeue(task.ID, task.RetryCount+1, task.MaxRetries, "rate limited")
		return
	}

	e.failTask(task.ID, execErr.Error())
}

func (e *Engine) failTask(taskID, reason string) {
	if err := e.queue.MarkFailed(taskID, reason); err != nil {
		e.log.Errorf("mark failed %s: %v", taskID, err)
		return
	}
	e.log.LogTaskFail(taskID, reason)
}

// workspaceFor resolves the working directory an executor call should run
// in: explicit metadata wins, then the task's target path.
func workspaceFor(task *models.Task) string {
	if ws, ok := task.Metadata["workspace"].(string); ok && ws != "" {
		return ws
	}
	return task.TargetPath
}

// recordHistory best-effort persists one attempt record; history is
// observability-only and never blocks execution.
func (e *Engine) recordHistory(ctx context.Context, rec models.ExecutionRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordExecution(ctx, rec); err != nil {
		e.log.Debugf("history record failed: %v", err)
	}
}
