// Package executor runs shell commands on behalf of the agent, in the
// foreground for a single turn or detached as background tasks.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/chatclaw/internal/bus"
	chatotel "github.com/basket/chatclaw/internal/otel"
	"github.com/basket/chatclaw/internal/shared"
	"github.com/basket/chatclaw/internal/tasks"
)

const (
	defaultTimeout           = 60 * time.Second
	defaultBackgroundTimeout = 300 * time.Second
)

// Result is the outcome of one command.
type Result struct {
	Command  string
	Output   string
	Success  bool
	Duration time.Duration
}

// Config holds the dependencies for an Executor.
type Config struct {
	Logger            *slog.Logger
	Bus               *bus.Bus
	Registry          *tasks.Registry
	Metrics           *chatotel.Metrics
	Tracer            trace.Tracer
	Timeout           time.Duration // foreground; defaults to 60s
	BackgroundTimeout time.Duration // background tasks; defaults to 300s
}

// Executor runs commands through `sh -c`.
type Executor struct {
	logger    *slog.Logger
	bus       *bus.Bus
	registry  *tasks.Registry
	metrics   *chatotel.Metrics
	tracer    trace.Tracer
	timeout   time.Duration
	bgTimeout time.Duration

	wg sync.WaitGroup
}

func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	bgTimeout := cfg.BackgroundTimeout
	if bgTimeout <= 0 {
		bgTimeout = defaultBackgroundTimeout
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = chatotel.NoopTracer()
	}
	return &Executor{
		logger:    logger,
		bus:       cfg.Bus,
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		timeout:   timeout,
		bgTimeout: bgTimeout,
	}
}

// Run executes one command in the foreground with the configured timeout.
// The Result is always usable: failures and timeouts come back as
// Success=false with a descriptive Output, never as an error.
func (e *Executor) Run(ctx context.Context, command, workDir string) Result {
	return e.runWithTimeout(ctx, command, workDir, e.timeout)
}

func (e *Executor) runWithTimeout(ctx context.Context, command, workDir string, timeout time.Duration) Result {
	ctx, span := e.tracer.Start(ctx, "executor.run")
	defer span.End()
	span.SetAttributes(chatotel.AttrCommand.String(command))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	res := Result{Command: command, Duration: duration}
	switch {
	case runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Output = "Command timed out"
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Output = pickOutput(stdout.String(), stderr.String())
		} else {
			res.Output = fmt.Sprintf("Error: %v", runErr)
		}
	default:
		res.Success = true
		res.Output = pickOutput(stdout.String(), stderr.String())
	}

	e.logger.Info("command finished",
		"request_id", shared.RequestID(ctx),
		"command", command,
		"success", res.Success,
		"duration_ms", duration.Milliseconds())
	if e.metrics != nil {
		e.metrics.RecordCommand(ctx, duration, res.Success)
	}
	return res
}

// RunParallel executes the commands concurrently and returns results in
// the input order.
func (e *Executor) RunParallel(ctx context.Context, commands []string, workDir string) []Result {
	results := make([]Result, len(commands))
	var wg sync.WaitGroup
	for i, command := range commands {
		wg.Add(1)
		go func(i int, command string) {
			defer wg.Done()
			results[i] = e.Run(ctx, command, workDir)
		}(i, command)
	}
	wg.Wait()
	return results
}

// RunBackground registers the command as a task and runs it detached
// from the caller's context with the background timeout. Completion is
// announced on the bus so the channel can notify the chat.
func (e *Executor) RunBackground(ctx context.Context, userID, chatID int64, command, workDir string) *tasks.Task {
	task := e.registry.Create(userID, chatID, command)
	requestID := shared.RequestID(ctx)
	if e.metrics != nil {
		e.metrics.TasksSpawned.Add(ctx, 1)
		e.metrics.ActiveBackground.Add(ctx, 1)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if e.metrics != nil {
				e.metrics.ActiveBackground.Add(context.Background(), -1)
			}
			if r := recover(); r != nil {
				e.logger.Error("background task panicked", "task_id", task.ID, "panic", fmt.Sprint(r))
				_ = e.registry.Complete(task.ID, fmt.Sprintf("Error: panic: %v", r), false)
				e.announce(task.ID, chatID, command, fmt.Sprintf("Error: panic: %v", r), false)
			}
		}()

		if err := e.registry.MarkRunning(task.ID); err != nil {
			e.logger.Error("mark task running", "task_id", task.ID, "error", err)
			return
		}
		// Detached from the update that spawned it; the task outlives
		// the Telegram round-trip.
		bgCtx := shared.WithRequestID(context.Background(), requestID)
		res := e.runWithTimeout(bgCtx, command, workDir, e.bgTimeout)

		if err := e.registry.Complete(task.ID, res.Output, res.Success); err != nil {
			e.logger.Error("complete task", "task_id", task.ID, "error", err)
			return
		}
		e.announce(task.ID, chatID, command, res.Output, res.Success)
	}()
	return task
}

func (e *Executor) announce(taskID string, chatID int64, command, output string, success bool) {
	if e.bus == nil {
		return
	}
	topic := bus.TopicTaskDone
	if !success {
		topic = bus.TopicTaskFailed
	}
	e.bus.Publish(topic, bus.TaskFinishedEvent{
		TaskID:  taskID,
		ChatID:  chatID,
		Command: command,
		Output:  output,
		Success: success,
	})
}

// Wait blocks until all background tasks spawned so far have finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// pickOutput mirrors the user-facing convention: stdout when the command
// produced any, stderr otherwise, a placeholder when both are empty.
func pickOutput(stdout, stderr string) string {
	if stdout != "" {
		return stdout
	}
	if stderr != "" {
		return stderr
	}
	return "(no output)"
}
