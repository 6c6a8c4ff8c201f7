package executor_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/basket/chatclaw/internal/bus"
	"github.com/basket/chatclaw/internal/executor"
	"github.com/basket/chatclaw/internal/tasks"
)

func newExecutor(t *testing.T, cfg executor.Config) *executor.Executor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return executor.New(cfg)
}

func TestRunPrefersStdout(t *testing.T) {
	exe := newExecutor(t, executor.Config{})
	res := exe.Run(context.Background(), "echo out; echo err 1>&2", "")
	if !res.Success {
		t.Fatalf("Run failed: %+v", res)
	}
	if !strings.Contains(res.Output, "out") || strings.Contains(res.Output, "err") {
		t.Errorf("output %q, want stdout only when stdout is non-empty", res.Output)
	}
}

func TestRunFallsBackToStderr(t *testing.T) {
	exe := newExecutor(t, executor.Config{})
	res := exe.Run(context.Background(), "echo err 1>&2", "")
	if !strings.Contains(res.Output, "err") {
		t.Errorf("output %q, want stderr when stdout is empty", res.Output)
	}
}

func TestRunEmptyOutputPlaceholder(t *testing.T) {
	exe := newExecutor(t, executor.Config{})
	res := exe.Run(context.Background(), "true", "")
	if !res.Success {
		t.Fatalf("Run failed: %+v", res)
	}
	if res.Output != "(no output)" {
		t.Errorf("output = %q, want placeholder", res.Output)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	exe := newExecutor(t, executor.Config{})
	res := exe.Run(context.Background(), "echo broken; exit 3", "")
	if res.Success {
		t.Fatal("Run reported success for exit 3")
	}
	if !strings.Contains(res.Output, "broken") {
		t.Errorf("output %q should keep the command's output on failure", res.Output)
	}
}

func TestRunTimeout(t *testing.T) {
	exe := newExecutor(t, executor.Config{Timeout: 100 * time.Millisecond})
	res := exe.Run(context.Background(), "sleep 5", "")
	if res.Success {
		t.Fatal("Run reported success for timed-out command")
	}
	if res.Output != "Command timed out" {
		t.Errorf("output = %q, want %q", res.Output, "Command timed out")
	}
}

func TestRunHonorsWorkDir(t *testing.T) {
	dir := t.TempDir()
	exe := newExecutor(t, executor.Config{})
	res := exe.Run(context.Background(), "pwd", dir)
	if !res.Success {
		t.Fatalf("Run failed: %+v", res)
	}
	if !strings.Contains(res.Output, dir) {
		t.Errorf("pwd = %q, want working dir %q", res.Output, dir)
	}
}

func TestRunParallelPreservesOrder(t *testing.T) {
	exe := newExecutor(t, executor.Config{})
	commands := []string{"echo one", "echo two", "echo three"}
	results := exe.RunParallel(context.Background(), commands, "")
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"one", "two", "three"} {
		if !strings.Contains(results[i].Output, want) {
			t.Errorf("results[%d].Output = %q, want it to contain %q", i, results[i].Output, want)
		}
	}
}

func TestRunBackgroundCompletesTaskAndAnnounces(t *testing.T) {
	broker := bus.New()
	reg := tasks.NewRegistry()
	exe := newExecutor(t, executor.Config{Bus: broker, Registry: reg})

	sub := broker.Subscribe("task.")
	defer broker.Unsubscribe(sub)

	task := exe.RunBackground(context.Background(), 1, 10, "echo detached", "")
	if task.Status != tasks.StatusPending {
		t.Errorf("initial task status = %s, want %s", task.Status, tasks.StatusPending)
	}

	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicTaskDone {
			t.Errorf("topic = %s, want %s", ev.Topic, bus.TopicTaskDone)
		}
		payload, ok := ev.Payload.(bus.TaskFinishedEvent)
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		if payload.TaskID != task.ID || payload.ChatID != 10 || !payload.Success {
			t.Errorf("payload = %+v", payload)
		}
		if !strings.Contains(payload.Output, "detached") {
			t.Errorf("payload output = %q", payload.Output)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no bus event for background completion")
	}

	exe.Wait()
	got, ok := reg.Get(task.ID)
	if !ok {
		t.Fatal("task missing from registry")
	}
	if got.Status != tasks.StatusDone {
		t.Errorf("final task status = %s, want %s", got.Status, tasks.StatusDone)
	}
}

func TestRunBackgroundFailureTopic(t *testing.T) {
	broker := bus.New()
	reg := tasks.NewRegistry()
	exe := newExecutor(t, executor.Config{Bus: broker, Registry: reg})

	sub := broker.Subscribe(bus.TopicTaskFailed)
	defer broker.Unsubscribe(sub)

	task := exe.RunBackground(context.Background(), 1, 10, "exit 7", "")
	select {
	case ev := <-sub.Ch():
		payload := ev.Payload.(bus.TaskFinishedEvent)
		if payload.Success || payload.TaskID != task.ID {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no failure event")
	}
	exe.Wait()
	got, _ := reg.Get(task.ID)
	if got.Status != tasks.StatusFailed {
		t.Errorf("final status = %s, want %s", got.Status, tasks.StatusFailed)
	}
}
