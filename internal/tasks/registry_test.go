package tasks_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/basket/chatclaw/internal/tasks"
)

func TestCreateAssignsShortID(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "sleep 5")
	if len(task.ID) != 8 {
		t.Errorf("task id %q has length %d, want 8", task.ID, len(task.ID))
	}
	if task.Status != tasks.StatusPending {
		t.Errorf("new task status = %s, want %s", task.Status, tasks.StatusPending)
	}
	if task.Command != "sleep 5" {
		t.Errorf("task command = %q", task.Command)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "make build")

	if err := reg.MarkRunning(task.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := reg.Complete(task.ID, "ok", true); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, ok := reg.Get(task.ID)
	if !ok {
		t.Fatal("Get: task missing")
	}
	if got.Status != tasks.StatusDone || !got.Success || got.Output != "ok" {
		t.Errorf("task after completion = %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestTerminalTasksAreFrozen(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "true")
	if err := reg.MarkRunning(task.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := reg.Complete(task.ID, "done", true); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := reg.Complete(task.ID, "again", false); err == nil {
		t.Error("second Complete succeeded, want error")
	}
	if err := reg.MarkRunning(task.ID); err == nil {
		t.Error("MarkRunning on terminal task succeeded, want error")
	}
	got, _ := reg.Get(task.ID)
	if got.Output != "done" || !got.Success {
		t.Errorf("terminal task mutated: %+v", got)
	}
}

func TestPendingCanFailDirectly(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "does-not-spawn")
	if err := reg.Complete(task.ID, "spawn error", false); err != nil {
		t.Fatalf("Complete on pending: %v", err)
	}
	got, _ := reg.Get(task.ID)
	if got.Status != tasks.StatusFailed {
		t.Errorf("status = %s, want %s", got.Status, tasks.StatusFailed)
	}
}

func TestListRecentScopedAndOrdered(t *testing.T) {
	reg := tasks.NewRegistry()
	first := reg.Create(1, 10, "first")
	reg.Create(2, 10, "other user")
	reg.Create(1, 99, "other chat")
	second := reg.Create(1, 10, "second")

	got := reg.ListRecent(1, 10, 0)
	if len(got) != 2 {
		t.Fatalf("ListRecent returned %d tasks, want 2", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("ListRecent order = [%s %s], want newest first [%s %s]",
			got[0].ID, got[1].ID, second.ID, first.ID)
	}

	limited := reg.ListRecent(1, 10, 1)
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Errorf("ListRecent limit 1 = %+v", limited)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "ls")
	got, _ := reg.Get(task.ID)
	got.Output = "tampered"
	again, _ := reg.Get(task.ID)
	if again.Output != "" {
		t.Errorf("registry state mutated through returned copy: %q", again.Output)
	}
}

func TestPruneDropsOnlyOldTerminalTasks(t *testing.T) {
	reg := tasks.NewRegistry()

	finished := reg.Create(1, 10, "old done")
	if err := reg.MarkRunning(finished.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := reg.Complete(finished.ID, "ok", true); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	running := reg.Create(1, 10, "still running")
	if err := reg.MarkRunning(running.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	removed := reg.Prune(time.Now().UTC().Add(time.Minute))
	if removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	if _, ok := reg.Get(finished.ID); ok {
		t.Error("finished task survived prune")
	}
	if _, ok := reg.Get(running.ID); !ok {
		t.Error("running task removed by prune")
	}
}

func TestNewJanitorRejectsBadSchedule(t *testing.T) {
	_, err := tasks.NewJanitor(tasks.JanitorConfig{
		Registry: tasks.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Schedule: "not a schedule",
	})
	if err == nil {
		t.Error("NewJanitor accepted malformed schedule")
	}
}

func TestJanitorSweep(t *testing.T) {
	reg := tasks.NewRegistry()
	task := reg.Create(1, 10, "true")
	if err := reg.MarkRunning(task.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := reg.Complete(task.ID, "ok", true); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	janitor, err := tasks.NewJanitor(tasks.JanitorConfig{
		Registry:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retention: -time.Minute, // cutoff in the future: everything terminal is stale
	})
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	janitor.Sweep()
	if reg.Len() != 0 {
		t.Errorf("registry has %d tasks after sweep, want 0", reg.Len())
	}
}
