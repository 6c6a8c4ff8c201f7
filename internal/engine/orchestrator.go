// Package engine routes chat messages through the agent and the store.
// It owns the turn lifecycle: session resolution, history loading, the
// model call, and what gets persisted when.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/chatclaw/internal/agent"
	"github.com/basket/chatclaw/internal/executor"
	chatotel "github.com/basket/chatclaw/internal/otel"
	"github.com/basket/chatclaw/internal/persistence"
	"github.com/basket/chatclaw/internal/tasks"
	"github.com/basket/chatclaw/internal/telemetry"
)

const defaultHistoryWindow = 20

// ErrActiveSession reports an attempt to delete the session the chat is
// currently using.
var ErrActiveSession = errors.New("cannot delete active session")

// Agent is the LLM surface the orchestrator needs.
type Agent interface {
	Respond(ctx context.Context, req agent.TurnRequest) (*agent.TurnResponse, error)
	Commands(ctx context.Context, userInput string) ([]string, error)
}

// Config holds the orchestrator's dependencies.
type Config struct {
	Store         *persistence.Store
	Agent         Agent
	Executor      *executor.Executor
	Logger        *slog.Logger
	Tracer        trace.Tracer
	Metrics       *chatotel.Metrics
	HistoryWindow int // messages of context per turn; defaults to 20
}

type Orchestrator struct {
	store    *persistence.Store
	agent    Agent
	executor *executor.Executor
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *chatotel.Metrics
	window   int
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = chatotel.NoopTracer()
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &Orchestrator{
		store:    cfg.Store,
		agent:    cfg.Agent,
		executor: cfg.Executor,
		logger:   logger,
		tracer:   tracer,
		metrics:  cfg.Metrics,
		window:   window,
	}
}

// HandleMessage processes one inbound chat message and returns the text
// to send back. On an LLM failure the reply is a user-facing error line,
// the returned error carries the cause, and nothing is persisted.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, chatID int64, text string) (string, error) {
	ctx, span := chatotel.StartSpan(ctx, o.tracer, "engine.handle_message",
		chatotel.AttrUserID.Int64(userID),
		chatotel.AttrChatID.Int64(chatID))
	defer span.End()

	if o.metrics != nil {
		o.metrics.MessagesHandled.Add(ctx, 1)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if request, ok := commandRequest(text); ok {
		return o.handleCommandRequest(ctx, userID, chatID, request)
	}
	return o.handleTurn(ctx, userID, chatID, text)
}

func (o *Orchestrator) handleTurn(ctx context.Context, userID, chatID int64, text string) (string, error) {
	logger := telemetry.WithRequest(ctx, o.logger)

	session, err := o.store.GetOrCreateActiveSession(ctx, userID, chatID)
	if err != nil {
		return "Storage error. Try again.", fmt.Errorf("resolve active session: %w", err)
	}
	logger.Info("session loaded", "session_id", session.ID, "session_name", session.Name)

	history, err := o.store.GetSessionMessages(ctx, session.ID, o.window)
	if err != nil {
		return "Storage error. Try again.", fmt.Errorf("load history: %w", err)
	}

	resp, err := o.agent.Respond(ctx, agent.TurnRequest{
		SessionName: session.Name,
		State:       session.State,
		History:     history,
		UserMessage: text,
	})
	if err != nil {
		class := ClassifyError(err)
		logger.Error("llm turn failed", "session_id", session.ID, "class", string(class), "error", err)
		// The turn never happened: no message rows, no state change.
		return class.UserMessage(), err
	}

	if _, err := o.store.SaveMessage(ctx, session.ID, userID, chatID, persistence.RoleUser, text); err != nil {
		return "Storage error. Try again.", fmt.Errorf("save user message: %w", err)
	}
	if _, err := o.store.SaveMessage(ctx, session.ID, userID, chatID, persistence.RoleAssistant, resp.Reply); err != nil {
		return "Storage error. Try again.", fmt.Errorf("save assistant message: %w", err)
	}

	if stateChanged(session.State, resp.State) {
		err := o.store.UpdateSessionState(ctx, session.ID, userID, chatID, resp.State)
		switch {
		case errors.Is(err, persistence.ErrStateTooLarge):
			// Keep the turn; drop only the oversized state update.
			logger.Warn("session state over cap, not persisted", "session_id", session.ID)
		case err != nil:
			return "Storage error. Try again.", fmt.Errorf("update session state: %w", err)
		default:
			logger.Info("session state updated", "session_id", session.ID)
		}
	}
	return resp.Reply, nil
}

// handleCommandRequest turns a run:/cmd: message into shell commands and
// executes them all, replying with one block per command.
func (o *Orchestrator) handleCommandRequest(ctx context.Context, userID, chatID int64, request string) (string, error) {
	logger := telemetry.WithRequest(ctx, o.logger)

	commands, err := o.agent.Commands(ctx, request)
	if errors.Is(err, agent.ErrNoProvider) {
		return agent.OfflineReply, nil
	}
	if err != nil {
		class := ClassifyError(err)
		logger.Error("command parsing failed", "class", string(class), "error", err)
		return class.UserMessage(), err
	}
	if len(commands) == 0 {
		return "Refused: I couldn't turn that into safe shell commands. Try rephrasing.", nil
	}

	workDir := o.workingDir(ctx, userID, chatID)
	results := o.executor.RunParallel(ctx, commands, workDir)

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		marker := "✅"
		if !res.Success {
			marker = "❌"
		}
		fmt.Fprintf(&b, "%s $ %s\n%s", marker, res.Command, res.Output)
	}
	return b.String(), nil
}

// Background schedules a detached command in the chat's working
// directory and returns the tracking task.
func (o *Orchestrator) Background(ctx context.Context, userID, chatID int64, command string) *tasks.Task {
	return o.executor.RunBackground(ctx, userID, chatID, command, o.workingDir(ctx, userID, chatID))
}

// DeleteSession removes a session after checking it is not the one the
// chat is actively using.
func (o *Orchestrator) DeleteSession(ctx context.Context, userID, chatID, sessionID int64) error {
	active, err := o.store.GetActiveSession(ctx, userID, chatID)
	if err == nil && active.ID == sessionID {
		return ErrActiveSession
	}
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	return o.store.DeleteSession(ctx, sessionID, userID, chatID)
}

// workingDir resolves the active session's project directory. No active
// session or no project means the process working directory.
func (o *Orchestrator) workingDir(ctx context.Context, userID, chatID int64) string {
	session, err := o.store.GetActiveSession(ctx, userID, chatID)
	if err != nil || session.ProjectID == nil {
		return ""
	}
	project, err := o.store.GetProject(ctx, *session.ProjectID, userID, chatID)
	if err != nil {
		return ""
	}
	return project.WorkingDir
}

// commandRequest strips the run:/cmd: prefix, reporting whether the
// message asked for command execution.
func commandRequest(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, prefix := range []string{"run:", "cmd:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):]), true
		}
	}
	return "", false
}

// stateChanged compares state documents by canonical JSON. Marshaling a
// map sorts keys, so equal documents always encode identically.
func stateChanged(before, after map[string]any) bool {
	if after == nil {
		return false
	}
	a, errA := json.Marshal(before)
	b, errB := json.Marshal(after)
	if errA != nil || errB != nil {
		return true
	}
	return !bytes.Equal(a, b)
}
