// Package channels connects the orchestrator to chat surfaces. Telegram
// is the only channel; it owns the long-poll loop, command routing, and
// background-task notifications.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/chatclaw/internal/bus"
	"github.com/basket/chatclaw/internal/engine"
	chatotel "github.com/basket/chatclaw/internal/otel"
	"github.com/basket/chatclaw/internal/persistence"
	"github.com/basket/chatclaw/internal/shared"
	"github.com/basket/chatclaw/internal/tasks"
	"github.com/basket/chatclaw/internal/telemetry"
)

// Config holds the dependencies for the Telegram channel.
type Config struct {
	Token      string
	AllowedIDs []int64
	Orch       *engine.Orchestrator
	Store      *persistence.Store
	Registry   *tasks.Registry
	Bus        *bus.Bus
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Metrics    *chatotel.Metrics
}

// TelegramChannel is the Telegram front end.
type TelegramChannel struct {
	token string

	mu         sync.RWMutex
	allowedIDs map[int64]struct{}

	orch       *engine.Orchestrator
	store      *persistence.Store
	registry   *tasks.Registry
	eventBus   *bus.Bus
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *chatotel.Metrics
	bot        *tgbotapi.BotAPI
}

func NewTelegramChannel(cfg Config) *TelegramChannel {
	allowed := make(map[int64]struct{}, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = chatotel.NoopTracer()
	}
	return &TelegramChannel{
		token:      cfg.Token,
		allowedIDs: allowed,
		orch:       cfg.Orch,
		store:      cfg.Store,
		registry:   cfg.Registry,
		eventBus:   cfg.Bus,
		logger:     logger,
		tracer:     tracer,
		metrics:    cfg.Metrics,
	}
}

// SetAllowedIDs replaces the allow-list. Updates already in flight keep
// the decision made when they arrived.
func (t *TelegramChannel) SetAllowedIDs(ids []int64) {
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	t.mu.Lock()
	t.allowedIDs = allowed
	t.mu.Unlock()
}

func (t *TelegramChannel) isAllowed(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.allowedIDs[userID]
	return ok
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Start connects to Telegram and blocks until ctx is cancelled, polling
// for updates with reconnection backoff.
func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	t.setCommandMenu()
	go t.monitorTasks(ctx)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads updates until ctx is done, the channel closes, or
// nothing arrives within the stall window. The library's 60s long poll
// blocks silently on a dead connection instead of closing the channel,
// so a 150s silence is treated as a disconnect.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			// Handlers run concurrently; a stuck LLM call must not
			// stall the poll loop.
			if update.Message != nil {
				if !t.isAllowed(update.Message.From.ID) {
					t.logger.Warn("telegram access denied", "user_id", update.Message.From.ID, "user_name", update.Message.From.UserName)
					continue
				}
				msg := update.Message
				go t.handleUpdate(ctx, msg)
				continue
			}

			if update.CallbackQuery != nil {
				if !t.isAllowed(update.CallbackQuery.From.ID) {
					t.logger.Warn("telegram callback access denied", "user_id", update.CallbackQuery.From.ID)
					continue
				}
				query := update.CallbackQuery
				go t.handleCallback(ctx, query)
				continue
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	start := time.Now()
	handler := "message"
	if msg.IsCommand() {
		handler = msg.Command()
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("update handler panicked", "handler", handler, "panic", fmt.Sprint(r))
		}
	}()

	ctx = shared.WithRequestID(ctx, shared.NewRequestID())
	ctx = shared.WithUserID(ctx, msg.From.ID)
	ctx = shared.WithChatID(ctx, msg.Chat.ID)
	ctx = shared.WithHandler(ctx, handler)
	ctx, span := chatotel.StartServerSpan(ctx, t.tracer, "telegram.update",
		chatotel.AttrHandler.String(handler),
		chatotel.AttrUserID.Int64(msg.From.ID),
		chatotel.AttrChatID.Int64(msg.Chat.ID))
	defer span.End()

	logger := telemetry.WithRequest(ctx, t.logger)

	if msg.IsCommand() {
		t.handleCommand(ctx, logger, msg)
	} else {
		t.handleChat(ctx, logger, msg)
	}

	if t.metrics != nil {
		t.metrics.UpdateDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (t *TelegramChannel) handleChat(ctx context.Context, logger *slog.Logger, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	logger.Info("message received", "text_len", len(text))

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	if _, err := t.bot.Request(typing); err != nil {
		logger.Warn("failed to send typing action", "error", err)
	}

	reply, err := t.orch.HandleMessage(ctx, msg.From.ID, msg.Chat.ID, text)
	if err != nil {
		logger.Error("message handling failed", "error", err)
	}
	t.replyChunked(msg.Chat.ID, msg.MessageID, reply)
}

func (t *TelegramChannel) handleCommand(ctx context.Context, logger *slog.Logger, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch msg.Command() {
	case "start":
		t.reply(chatID, startText)
	case "help":
		t.reply(chatID, helpText)

	case "newsession":
		t.cmdNewSession(ctx, logger, userID, chatID, args)
	case "sessions":
		t.cmdSessions(ctx, logger, userID, chatID)
	case "switch":
		t.cmdSwitch(ctx, logger, userID, chatID, args)
	case "rename":
		t.cmdRename(ctx, logger, userID, chatID, args)
	case "delsession":
		t.cmdDelSession(ctx, logger, userID, chatID, args)

	case "newproject":
		t.cmdNewProject(ctx, logger, userID, chatID, args)
	case "projects":
		t.cmdProjects(ctx, logger, userID, chatID)
	case "delproject":
		t.cmdDelProject(ctx, logger, userID, chatID, args)

	case "bg":
		t.cmdBackground(ctx, logger, userID, chatID, args)
	case "status":
		t.cmdStatus(logger, userID, chatID)

	default:
		t.reply(chatID, "Unknown command. See /help.")
	}
}

func (t *TelegramChannel) cmdNewSession(ctx context.Context, logger *slog.Logger, userID, chatID int64, name string) {
	session, err := t.store.CreateSession(ctx, userID, chatID, name, nil)
	if err != nil {
		logger.Error("create session", "error", err)
		t.reply(chatID, "❌ Could not create session.")
		return
	}
	if err := t.store.SetActiveSession(ctx, userID, chatID, session.ID); err != nil {
		logger.Error("activate session", "error", err)
		t.reply(chatID, "❌ Could not activate session.")
		return
	}
	logger.Info("new session created", "session_id", session.ID, "session_name", session.Name)

	text := fmt.Sprintf("✨ Created and switched to new session:\n`%s` (ID: %d)", session.Name, session.ID)
	projects, err := t.store.ListProjects(ctx, userID, chatID)
	if err != nil || len(projects) == 0 {
		t.replyMarkdown(chatID, text)
		return
	}
	// Offer assignment to one of the existing projects.
	keyboard := projectAssignKeyboard(projects)
	msg := tgbotapi.NewMessage(chatID, text+"\n\nAssign it to a project?")
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard
	if _, err := t.bot.Send(msg); err != nil {
		logger.Error("failed to send session keyboard", "error", err)
	}
}

func (t *TelegramChannel) cmdSessions(ctx context.Context, logger *slog.Logger, userID, chatID int64) {
	keyboard, text, total := t.sessionsPage(ctx, userID, chatID, 0)
	if keyboard == nil {
		t.reply(chatID, text)
		return
	}
	logger.Info("sessions listed", "session_count", total)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = *keyboard
	if _, err := t.bot.Send(msg); err != nil {
		logger.Error("failed to send sessions keyboard", "error", err)
	}
}

// sessionsPage loads one page of session data and renders its keyboard.
func (t *TelegramChannel) sessionsPage(ctx context.Context, userID, chatID int64, page int) (*tgbotapi.InlineKeyboardMarkup, string, int) {
	total, err := t.store.CountSessions(ctx, userID, chatID)
	if err != nil {
		t.logger.Error("count sessions", "error", err)
		return nil, "❌ Could not list sessions.", 0
	}
	page = clampPage(page, total)
	sessions, err := t.store.ListSessions(ctx, userID, chatID, sessionsPageSize, page*sessionsPageSize)
	if err != nil {
		t.logger.Error("list sessions", "error", err)
		return nil, "❌ Could not list sessions.", 0
	}
	var activeID int64
	if active, err := t.store.GetActiveSession(ctx, userID, chatID); err == nil {
		activeID = active.ID
	}
	keyboard, text := sessionsKeyboard(sessions, activeID, page, total)
	return keyboard, text, total
}

func (t *TelegramChannel) cmdSwitch(ctx context.Context, logger *slog.Logger, userID, chatID int64, args string) {
	sessionID, ok := parseID(args)
	if !ok {
		t.reply(chatID, "Usage: /switch <session_id>")
		return
	}
	session, err := t.store.GetSession(ctx, sessionID, userID, chatID)
	if err != nil {
		t.reply(chatID, fmt.Sprintf("❌ Session %d not found.", sessionID))
		return
	}
	if err := t.store.SetActiveSession(ctx, userID, chatID, sessionID); err != nil {
		logger.Error("switch session", "error", err)
		t.reply(chatID, "❌ Could not switch session.")
		return
	}
	logger.Info("session switched", "session_id", sessionID, "session_name", session.Name)
	t.replyMarkdown(chatID, fmt.Sprintf("✓ Switched to session: `%s` (ID: %d)", session.Name, sessionID))
}

func (t *TelegramChannel) cmdRename(ctx context.Context, logger *slog.Logger, userID, chatID int64, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		t.reply(chatID, "Usage: /rename <session_id> <new_name>")
		return
	}
	sessionID, ok := parseID(parts[0])
	if !ok {
		t.reply(chatID, "Usage: /rename <session_id> <new_name>")
		return
	}
	newName := strings.TrimSpace(parts[1])
	if err := t.store.RenameSession(ctx, sessionID, userID, chatID, newName); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			t.reply(chatID, fmt.Sprintf("❌ Session %d not found.", sessionID))
			return
		}
		logger.Error("rename session", "error", err)
		t.reply(chatID, "❌ Could not rename session.")
		return
	}
	logger.Info("session renamed", "session_id", sessionID, "new_name", newName)
	t.replyMarkdown(chatID, fmt.Sprintf("✓ Renamed session %d to: `%s`", sessionID, newName))
}

func (t *TelegramChannel) cmdDelSession(ctx context.Context, logger *slog.Logger, userID, chatID int64, args string) {
	sessionID, ok := parseID(args)
	if !ok {
		t.reply(chatID, "Usage: /delsession <session_id>")
		return
	}
	err := t.orch.DeleteSession(ctx, userID, chatID, sessionID)
	switch {
	case errors.Is(err, engine.ErrActiveSession):
		t.reply(chatID, "❌ Cannot delete active session. Switch to another session first.")
	case errors.Is(err, persistence.ErrNotFound):
		t.reply(chatID, fmt.Sprintf("❌ Session %d not found.", sessionID))
	case err != nil:
		logger.Error("delete session", "error", err)
		t.reply(chatID, "❌ Could not delete session.")
	default:
		logger.Info("session deleted", "session_id", sessionID)
		t.reply(chatID, fmt.Sprintf("✓ Deleted session %d", sessionID))
	}
}

func (t *TelegramChannel) cmdNewProject(ctx context.Context, logger *slog.Logger, userID, chatID int64, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		t.reply(chatID, "Usage: /newproject <name> <working_dir>")
		return
	}
	name, workingDir := parts[0], strings.TrimSpace(parts[1])
	project, err := t.store.CreateProject(ctx, userID, chatID, name, workingDir)
	if err != nil {
		logger.Error("create project", "error", err)
		t.reply(chatID, "❌ Could not create project.")
		return
	}
	logger.Info("project created", "project_id", project.ID, "project_name", name)
	t.replyMarkdown(chatID, fmt.Sprintf("✨ Created project `%s` (ID: %d)\nWorking dir: `%s`", project.Name, project.ID, project.WorkingDir))
}

func (t *TelegramChannel) cmdProjects(ctx context.Context, logger *slog.Logger, userID, chatID int64) {
	projects, err := t.store.ListProjects(ctx, userID, chatID)
	if err != nil {
		logger.Error("list projects", "error", err)
		t.reply(chatID, "❌ Could not list projects.")
		return
	}
	if len(projects) == 0 {
		t.reply(chatID, "No projects yet. Create one with /newproject <name> <working_dir>.")
		return
	}
	t.replyMarkdown(chatID, formatProjects(projects))
}

func (t *TelegramChannel) cmdDelProject(ctx context.Context, logger *slog.Logger, userID, chatID int64, args string) {
	projectID, ok := parseID(args)
	if !ok {
		t.reply(chatID, "Usage: /delproject <project_id>")
		return
	}
	err := t.store.DeleteProject(ctx, projectID, userID, chatID)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		t.reply(chatID, fmt.Sprintf("❌ Project %d not found.", projectID))
	case err != nil:
		logger.Error("delete project", "error", err)
		t.reply(chatID, "❌ Could not delete project.")
	default:
		logger.Info("project deleted", "project_id", projectID)
		t.reply(chatID, fmt.Sprintf("✓ Deleted project %d. Its sessions were kept.", projectID))
	}
}

func (t *TelegramChannel) cmdBackground(ctx context.Context, logger *slog.Logger, userID, chatID int64, command string) {
	if command == "" {
		t.reply(chatID, "Usage: /bg <command>")
		return
	}
	task := t.orch.Background(ctx, userID, chatID, command)
	logger.Info("background task started", "task_id", task.ID, "command", command)
	t.replyMarkdown(chatID, fmt.Sprintf("Started background task `%s`", task.ID))
}

func (t *TelegramChannel) cmdStatus(logger *slog.Logger, userID, chatID int64) {
	recent := t.registry.ListRecent(userID, chatID, 10)
	if len(recent) == 0 {
		t.reply(chatID, "No tasks tracked.")
		return
	}
	logger.Info("status requested", "task_count", len(recent))
	t.replyMarkdown(chatID, formatTaskStatus(recent))
}

// handleCallback routes inline keyboard presses.
func (t *TelegramChannel) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("callback handler panicked", "panic", fmt.Sprint(r))
		}
	}()

	ctx = shared.WithRequestID(ctx, shared.NewRequestID())
	ctx = shared.WithUserID(ctx, query.From.ID)
	logger := telemetry.WithRequest(ctx, t.logger)

	// Telegram omits Message for presses on inaccessible or aged-out
	// messages; there is no chat to answer into.
	if query.Message == nil {
		logger.Warn("callback without message", "data", query.Data)
		return
	}

	if _, err := t.bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		logger.Warn("failed to ack callback", "error", err)
	}

	userID := query.From.ID
	chatID := query.Message.Chat.ID
	data := query.Data

	switch {
	case strings.HasPrefix(data, "session_page:"):
		page, ok := parseID(strings.TrimPrefix(data, "session_page:"))
		if !ok {
			return
		}
		keyboard, text, _ := t.sessionsPage(ctx, userID, chatID, int(page))
		t.editKeyboard(logger, chatID, query.Message.MessageID, text, keyboard)

	case strings.HasPrefix(data, "session_switch:"):
		sessionID, ok := parseID(strings.TrimPrefix(data, "session_switch:"))
		if !ok {
			return
		}
		session, err := t.store.GetSession(ctx, sessionID, userID, chatID)
		if err != nil {
			t.editKeyboard(logger, chatID, query.Message.MessageID, fmt.Sprintf("❌ Session %d not found.", sessionID), nil)
			return
		}
		if err := t.store.SetActiveSession(ctx, userID, chatID, sessionID); err != nil {
			logger.Error("switch session via callback", "error", err)
			return
		}
		logger.Info("session switched", "session_id", sessionID, "session_name", session.Name)
		keyboard, text, _ := t.sessionsPage(ctx, userID, chatID, 0)
		t.editKeyboard(logger, chatID, query.Message.MessageID, fmt.Sprintf("✓ Switched to: %s\n\n%s", session.Name, text), keyboard)

	case strings.HasPrefix(data, "newses_project:"):
		projectID, skip, ok := parseAssignCallback(data)
		if !ok {
			return
		}
		if skip {
			t.editKeyboard(logger, chatID, query.Message.MessageID, "Session left outside any project.", nil)
			return
		}
		session, err := t.store.GetActiveSession(ctx, userID, chatID)
		if err != nil {
			logger.Error("resolve active session for project assign", "error", err)
			t.editKeyboard(logger, chatID, query.Message.MessageID, "❌ Could not assign project.", nil)
			return
		}
		if err := t.store.AssignSessionProject(ctx, session.ID, userID, chatID, &projectID); err != nil {
			logger.Error("assign session project", "error", err)
			t.editKeyboard(logger, chatID, query.Message.MessageID, "❌ Could not assign project.", nil)
			return
		}
		logger.Info("session assigned to project", "session_id", session.ID, "project_id", projectID)
		t.editKeyboard(logger, chatID, query.Message.MessageID, fmt.Sprintf("✓ Session %d assigned to project %d.", session.ID, projectID), nil)
	}
}

func (t *TelegramChannel) editKeyboard(logger *slog.Logger, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	var send tgbotapi.Chattable
	if keyboard != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
		send = edit
	} else {
		send = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := t.bot.Send(send); err != nil {
		logger.Warn("failed to edit message", "error", err)
	}
}

// monitorTasks forwards background-task completions from the bus into
// their originating chats.
func (t *TelegramChannel) monitorTasks(ctx context.Context) {
	sub := t.eventBus.Subscribe("task.")
	defer t.eventBus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			payload, ok := ev.Payload.(bus.TaskFinishedEvent)
			if !ok {
				continue
			}
			t.replyChunked(payload.ChatID, 0, formatTaskFinished(payload))
		}
	}
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

func (t *TelegramChannel) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram markdown reply", "error", err)
	}
}

// replyChunked escapes the text for MarkdownV2 and splits it under
// Telegram's message size limit. replyToID of 0 sends without quoting.
func (t *TelegramChannel) replyChunked(chatID int64, replyToID int, text string) {
	if strings.TrimSpace(text) == "" {
		text = "(empty)"
	}
	for _, chunk := range chunkText(escapeMarkdownV2(text), replyChunkSize) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if replyToID != 0 {
			msg.ReplyToMessageID = replyToID
		}
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Warn("markdown send failed, retrying as plain text", "error", err)
			plain := tgbotapi.NewMessage(chatID, chunk)
			if replyToID != 0 {
				plain.ReplyToMessageID = replyToID
			}
			if _, err := t.bot.Send(plain); err != nil {
				t.logger.Error("failed to send telegram reply", "error", err)
			}
		}
	}
}

// setCommandMenu configures the Telegram client-side command menu.
func (t *TelegramChannel) setCommandMenu() {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Show quick intro"},
		tgbotapi.BotCommand{Command: "help", Description: "Show help / usage"},
		tgbotapi.BotCommand{Command: "sessions", Description: "List all sessions"},
		tgbotapi.BotCommand{Command: "newsession", Description: "Create a new session"},
		tgbotapi.BotCommand{Command: "switch", Description: "Switch to a session"},
		tgbotapi.BotCommand{Command: "rename", Description: "Rename a session"},
		tgbotapi.BotCommand{Command: "delsession", Description: "Delete a session"},
		tgbotapi.BotCommand{Command: "newproject", Description: "Create a project"},
		tgbotapi.BotCommand{Command: "projects", Description: "List projects"},
		tgbotapi.BotCommand{Command: "delproject", Description: "Delete a project"},
		tgbotapi.BotCommand{Command: "bg", Description: "Run a command in background"},
		tgbotapi.BotCommand{Command: "status", Description: "Show last tracked tasks"},
	)
	if _, err := t.bot.Request(commands); err != nil {
		t.logger.Warn("failed to set command menu", "error", err)
	}
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

const startText = "Hi! Send messages to chat with the LLM.\n\n" +
	"Session management:\n" +
	"- /sessions — list all sessions\n" +
	"- /newsession [name] — create new session\n" +
	"- /switch <id> — switch to session\n" +
	"- /rename <id> <name> — rename session\n" +
	"- /delsession <id> — delete session\n\n" +
	"Projects:\n" +
	"- /projects — list projects\n" +
	"- /newproject <name> <dir> — create project\n" +
	"- /delproject <id> — delete project\n\n" +
	"Other commands:\n" +
	"- run: <request> — execute shell commands\n" +
	"- /bg <command> — run command in background\n" +
	"- /status — show background tasks"

const helpText = "Usage:\n" +
	"- Send messages to chat with the LLM.\n" +
	"- Each conversation is organized into sessions.\n" +
	"- Prefix a message with run: to have it turned into shell commands.\n\n" +
	"Session management:\n" +
	"- /sessions — list all sessions\n" +
	"- /newsession [name] — create new session\n" +
	"- /switch <id> — switch to session\n" +
	"- /rename <id> <name> — rename session\n" +
	"- /delsession <id> — delete session\n\n" +
	"Projects:\n" +
	"- /projects — list projects\n" +
	"- /newproject <name> <dir> — create project\n" +
	"- /delproject <id> — delete project\n\n" +
	"Other commands:\n" +
	"- /bg <command> — run command in background\n" +
	"- /status — show background tasks"
