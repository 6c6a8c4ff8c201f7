package channels

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/chatclaw/internal/bus"
	"github.com/basket/chatclaw/internal/persistence"
	"github.com/basket/chatclaw/internal/tasks"
)

const (
	// Telegram caps messages at 4096 chars; stay under it with room for
	// escaping overhead.
	replyChunkSize = 3500

	sessionsPageSize = 10
)

// escapeMarkdownV2 escapes the characters Telegram's MarkdownV2 parser
// treats as syntax: _ * [ ] ( ) ~ ` > # + - = | { } . !
func escapeMarkdownV2(s string) string {
	const special = "_*[]()~`>#+-=|{}.!"

	result := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(special, s[i]) >= 0 {
			result = append(result, '\\')
		}
		result = append(result, s[i])
	}
	return string(result)
}

// chunkText splits text into pieces of at most size characters. Cuts
// land on rune boundaries, and a chunk never ends with an unpaired
// backslash so an escape sequence stays with the rune it escapes.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var chunks []string
	for len(runes) > size {
		cut := size
		if danglingEscape(runes[:cut]) {
			cut--
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(chunks, string(runes))
}

// danglingEscape reports whether rs ends in an odd run of backslashes,
// i.e. the last one escapes whatever rune comes next.
func danglingEscape(rs []rune) bool {
	n := 0
	for i := len(rs) - 1; i >= 0 && rs[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// clampPage bounds a requested page to the range the session count
// allows.
func clampPage(page, total int) int {
	totalPages := (total + sessionsPageSize - 1) / sessionsPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= totalPages {
		page = totalPages - 1
	}
	return page
}

// sessionsKeyboard renders one page of the session picker. pageSessions
// is the already-paginated slice for the (clamped) page; total is the
// overall session count. A nil keyboard means there is nothing to show
// and the text is the full reply.
func sessionsKeyboard(pageSessions []persistence.SessionSummary, activeID int64, page, total int) (*tgbotapi.InlineKeyboardMarkup, string) {
	if total == 0 || len(pageSessions) == 0 {
		return nil, "No sessions found."
	}
	totalPages := (total + sessionsPageSize - 1) / sessionsPageSize

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range pageSessions {
		marker := ""
		if s.ID == activeID {
			marker = "✓ "
		}
		label := fmt.Sprintf("%s%s (%d msgs)", marker, s.Name, s.MessageCount)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("session_switch:%d", s.ID)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️ Previous", fmt.Sprintf("session_page:%d", page-1)))
	}
	if page < totalPages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ▶️", fmt.Sprintf("session_page:%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	header := fmt.Sprintf("📋 Your sessions (Page %d/%d):\n\nTap a session to switch to it.", page+1, totalPages)
	return &keyboard, header
}

// projectAssignKeyboard offers the projects the fresh (and now active)
// session can join, plus a skip button.
func projectAssignKeyboard(projects []persistence.Project) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range projects {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, fmt.Sprintf("newses_project:%d", p.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Skip", "newses_project:none"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// parseAssignCallback parses "newses_project:<projectID|none>". The
// target session is implicit: assignment applies to the active session.
func parseAssignCallback(data string) (projectID int64, skip, ok bool) {
	rest, found := strings.CutPrefix(data, "newses_project:")
	if !found {
		return 0, false, false
	}
	if rest == "none" {
		return 0, true, true
	}
	projectID, okID := parseID(rest)
	if !okID || projectID == 0 {
		return 0, false, false
	}
	return projectID, false, true
}

func formatProjects(projects []persistence.Project) string {
	var b strings.Builder
	b.WriteString("📁 Your projects:\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "\n• `%s` (ID: %d)\n  %s", p.Name, p.ID, p.WorkingDir)
	}
	return b.String()
}

var statusIcons = map[tasks.Status]string{
	tasks.StatusPending: "⏳",
	tasks.StatusRunning: "🔄",
	tasks.StatusDone:    "✅",
	tasks.StatusFailed:  "❌",
}

func formatTaskStatus(recent []tasks.Task) string {
	lines := make([]string, 0, len(recent))
	for _, task := range recent {
		icon, ok := statusIcons[task.Status]
		if !ok {
			icon = "?"
		}
		lines = append(lines, fmt.Sprintf("%s `%s` - %s", icon, task.ID, truncate(task.Command, 40)))
	}
	return strings.Join(lines, "\n")
}

func formatTaskFinished(ev bus.TaskFinishedEvent) string {
	output := truncate(ev.Output, replyChunkSize)
	if ev.Success {
		return fmt.Sprintf("✅ Task %s finished:\n$ %s\n%s", ev.TaskID, ev.Command, output)
	}
	return fmt.Sprintf("❌ Task %s failed:\n$ %s\n%s", ev.TaskID, ev.Command, output)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
