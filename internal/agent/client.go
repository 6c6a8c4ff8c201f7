package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"go.opentelemetry.io/otel/trace"

	chatotel "github.com/basket/chatclaw/internal/otel"
	"github.com/basket/chatclaw/internal/persistence"
)

// Config selects and configures the LLM provider behind the client.
type Config struct {
	// Provider is one of "anthropic", "openai", "openai_compatible",
	// "google". Empty defaults to "anthropic".
	Provider string
	Model    string
	APIKey   string

	// openai_compatible only.
	CompatibleProvider string
	CompatibleBaseURL  string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *chatotel.Metrics
}

// Client is the Genkit-backed agent. Without an API key it degrades to a
// deterministic offline mode instead of failing to start.
type Client struct {
	g       *genkit.Genkit
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *chatotel.Metrics
	llmOn   bool
}

// New initializes Genkit with the configured provider.
func New(ctx context.Context, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = chatotel.NoopTracer()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "anthropic"
	}
	cfg.Provider = provider
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModelForProvider(provider)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)

	var g *genkit.Genkit
	llmOn := false
	switch provider {
	case "anthropic":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
				APIKey:  apiKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			logger.Warn("Anthropic API key missing; using offline fallback")
		}
	case "openai":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			logger.Warn("OpenAI API key missing; using offline fallback")
		}
	case "openai_compatible":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: cfg.CompatibleProvider,
				APIKey:   apiKey,
				BaseURL:  cfg.CompatibleBaseURL,
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			logger.Warn("OpenAI-compatible API key missing; using offline fallback")
		}
	case "google":
		if apiKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			logger.Warn("Google API key missing; using offline fallback")
		}
	default:
		g = genkit.Init(ctx)
		logger.Warn("unknown LLM provider, using offline fallback", "provider", provider)
	}

	if llmOn {
		logger.Info("agent initialized", "provider", provider, "model", cfg.Model)
	}
	return &Client{
		g:       g,
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: cfg.Metrics,
		llmOn:   llmOn,
	}
}

// Online reports whether a real model backs the client.
func (c *Client) Online() bool {
	return c.llmOn
}

// Respond runs one conversational turn. The returned state is the full
// document to persist; when the model ignores the structured contract
// the request's state comes back unchanged.
func (c *Client) Respond(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	ctx, span := chatotel.StartClientSpan(ctx, c.tracer, "agent.respond",
		chatotel.AttrModel.String(c.cfg.Model))
	defer span.End()

	start := time.Now()
	if !c.llmOn {
		return &TurnResponse{
			Reply:    OfflineReply,
			State:    req.State,
			Duration: time.Since(start),
		}, nil
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(qualifiedModelName(c.cfg.Provider, c.cfg.Model)),
		ai.WithSystem(escapePercent(c.systemPrompt(req))),
		ai.WithPrompt(escapePercent(req.UserMessage)),
	}
	if msgs := historyToMessages(req.History); len(msgs) > 0 {
		opts = append(opts, ai.WithMessages(msgs...))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.LLMCallDuration.Record(ctx, duration.Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	reply, state, structured := parseTurn(resp.Text())
	if reply == "" {
		reply = "(empty response)"
	}
	if !structured {
		c.logger.Warn("model ignored structured contract; keeping previous state")
		state = req.State
	}
	return &TurnResponse{Reply: reply, State: state, Duration: duration}, nil
}

// Commands converts a natural-language request into shell commands. An
// empty slice means the model refused or the request was unclear.
func (c *Client) Commands(ctx context.Context, userInput string) ([]string, error) {
	ctx, span := chatotel.StartClientSpan(ctx, c.tracer, "agent.commands",
		chatotel.AttrModel.String(c.cfg.Model))
	defer span.End()

	if !c.llmOn {
		// Never guess at commands without a model.
		return nil, ErrNoProvider
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(qualifiedModelName(c.cfg.Provider, c.cfg.Model)),
		ai.WithPrompt(escapePercent(commandsPrompt+userInput)),
	)
	if c.metrics != nil {
		c.metrics.LLMCallDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("generate commands: %w", err)
	}
	commands := parseCommandLines(resp.Text())
	c.logger.Info("commands parsed", "count", len(commands))
	return commands, nil
}

// systemPrompt appends the session's current state so the model can
// carry it forward.
func (c *Client) systemPrompt(req TurnRequest) string {
	prompt := systemPrompt
	if len(req.State) > 0 {
		if encoded, err := json.Marshal(req.State); err == nil {
			prompt += "\n\nCurrent conversation state:\n" + string(encoded)
		}
	}
	return prompt
}

// ErrNoProvider reports that no LLM API key was configured.
var ErrNoProvider = errors.New("no llm provider configured")

// OfflineReply tells the user how to bring the model online.
const OfflineReply = "No LLM provider is configured. Set ANTHROPIC_API_KEY (or GEMINI_API_KEY, OPENAI_API_KEY) and restart."

func qualifiedModelName(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai":
		return "openai/" + model
	case "openai_compatible":
		return model
	case "google":
		return "googleai/" + model
	default:
		return model
	}
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case "openai", "openai_compatible":
		return "gpt-4o-mini"
	case "google":
		return "gemini-2.0-flash"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// escapePercent guards against fmt-style expansion inside genkit prompt
// plumbing.
func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func historyToMessages(items []persistence.Message) []*ai.Message {
	var msgs []*ai.Message
	for _, item := range items {
		var role ai.Role
		switch item.Role {
		case persistence.RoleUser:
			role = ai.RoleUser
		case persistence.RoleAssistant:
			role = ai.RoleModel
		default:
			continue
		}
		msgs = append(msgs, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(item.Content)},
		})
	}
	return msgs
}
