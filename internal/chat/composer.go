package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/onechat/internal/config"
	"github.com/onechat/internal/prompt"
	"github.com/onechat/internal/session"
	"github.com/onechat/internal/watch"
)

// ModelClient is the remote-call collaborator. Retries, timeouts, and rate
// limiting are its concern, not the composer's: the composer passes the
// assembled message list and parameter set and receives back response text
// or a typed failure.
type ModelClient interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

// Request is one assembled outbound call: the ordered message list plus the
// parameter set merged from the current config snapshot.
type Request struct {
	Model    string
	Messages []session.Message
	Params   map[string]interface{}
}

// PrepareResult aggregates the turn-boundary reload checks. Reload failures
// are values here, never errors thrown across the turn boundary.
type PrepareResult struct {
	ConfigReloaded   bool
	TemplateReloaded bool
	Errors           []error
}

// Composer orchestrates the config store, template store, and session memory
// into outbound requests. All collaborators are injected at construction; it
// is the entire surface the REPL layer is allowed to call.
type Composer struct {
	cfg     *config.Store
	prompts *prompt.Store
	memory  *session.Memory
	client  ModelClient
	log     zerolog.Logger
}

func NewComposer(cfg *config.Store, prompts *prompt.Store, memory *session.Memory, client ModelClient, logger zerolog.Logger) *Composer {
	return &Composer{
		cfg:     cfg,
		prompts: prompts,
		memory:  memory,
		client:  client,
		log:     logger,
	}
}

// Prepare runs both staleness checks. It is called once at the start of each
// turn, never mid-turn, so a whole turn draws its system prompt and model
// parameters from one consistent snapshot pair.
func (c *Composer) Prepare() PrepareResult {
	var res PrepareResult

	cr := c.cfg.CheckAndReload()
	switch cr.Status {
	case watch.Reloaded:
		res.ConfigReloaded = true
	case watch.Failed:
		res.Errors = append(res.Errors, cr.Err)
	}

	tr := c.prompts.CheckAndReload()
	switch tr.Status {
	case watch.Reloaded:
		res.TemplateReloaded = true
	case watch.Failed:
		res.Errors = append(res.Errors, tr.Err)
	}

	return res
}

// ComposeRequest assembles [system] + history + [user] with parameters drawn
// from the current snapshot. The system message is rendered fresh every turn
// from whichever of config or template is newest, and is never stored in
// history. It fails only when the current template cannot render at all.
func (c *Composer) ComposeRequest(sessionID, userText string) (*Request, error) {
	snap := c.cfg.Current()
	cfgMap := snap.All()

	rendered, err := c.prompts.Render(cfgMap)
	if err != nil {
		return nil, err
	}

	history := c.memory.History(sessionID)
	messages := make([]session.Message, 0, len(history)+2)
	if strings.TrimSpace(rendered) != "" {
		messages = append(messages, session.Message{Role: session.RoleSystem, Content: rendered})
	}
	messages = append(messages, history...)
	messages = append(messages, session.Message{
		Role:    session.RoleUser,
		Content: c.prompts.RenderUser(userText, cfgMap),
	})

	return &Request{
		Model:    snap.Model(),
		Messages: messages,
		Params:   snap.Extra(),
	}, nil
}

// RecordExchange appends the user message strictly before the assistant
// reply, so history never holds a reply without the turn that prompted it.
// The raw user text is stored, not the template-rendered form.
func (c *Composer) RecordExchange(sessionID, userText, assistantText string) {
	c.memory.AppendPair(sessionID,
		session.Message{Role: session.RoleUser, Content: userText},
		session.Message{Role: session.RoleAssistant, Content: assistantText},
	)
}

// Send runs one full turn: compose, dispatch, record. A failed remote call
// or unusable reply leaves history exactly as it was before the turn began,
// so the user can retry without corruption or duplication.
func (c *Composer) Send(ctx context.Context, sessionID, userText string) (string, error) {
	req, err := c.ComposeRequest(sessionID, userText)
	if err != nil {
		return "", err
	}

	c.log.Debug().Str("session", sessionID).Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("Dispatching turn")

	reply, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	c.RecordExchange(sessionID, userText, reply)
	return reply, nil
}

// History returns the session's accumulated messages.
func (c *Composer) History(sessionID string) []session.Message {
	return c.memory.History(sessionID)
}

// Clear empties the session's history, keeping the session entry.
func (c *Composer) Clear(sessionID string) { c.memory.Clear(sessionID) }

// Sessions lists known session ids.
func (c *Composer) Sessions() []string { return c.memory.Sessions() }

// ConfigView exposes the current snapshot's key space for display without
// handing callers the store itself.
func (c *Composer) ConfigView() map[string]interface{} {
	return c.cfg.Current().All()
}
