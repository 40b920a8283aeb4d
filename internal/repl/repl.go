package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onechat/internal/chat"
	"github.com/onechat/internal/logging"
)

// REPL drives the interactive loop. It talks only to the composer surface
// (Prepare, Send, History, Clear, ...) and never reaches into the stores.
type REPL struct {
	composer  *chat.Composer
	sessionID string
	rl        *readline.Instance
	out       io.Writer
	log       zerolog.Logger
}

func New(composer *chat.Composer, sessionID string, logger zerolog.Logger) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &REPL{
		composer:  composer,
		sessionID: sessionID,
		rl:        rl,
		out:       rl.Stdout(),
		log:       logger,
	}, nil
}

// Run reads lines until EOF or /quit. Lines beginning with a slash dispatch
// to commands; everything else is a conversational turn.
func (r *REPL) Run(ctx context.Context) error {
	defer r.rl.Close()
	fmt.Fprintln(r.out, "onechat - type /help for commands, /quit to exit")

	for {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(line); quit {
				return nil
			}
			continue
		}

		r.turn(ctx, line)
	}
}

// turn runs one full conversational turn: reload checks at the boundary,
// then compose, dispatch, record.
func (r *REPL) turn(ctx context.Context, text string) {
	r.reportPrepare(r.composer.Prepare())

	reply, err := r.composer.Send(ctx, r.sessionID, text)
	if err != nil {
		r.log.Error().Err(err).Str("session", r.sessionID).Msg("Turn failed")
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "\n%s\n\n", reply)
}

func (r *REPL) reportPrepare(res chat.PrepareResult) {
	if res.ConfigReloaded {
		fmt.Fprintln(r.out, "[config reloaded]")
	}
	if res.TemplateReloaded {
		fmt.Fprintln(r.out, "[template reloaded]")
	}
	for _, err := range res.Errors {
		fmt.Fprintf(r.out, "[reload error: %v]\n", err)
	}
}

func (r *REPL) handleCommand(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprint(r.out, `commands:
  /history            show this session's conversation
  /clear              clear this session's history
  /new                switch to a fresh session
  /session [ID]       show or switch the active session
  /sessions           list known sessions
  /config             show the active configuration
  /reload             force a config/template staleness check
  /loglevel LEVEL     change the log level at runtime
  /quit               exit
`)

	case "/history":
		history := r.composer.History(r.sessionID)
		if len(history) == 0 {
			fmt.Fprintln(r.out, "no conversation history yet")
			break
		}
		for i, msg := range history {
			fmt.Fprintf(r.out, "%3d  %-9s  %s\n", i+1, msg.Role, msg.Content)
		}

	case "/clear":
		r.composer.Clear(r.sessionID)
		fmt.Fprintln(r.out, "history cleared")

	case "/new":
		r.sessionID = uuid.NewString()
		fmt.Fprintf(r.out, "switched to new session %s\n", r.sessionID)

	case "/session":
		if len(args) == 1 {
			r.sessionID = args[0]
			fmt.Fprintf(r.out, "switched to session %s\n", r.sessionID)
		} else {
			fmt.Fprintf(r.out, "current session: %s\n", r.sessionID)
		}

	case "/sessions":
		ids := r.composer.Sessions()
		if len(ids) == 0 {
			fmt.Fprintln(r.out, "no sessions yet")
			break
		}
		for _, id := range ids {
			marker := " "
			if id == r.sessionID {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s\n", marker, id)
		}

	case "/config":
		view := r.composer.ConfigView()
		keys := make([]string, 0, len(view))
		for key := range view {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(r.out, "%s = %v\n", key, view[key])
		}

	case "/reload":
		r.reportPrepare(r.composer.Prepare())
		fmt.Fprintln(r.out, "reload check complete")

	case "/loglevel":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: /loglevel trace|debug|info|warn|error")
			break
		}
		if err := logging.SetLevel(args[0]); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			break
		}
		fmt.Fprintf(r.out, "log level set to %s\n", args[0])

	default:
		fmt.Fprintf(r.out, "unknown command %s (try /help)\n", cmd)
	}
	return false
}
