package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/onechat/internal/chat"
	"github.com/onechat/internal/config"
	"github.com/onechat/internal/llm"
	"github.com/onechat/internal/logging"
	"github.com/onechat/internal/prompt"
	"github.com/onechat/internal/repl"
	"github.com/onechat/internal/retry"
	"github.com/onechat/internal/session"
)

// ChatCommand returns the interactive chat command.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "template",
				Aliases: []string{"t"},
				Usage:   "Load the system prompt template from `FILE`",
				Value:   "templates/system.tmpl",
				EnvVars: []string{"ONECHAT_TEMPLATE"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for the model endpoint",
				EnvVars: []string{"ONECHAT_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "OpenAI-compatible endpoint base URL",
				Value:   llm.DefaultBaseURL,
				EnvVars: []string{"ONECHAT_BASE_URL"},
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "initial session id",
				Value: "default",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: trace, debug, info, warn, error",
				Value:   "info",
				EnvVars: []string{"ONECHAT_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "append logs to `FILE` in addition to the console",
				EnvVars: []string{"ONECHAT_LOG_FILE"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-call timeout for model requests",
				Value: 2 * time.Minute,
			},
			&cli.Float64Flag{
				Name:  "rate-limit",
				Usage: "max model calls per second (0 disables)",
			},
		},
		Action: runChat,
	}
}

func runChat(c *cli.Context) error {
	apiKey := c.String("api-key")
	if apiKey == "" {
		return fmt.Errorf("missing API key: set --api-key or ONECHAT_API_KEY")
	}

	logger, closeLogs, err := logging.Setup(logging.Options{
		Level: c.String("log-level"),
		File:  c.String("log-file"),
	})
	if err != nil {
		return err
	}
	defer closeLogs()

	cfgStore, err := config.NewStore(c.String("config"), logging.Category(logger, "config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	promptStore, err := prompt.NewStore(c.String("template"), logging.Category(logger, "prompt"))
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	client, err := llm.New(llm.Options{
		APIKey:  apiKey,
		BaseURL: c.String("base-url"),
	}, logging.Category(logger, "llm"))
	if err != nil {
		return err
	}

	var clientOpts []llm.ResilientOption
	if d := c.Duration("timeout"); d > 0 {
		clientOpts = append(clientOpts, llm.WithTimeout(d))
	}
	if rps := c.Float64("rate-limit"); rps > 0 {
		clientOpts = append(clientOpts, llm.WithRateLimit(rps, 1))
	}
	resilient := llm.NewResilientClient(client, retry.LLMConfig(), logging.Category(logger, "llm"), clientOpts...)

	composer := chat.NewComposer(cfgStore, promptStore, session.NewMemory(), resilient, logging.Category(logger, "chat"))

	loop, err := repl.New(composer, c.String("session"), logging.Category(logger, "repl"))
	if err != nil {
		return err
	}
	return loop.Run(c.Context)
}
