package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/onechat/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "onechat",
		Usage:   "Hot-reloading chat client for OpenAI-compatible model endpoints",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "onechat.toml",
				EnvVars: []string{"ONECHAT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmd.ChatCommand(),
			cmd.ConfigCommand(),
		},
		DefaultCommand: "chat",
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
