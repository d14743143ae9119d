package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oz-solar/jerry/internal/config"
	"github.com/oz-solar/jerry/internal/gateway"
	"github.com/oz-solar/jerry/internal/knowledge"
)

func newAskCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask Jerry a one-off question from the terminal",
		Long:  "Runs a single broadcast-mode model call without connecting to Discord. Useful for trying out prompt and model settings.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, configPath, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Jerry config file")
	return cmd
}

func runAsk(cmd *cobra.Command, configPath, question string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		apiKey, err = promptAPIKey(cmd)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	gw, err := gateway.New(ctx, gateway.Opts{
		APIKey:    apiKey,
		Direct:    cfg.Model.Direct,
		Broadcast: cfg.Model.Broadcast,
		Timeout:   time.Duration(cfg.Model.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	text := gw.Generate(ctx, gateway.Request{
		Transcript:     []gateway.Entry{{Role: gateway.RoleUser, Text: question}},
		ContextSnippet: knowledge.New(cfg.Knowledge.Path).Snippet(),
		Mode:           gateway.ModeBroadcast,
	})
	if text == "" {
		return fmt.Errorf("model returned no content")
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// promptAPIKey reads the Gemini API key from the terminal without echo.
func promptAPIKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no Gemini API key: set model.api_key or GEMINI_API_KEY")
	}
	fmt.Fprint(cmd.OutOrStdout(), "Gemini API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("no API key entered")
	}
	return string(key), nil
}
