package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oz-solar/jerry/internal/config"
	"github.com/oz-solar/jerry/internal/db"
	"github.com/oz-solar/jerry/internal/gateway"
	"github.com/oz-solar/jerry/internal/knowledge"
	"github.com/oz-solar/jerry/internal/relay"
	"github.com/oz-solar/jerry/internal/status"
	"github.com/oz-solar/jerry/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Jerry bot",
		Long:  "Connects to Discord, answers DMs and slash commands, and runs the scheduled broadcast and status server when configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Jerry config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return fmt.Errorf("no Gemini API key: set model.api_key in %s or GEMINI_API_KEY", configPath)
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	st, err := store.New(conn)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := gateway.New(ctx, gateway.Opts{
		APIKey:    apiKey,
		Direct:    cfg.Model.Direct,
		Broadcast: cfg.Model.Broadcast,
		Timeout:   time.Duration(cfg.Model.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	bot, err := relay.New(relay.Opts{
		Gateway:       gw,
		Knowledge:     knowledge.New(cfg.Knowledge.Path),
		Store:         st,
		HistoryWindow: cfg.Discord.HistoryWindow,
	})
	if err != nil {
		return err
	}

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("jerry: shutting down")
		cancel()
	}()

	if cfg.Status.Enabled {
		go func() {
			err := status.Start(ctx, status.StartOpts{
				Store:          st,
				Port:           cfg.Status.Port,
				DirectModel:    cfg.Model.Direct.Model,
				BroadcastModel: cfg.Model.Broadcast.Model,
				StartedAt:      time.Now(),
				Out:            cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("jerry: status server: %v", err)
			}
		}()
	}

	go bot.RunBroadcasts(ctx, cfg.Broadcast)

	return bot.Run(ctx, cfg.Discord.Token)
}
