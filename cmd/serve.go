package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelworks/agentchat/pkg/agentcore"
	"github.com/kestrelworks/agentchat/pkg/logger"
	"github.com/kestrelworks/agentchat/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local proxy that re-streams agent replies to browsers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		if cfg.Agent.Endpoint == "" && cfg.Agent.ARN == "" {
			return errors.New("no agent configured: set agent.arn (with agent.region) or agent.endpoint")
		}

		var client *agentcore.Client
		if cfg.Agent.Endpoint != "" {
			client = agentcore.NewClientWithEndpoint(cfg.Agent.Endpoint, cfg.Agent.Qualifier)
		} else {
			client = agentcore.NewClient(cfg.Agent.Region, cfg.Agent.ARN, cfg.Agent.Qualifier)
		}

		srv := server.New(client, cfg.BearerToken, cfg.Session.ActorID, cfg.Server.AllowedOrigins)

		httpServer := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Proxy listening on %s", cfg.Server.Listen)
			fmt.Printf("agentchat proxy listening on %s\n", cfg.Server.Listen)
			errCh <- httpServer.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-stop:
			logger.Info("Shutting down proxy")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
