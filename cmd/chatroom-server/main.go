package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/chatroom/internal/config"
	"github.com/luciancaetano/chatroom/internal/logging"
	"github.com/luciancaetano/chatroom/ws"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.ServerFromEnv(os.LookupEnv)

	cmd := &cobra.Command{
		Use:   "chatroom-server",
		Short: "Run the broadcast chat server",
		Long: `Run a WebSocket chat server.

Every text message a client sends is relayed to all connected clients,
the sender included. A client that sends the disconnect word ("chao" by
default, any letter case) is disconnected after the word is relayed.

Settings are read from CHATROOM_* environment variables; flags override them.

Examples:
  chatroom-server
  chatroom-server --addr=0.0.0.0:2050 --log-format=json
  chatroom-server --no-echo --disconnect-word=bye`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "Address to listen on")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Idle time before a silent client is dropped")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Deadline for each outbound frame")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Time allowed for connections to close on shutdown")
	flags.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "Largest accepted message in bytes")
	flags.Float64Var(&cfg.RatePerSecond, "rate-limit", cfg.RatePerSecond, "Messages per second per client (0 disables)")
	flags.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "Burst size for the per-client rate limit")
	flags.StringVar(&cfg.DisconnectWord, "disconnect-word", cfg.DisconnectWord, "Message that ends the sender's session (empty disables)")
	flags.StringVar(&cfg.WelcomeMessage, "welcome", cfg.WelcomeMessage, "Message sent to each new client (empty disables)")
	flags.BoolVar(&cfg.AllowAllOrigins, "allow-all-origins", cfg.AllowAllOrigins, "Accept upgrades from any Origin")
	flags.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "Serve Prometheus metrics on /metrics")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")

	var noEcho bool
	flags.BoolVar(&noEcho, "no-echo", !cfg.EchoToSender, "Do not relay messages back to their sender")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("no-echo") {
			cfg.EchoToSender = !noEcho
		}
	}

	cmd.AddCommand(versionCmd())
	return cmd
}

func runServer(ctx context.Context, cfg config.Server) error {
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := ws.New(cfg.WebSocket(logger))
	// Start gets a context that outlives the signal so shutdown below runs
	// with its own timeout.
	if err := server.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-server.Errors():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stop server: %w", err))
	}
	return serveErr
}
