package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/chatroom"
	"github.com/luciancaetano/chatroom/internal/client"
	"github.com/luciancaetano/chatroom/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.ClientFromEnv(os.LookupEnv)

	cmd := &cobra.Command{
		Use:   "chatroom-client",
		Short: "Connect to a chat server from the terminal",
		Long: `Connect to a chat server and chat from the terminal.

Each line typed is sent as a message; every message from the server is
printed as it arrives. Sending "chao" leaves the chat.

Without --host and --port the client asks for the server IP address and port.

Examples:
  chatroom-client
  chatroom-client --host=127.0.0.1 --port=2050`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.Host, "host", "H", cfg.Host, "Server IP address")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Server port")
	cmd.Flags().DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Time allowed for the connection handshake")

	return cmd
}

func runClient(ctx context.Context, cmd *cobra.Command, cfg config.Client) error {
	out := cmd.OutOrStdout()
	// Prompt and chat share one reader so buffered input is not lost.
	in := bufio.NewReader(cmd.InOrStdin())

	host, port := cfg.Host, cfg.Port
	if host == "" || port == 0 {
		var err error
		host, port, err = client.Prompt(in, out)
		if err != nil {
			return err
		}
	} else if port < 1 || port > 65535 {
		return fmt.Errorf("port %d is not valid", port)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{
		URL:              client.URL(host, port),
		HandshakeTimeout: cfg.HandshakeTimeout,
		Label:            cfg.Label,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintln(out, chatroom.DefaultWelcomeMessage)

	err = c.Run(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
