package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kenshin-labs/bushido-duel/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load("../.env")
	}
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "duel",
		Short:         "Peer-to-peer Bushido duels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !verbose {
				log.SetOutput(io.Discard)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.SignalURL, "signal", cfg.SignalURL, "relay websocket URL")
	flags.StringVar(&cfg.PeerTransport, "transport", cfg.PeerTransport, "peer transport: websocket or nats")
	flags.StringVar(&cfg.NatsURL, "nats", cfg.NatsURL, "NATS server URL for --transport nats")
	flags.StringVar(&cfg.PlayerAddress, "address", cfg.PlayerAddress, "0x address credited on the ledger")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print protocol logs")

	cmd.AddCommand(
		newHostCmd(cfg),
		newJoinCmd(cfg),
		newPracticeCmd(cfg),
		newLeaderboardCmd(cfg),
		newStatsCmd(cfg),
	)
	return cmd
}
