package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kenshin-labs/bushido-duel/internal/bootstrap"
	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
	"github.com/kenshin-labs/bushido-duel/internal/service/bot"
	"github.com/kenshin-labs/bushido-duel/internal/service/duel"
	"github.com/kenshin-labs/bushido-duel/internal/service/session"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
	"github.com/kenshin-labs/bushido-duel/pkg/uid"
)

func newHostCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Open a room and wait for an opponent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			transport, err := bootstrap.OpenTransport(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			defer transport.Close()

			manager := session.NewManager(transport)
			connected := awaitState(manager, domain.StateConnected)
			sess, err := manager.CreateSession()
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			fmt.Fprintf(out, "Room code: %s\n", sess.ID())
			fmt.Fprintln(out, "Share it with your opponent. Waiting for them to join...")
			select {
			case <-connected:
			case <-ctx.Done():
				manager.LeaveSession()
				return nil
			}
			fmt.Fprintln(out, "Opponent connected.")

			return play(ctx, cfg, manager, sess, cmd.InOrStdin(), out)
		},
	}
}

func newJoinCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-code>",
		Short: "Join a room hosted by another player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !uid.IsPeerID(args[0]) {
				return fmt.Errorf("%q is not a room code", args[0])
			}
			ctx := cmd.Context()

			transport, err := bootstrap.OpenTransport(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			defer transport.Close()

			manager := session.NewManager(transport)
			dialCtx, cancel := context.WithTimeout(ctx, cfg.TransportReadyTimeout)
			sess, err := manager.JoinSession(dialCtx, args[0])
			cancel()
			if errors.Is(err, domain.ErrPeerUnreachable) {
				return fmt.Errorf("could not reach room %s: %w", args[0], err)
			}
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Connected to the host.")

			return play(ctx, cfg, manager, sess, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newPracticeCmd(cfg *config.Config) *cobra.Command {
	var difficulty string

	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Duel a bot on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !bot.ValidDifficulty(difficulty) {
				return fmt.Errorf("unknown difficulty %q (easy, medium or hard)", difficulty)
			}
			ctx := cmd.Context()

			network := peer.NewNetwork()
			local := network.NewTransport()
			defer local.Close()
			remote := network.NewTransport()
			defer remote.Close()

			manager := session.NewManager(local)
			sess, err := manager.CreateSession()
			if err != nil {
				return err
			}
			runner, err := bot.Join(ctx, remote, sess.ID(), difficulty, bot.WithMaxHealth(cfg.MaxHealth))
			if err != nil {
				return err
			}
			defer runner.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "A %s opponent enters the dojo.\n", difficulty)
			resolver := duel.NewResolver(sess, nil, "")
			match := duel.NewMatch(sess, resolver, duel.WithMaxHealth(cfg.MaxHealth))
			return newConsole(cmd.OutOrStdout(), manager, match, resolver).run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", bot.DifficultyMedium, "bot difficulty: easy, medium or hard")
	return cmd
}

// play runs a networked duel on an open session until either side leaves.
func play(ctx context.Context, cfg *config.Config, manager *session.Manager, sess *session.Session, in io.Reader, out io.Writer) error {
	ledgerService, release, err := bootstrap.OpenLedger(ctx, cfg, false)
	defer release()
	if err != nil {
		fmt.Fprintf(out, "Ledger unavailable, this duel will not be recorded: %v\n", err)
	}

	address := ""
	if ledgerService != nil {
		address, err = ledger.NormalizeAddress(cfg.PlayerAddress)
		if err != nil {
			fmt.Fprintln(out, "No valid --address given, this duel will not be recorded.")
			address = ""
		}
	}

	resolver := duel.NewResolver(sess, ledgerService, address, duel.WithSubmitTimeout(cfg.LedgerTimeout))
	match := duel.NewMatch(sess, resolver, duel.WithMaxHealth(cfg.MaxHealth))
	return newConsole(out, manager, match, resolver).run(ctx, in)
}

// awaitState returns a channel closed the first time the manager enters want.
func awaitState(manager *session.Manager, want domain.ConnectionState) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once
	manager.OnConnectionStateChange(func(_ *session.Session, _, to domain.ConnectionState) {
		if to == want {
			once.Do(func() { close(ch) })
		}
	})
	return ch
}
