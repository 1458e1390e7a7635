package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kenshin-labs/bushido-duel/internal/bootstrap"
	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
)

func newLeaderboardCmd(cfg *config.Config) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the ranked standings from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer release()

			limit, offset = ledger.ClampPage(limit, offset)
			standings, err := svc.QueryLeaderboard(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to fetch leaderboard: %w", err)
			}
			printStandings(cmd.OutOrStdout(), standings)
			if total, err := svc.TotalPlayers(cmd.Context()); err == nil && len(standings) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d players recorded\n", total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultPageSize, "rows per page (max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newStatsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <address>",
		Short: "Show one player's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer release()

			stats, err := svc.PlayerStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func openLedger(cmd *cobra.Command, cfg *config.Config) (ledger.Service, func(), error) {
	svc, release, err := bootstrap.OpenLedger(cmd.Context(), cfg, false)
	if err != nil {
		release()
		return nil, nil, err
	}
	if svc == nil {
		release()
		return nil, nil, fmt.Errorf("no ledger configured, set LEDGER_BACKEND to evm or postgres")
	}
	return svc, release, nil
}

func printStats(out io.Writer, stats ledger.PlayerStats) {
	rank := "unranked"
	if stats.Rank > 0 {
		rank = fmt.Sprintf("rank #%d", stats.Rank)
	}
	fmt.Fprintf(out, "%s: %s, %d wins, %d losses, %d games\n",
		stats.Address, rank, stats.Wins, stats.Losses, stats.TotalGames)
}

func printStandings(out io.Writer, standings []ledger.Standing) {
	if len(standings) == 0 {
		fmt.Fprintln(out, "No duels recorded yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tADDRESS\tWINS\tLOSSES\tWIN RATE")
	for _, s := range standings {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.1f%%\n", s.Rank, s.Address, s.Wins, s.Losses, s.WinRate())
	}
	w.Flush()
}
