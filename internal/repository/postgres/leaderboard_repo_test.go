package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
)

var _ ledger.Service = (*LeaderboardRepo)(nil)

func TestSchemaIsEmbedded(t *testing.T) {
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS standings")
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS outcomes")
}

func TestSubmitOutcomeRejectsBadInputBeforeTouchingTheDatabase(t *testing.T) {
	repo := NewLeaderboardRepo(nil)

	_, err := repo.SubmitOutcome(context.Background(), "not-an-address", domain.OutcomeVictory)
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = repo.SubmitOutcome(context.Background(), "0x00000000000000000000000000000000000000aa", domain.OutcomeNone)
	require.Error(t, err)
}

// Runs against a scratch database when TEST_DATABASE_URL is set.
func TestLeaderboardRepoAgainstPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Open(url, 2, 2, 1)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`TRUNCATE outcomes, standings`)
	require.NoError(t, err)

	repo := NewLeaderboardRepo(db)
	ctx := context.Background()
	alice := "0x00000000000000000000000000000000000000a1"
	bob := "0x00000000000000000000000000000000000000b2"

	for _, o := range []domain.Outcome{domain.OutcomeVictory, domain.OutcomeVictory, domain.OutcomeDefeat} {
		receipt, err := repo.SubmitOutcome(ctx, alice, o)
		require.NoError(t, err)
		require.NotEmpty(t, receipt.TxHash)
	}
	_, err = repo.SubmitOutcome(ctx, bob, domain.OutcomeVictory)
	require.NoError(t, err)

	page, err := repo.QueryLeaderboard(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, 1, page[0].Rank)
	require.EqualValues(t, 2, page[0].Wins)
	require.EqualValues(t, 1, page[0].Losses)
	require.Equal(t, 2, page[1].Rank)

	second, err := repo.QueryLeaderboard(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 2, second[0].Rank)

	stats, err := repo.PlayerStats(ctx, alice)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalGames)
	require.Equal(t, 1, stats.Rank)

	bobStats, err := repo.PlayerStats(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 2, bobStats.Rank)

	total, err := repo.TotalPlayers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	unknown, err := repo.PlayerStats(ctx, "0x00000000000000000000000000000000000000c3")
	require.NoError(t, err)
	require.Zero(t, unknown.TotalGames)
	require.Zero(t, unknown.Rank)
}
