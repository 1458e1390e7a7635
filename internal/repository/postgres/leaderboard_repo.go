package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
)

// LeaderboardRepo is a ledger.Service backed by Postgres, for deployments
// without a chain.
type LeaderboardRepo struct {
	DB *sql.DB
}

func NewLeaderboardRepo(db *sql.DB) *LeaderboardRepo {
	return &LeaderboardRepo{DB: db}
}

// SubmitOutcome records one result and updates the standing transactionally.
// The receipt carries the outcome row id in place of a transaction hash.
func (r *LeaderboardRepo) SubmitOutcome(ctx context.Context, address string, outcome domain.Outcome) (ledger.Receipt, error) {
	address, err := ledger.NormalizeAddress(address)
	if err != nil {
		return ledger.Receipt{}, err
	}
	won := outcome == domain.OutcomeVictory
	if !won && outcome != domain.OutcomeDefeat {
		return ledger.Receipt{}, fmt.Errorf("cannot record outcome %q", outcome)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	wins, losses := 0, 0
	if won {
		wins = 1
	} else {
		losses = 1
	}

	query := `
	INSERT INTO standings (address, wins, losses, last_updated)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (address) DO UPDATE SET
		wins = standings.wins + EXCLUDED.wins,
		losses = standings.losses + EXCLUDED.losses,
		last_updated = NOW();
	`
	if _, err := tx.ExecContext(ctx, query, address, wins, losses); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to update standing: %v", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO outcomes (address, won) VALUES ($1, $2) RETURNING id`,
		address, won,
	).Scan(&id)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to insert outcome: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %v", err)
	}
	return ledger.Receipt{TxHash: "pg:" + strconv.FormatInt(id, 10)}, nil
}

// QueryLeaderboard ranks by wins, then fewer losses, then address.
func (r *LeaderboardRepo) QueryLeaderboard(ctx context.Context, limit, offset int) ([]ledger.Standing, error) {
	limit, offset = ledger.ClampPage(limit, offset)

	query := `
	SELECT address, wins, losses
	FROM standings
	ORDER BY wins DESC, losses ASC, address ASC
	LIMIT $1 OFFSET $2
	`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %v", err)
	}
	defer rows.Close()

	standings := make([]ledger.Standing, 0, limit)
	for rows.Next() {
		s := ledger.Standing{Rank: offset + len(standings) + 1}
		if err := rows.Scan(&s.Address, &s.Wins, &s.Losses); err != nil {
			return nil, err
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}

func (r *LeaderboardRepo) PlayerStats(ctx context.Context, address string) (ledger.PlayerStats, error) {
	address, err := ledger.NormalizeAddress(address)
	if err != nil {
		return ledger.PlayerStats{}, err
	}

	stats := ledger.PlayerStats{Address: address}
	err = r.DB.QueryRowContext(ctx,
		`SELECT wins, losses, last_updated FROM standings WHERE address = $1`,
		address,
	).Scan(&stats.Wins, &stats.Losses, &stats.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return ledger.PlayerStats{}, err
	}
	stats.TotalGames = stats.Wins + stats.Losses

	// rank is one past the number of standings ordered ahead of this one
	var ahead int
	err = r.DB.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM standings
	WHERE wins > $1
	   OR (wins = $1 AND losses < $2)
	   OR (wins = $1 AND losses = $2 AND address < $3)
	`, stats.Wins, stats.Losses, address).Scan(&ahead)
	if err != nil {
		return ledger.PlayerStats{}, fmt.Errorf("failed to rank player: %v", err)
	}
	stats.Rank = ahead + 1
	return stats, nil
}

func (r *LeaderboardRepo) TotalPlayers(ctx context.Context) (uint64, error) {
	var n uint64
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM standings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count players: %v", err)
	}
	return n, nil
}
