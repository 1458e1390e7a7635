// Package ledger records concluded duels and serves the win/loss leaderboard.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service is the external record of match outcomes.
type Service interface {
	SubmitOutcome(ctx context.Context, address string, outcome domain.Outcome) (Receipt, error)
	QueryLeaderboard(ctx context.Context, limit, offset int) ([]Standing, error)
	PlayerStats(ctx context.Context, address string) (PlayerStats, error)
	TotalPlayers(ctx context.Context) (uint64, error)
}

// Receipt identifies a recorded outcome. TxHash is empty for back ends that
// are not a chain.
type Receipt struct {
	TxHash string `json:"tx_hash,omitempty"`
	Block  uint64 `json:"block,omitempty"`
}

type Standing struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Wins    uint64 `json:"wins"`
	Losses  uint64 `json:"losses"`
}

func (s Standing) TotalGames() uint64 {
	return s.Wins + s.Losses
}

// WinRate is the win percentage, 0 when no games were played.
func (s Standing) WinRate() float64 {
	if s.TotalGames() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalGames()) * 100
}

// PlayerStats is one player's record. Rank is 0 for a player with no games.
type PlayerStats struct {
	Address     string    `json:"address"`
	Rank        int       `json:"rank"`
	Wins        uint64    `json:"wins"`
	Losses      uint64    `json:"losses"`
	TotalGames  uint64    `json:"total_games"`
	LastUpdated time.Time `json:"last_updated"`
}

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns
// its checksummed form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// ClampPage applies the default and maximum page size and floors the offset.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func outcomeWon(outcome domain.Outcome) (bool, error) {
	switch outcome {
	case domain.OutcomeVictory:
		return true, nil
	case domain.OutcomeDefeat:
		return false, nil
	}
	return false, fmt.Errorf("cannot record outcome %q", outcome)
}
