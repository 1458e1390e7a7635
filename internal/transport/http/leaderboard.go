package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
)

type LeaderboardHandler struct {
	Ledger ledger.Service
}

// NewLeaderboardHandler serves standings from l. A nil l answers 503.
func NewLeaderboardHandler(l ledger.Service) *LeaderboardHandler {
	return &LeaderboardHandler{Ledger: l}
}

type standingResponse struct {
	Rank       int     `json:"rank"`
	Address    string  `json:"address"`
	Wins       uint64  `json:"wins"`
	Losses     uint64  `json:"losses"`
	TotalGames uint64  `json:"totalGames"`
	WinRate    float64 `json:"winRate"`
}

// GetLeaderboard returns one page of standings: ?limit= (default 10, max 100)
// and ?offset= (default 0).
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Leaderboard is not configured"})
		return
	}

	limit, err := queryInt(c, "limit", ledger.DefaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a number"})
		return
	}
	limit, offset = ledger.ClampPage(limit, offset)

	standings, err := h.Ledger.QueryLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		log.Printf("[LEADERBOARD] Query failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch leaderboard"})
		return
	}

	total, err := h.Ledger.TotalPlayers(c.Request.Context())
	if err != nil {
		log.Printf("[LEADERBOARD] Player count failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch leaderboard"})
		return
	}

	response := make([]standingResponse, 0, len(standings))
	for _, s := range standings {
		response = append(response, standingResponse{
			Rank:       s.Rank,
			Address:    s.Address,
			Wins:       s.Wins,
			Losses:     s.Losses,
			TotalGames: s.TotalGames(),
			WinRate:    s.WinRate(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"limit":     limit,
		"offset":    offset,
		"total":     total,
		"standings": response,
	})
}

// GetPlayerStats returns the record and rank of one address.
func (h *LeaderboardHandler) GetPlayerStats(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Leaderboard is not configured"})
		return
	}

	stats, err := h.Ledger.PlayerStats(c.Request.Context(), c.Param("address"))
	if errors.Is(err, domain.ErrInvalidAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}
	if err != nil {
		log.Printf("[LEADERBOARD] Stats lookup failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch player stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
