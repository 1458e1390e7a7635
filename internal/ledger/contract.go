package ledger

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LeaderboardMetaData is the subset of the UniversalLeaderboard ABI the duel
// client calls.
var LeaderboardMetaData = &bind.MetaData{
	ABI: `[
	{"inputs":[{"internalType":"address","name":"player","type":"address"},{"internalType":"bool","name":"won","type":"bool"}],"name":"recordGame","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"limit","type":"uint256"},{"internalType":"uint256","name":"offset","type":"uint256"}],"name":"getLeaderboard","outputs":[{"internalType":"address[]","name":"topPlayers","type":"address[]"},{"internalType":"uint256[]","name":"wins","type":"uint256[]"},{"internalType":"uint256[]","name":"losses","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"player","type":"address"}],"name":"getPlayerStats","outputs":[{"internalType":"uint256","name":"wins","type":"uint256"},{"internalType":"uint256","name":"losses","type":"uint256"},{"internalType":"uint256","name":"totalGames","type":"uint256"},{"internalType":"uint256","name":"lastUpdated","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"player","type":"address"}],"name":"getPlayerRank","outputs":[{"internalType":"uint256","name":"rank","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getTotalPlayers","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`,
}

// Leaderboard is a Go binding around a deployed UniversalLeaderboard contract.
type Leaderboard struct {
	contract *bind.BoundContract
}

// LeaderboardPage is the getLeaderboard return tuple.
type LeaderboardPage struct {
	TopPlayers []common.Address
	Wins       []*big.Int
	Losses     []*big.Int
}

// LeaderboardStats is the getPlayerStats return tuple.
type LeaderboardStats struct {
	Wins        *big.Int
	Losses      *big.Int
	TotalGames  *big.Int
	LastUpdated *big.Int
}

func NewLeaderboard(address common.Address, backend bind.ContractBackend) (*Leaderboard, error) {
	parsed, err := LeaderboardMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, errors.New("GetABI returned nil")
	}
	return &Leaderboard{contract: bind.NewBoundContract(address, *parsed, backend, backend, backend)}, nil
}

// RecordGame is a paid mutator transaction.
//
// Solidity: function recordGame(address player, bool won) returns()
func (l *Leaderboard) RecordGame(opts *bind.TransactOpts, player common.Address, won bool) (*types.Transaction, error) {
	return l.contract.Transact(opts, "recordGame", player, won)
}

// Solidity: function getLeaderboard(uint256 limit, uint256 offset) view returns(address[] topPlayers, uint256[] wins, uint256[] losses)
func (l *Leaderboard) GetLeaderboard(opts *bind.CallOpts, limit, offset *big.Int) (LeaderboardPage, error) {
	var out []interface{}
	err := l.contract.Call(opts, &out, "getLeaderboard", limit, offset)

	var page LeaderboardPage
	if err != nil {
		return page, err
	}

	page.TopPlayers = *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	page.Wins = *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
	page.Losses = *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int)
	return page, nil
}

// Solidity: function getPlayerStats(address player) view returns(uint256 wins, uint256 losses, uint256 totalGames, uint256 lastUpdated)
func (l *Leaderboard) GetPlayerStats(opts *bind.CallOpts, player common.Address) (LeaderboardStats, error) {
	var out []interface{}
	err := l.contract.Call(opts, &out, "getPlayerStats", player)

	var stats LeaderboardStats
	if err != nil {
		return stats, err
	}

	stats.Wins = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	stats.Losses = *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	stats.TotalGames = *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	stats.LastUpdated = *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	return stats, nil
}

// GetPlayerRank returns the 1-based leaderboard position of player, 0 when
// the player has no games.
//
// Solidity: function getPlayerRank(address player) view returns(uint256 rank)
func (l *Leaderboard) GetPlayerRank(opts *bind.CallOpts, player common.Address) (*big.Int, error) {
	var out []interface{}
	err := l.contract.Call(opts, &out, "getPlayerRank", player)
	if err != nil {
		return new(big.Int), err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Solidity: function getTotalPlayers() view returns(uint256)
func (l *Leaderboard) GetTotalPlayers(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := l.contract.Call(opts, &out, "getTotalPlayers")
	if err != nil {
		return new(big.Int), err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
