package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const defaultGasLimit = 300000

var ErrReadOnly = errors.New("ledger has no signing key")

// EVM records outcomes on a UniversalLeaderboard contract.
type EVM struct {
	client   *ethclient.Client
	contract *Leaderboard
	address  common.Address
	auth     *bind.TransactOpts

	// serialises nonce assignment
	mu sync.Mutex
}

// NewEVM connects to rpcURL and binds the contract at contractAddress. An
// empty privateKey yields a read-only ledger.
func NewEVM(ctx context.Context, rpcURL, contractAddress, privateKey string) (*EVM, error) {
	addr, err := NormalizeAddress(contractAddress)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}

	var key *ecdsa.PrivateKey
	if privateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid ledger private key: %v", err)
		}
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %v", err)
	}

	contract, err := NewLeaderboard(common.HexToAddress(addr), client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bind failed: %v", err)
	}

	e := &EVM{
		client:   client,
		contract: contract,
		address:  common.HexToAddress(addr),
	}

	if key != nil {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to read chain id: %v", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			client.Close()
			return nil, err
		}
		auth.GasLimit = defaultGasLimit
		e.auth = auth
	}

	log.Printf("[LEDGER] Bound leaderboard contract %s (signer: %v)", addr, e.auth != nil)
	return e, nil
}

func (e *EVM) SubmitOutcome(ctx context.Context, address string, outcome domain.Outcome) (Receipt, error) {
	if e.auth == nil {
		return Receipt{}, ErrReadOnly
	}
	player, err := NormalizeAddress(address)
	if err != nil {
		return Receipt{}, err
	}
	won, err := outcomeWon(outcome)
	if err != nil {
		return Receipt{}, err
	}

	tx, err := e.send(ctx, common.HexToAddress(player), won)
	if err != nil {
		return Receipt{}, err
	}
	log.Printf("[LEDGER] Recording %s for %s, tx %s", outcome, player, tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return Receipt{TxHash: tx.Hash().Hex()}, fmt.Errorf("waiting for tx %s: %v", tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Receipt{TxHash: tx.Hash().Hex()}, fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}

	log.Printf("[LEDGER] Outcome confirmed in block %d", receipt.BlockNumber)
	return Receipt{TxHash: tx.Hash().Hex(), Block: receipt.BlockNumber.Uint64()}, nil
}

func (e *EVM) send(ctx context.Context, player common.Address, won bool) (*types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nonce, err := e.client.PendingNonceAt(ctx, e.auth.From)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %v", err)
	}

	opts := *e.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)

	tx, err := e.contract.RecordGame(&opts, player, won)
	if err != nil {
		return nil, fmt.Errorf("recordGame: %v", err)
	}
	return tx, nil
}

func (e *EVM) QueryLeaderboard(ctx context.Context, limit, offset int) ([]Standing, error) {
	limit, offset = ClampPage(limit, offset)

	page, err := e.contract.GetLeaderboard(&bind.CallOpts{Context: ctx}, big.NewInt(int64(limit)), big.NewInt(int64(offset)))
	if err != nil {
		return nil, fmt.Errorf("getLeaderboard: %v", err)
	}
	if len(page.Wins) != len(page.TopPlayers) || len(page.Losses) != len(page.TopPlayers) {
		return nil, fmt.Errorf("getLeaderboard: mismatched columns (%d players, %d wins, %d losses)",
			len(page.TopPlayers), len(page.Wins), len(page.Losses))
	}

	standings := make([]Standing, 0, len(page.TopPlayers))
	for i, player := range page.TopPlayers {
		standings = append(standings, Standing{
			Rank:    offset + i + 1,
			Address: player.Hex(),
			Wins:    page.Wins[i].Uint64(),
			Losses:  page.Losses[i].Uint64(),
		})
	}
	return standings, nil
}

func (e *EVM) PlayerStats(ctx context.Context, address string) (PlayerStats, error) {
	player, err := NormalizeAddress(address)
	if err != nil {
		return PlayerStats{}, err
	}

	raw, err := e.contract.GetPlayerStats(&bind.CallOpts{Context: ctx}, common.HexToAddress(player))
	if err != nil {
		return PlayerStats{}, fmt.Errorf("getPlayerStats: %v", err)
	}

	rank, err := e.contract.GetPlayerRank(&bind.CallOpts{Context: ctx}, common.HexToAddress(player))
	if err != nil {
		return PlayerStats{}, fmt.Errorf("getPlayerRank: %v", err)
	}

	stats := PlayerStats{
		Address:    player,
		Rank:       int(rank.Uint64()),
		Wins:       raw.Wins.Uint64(),
		Losses:     raw.Losses.Uint64(),
		TotalGames: raw.TotalGames.Uint64(),
	}
	if raw.LastUpdated.Sign() > 0 {
		stats.LastUpdated = time.Unix(raw.LastUpdated.Int64(), 0).UTC()
	}
	return stats, nil
}

// TotalPlayers reports how many addresses the contract has recorded.
func (e *EVM) TotalPlayers(ctx context.Context) (uint64, error) {
	n, err := e.contract.GetTotalPlayers(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("getTotalPlayers: %v", err)
	}
	return n.Uint64(), nil
}

func (e *EVM) Close() {
	e.client.Close()
}
