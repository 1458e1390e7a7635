// Package bootstrap builds the configured ledger back end and peer transport
// for the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
	"github.com/kenshin-labs/bushido-duel/internal/repository/postgres"
	"github.com/kenshin-labs/bushido-duel/internal/repository/redis"
	"github.com/kenshin-labs/bushido-duel/internal/transport/natspeer"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
	wstransport "github.com/kenshin-labs/bushido-duel/internal/transport/websocket"
)

// OpenLedger returns the ledger selected by cfg.LedgerBackend, or nil for
// LedgerNone. With cache set, leaderboard pages go through Redis when it is
// reachable. The returned func releases everything that was opened.
func OpenLedger(ctx context.Context, cfg *config.Config, cache bool) (ledger.Service, func(), error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var svc ledger.Service
	switch cfg.LedgerBackend {
	case "", config.LedgerNone:
		return nil, release, nil

	case config.LedgerEVM:
		evm, err := ledger.NewEVM(ctx, cfg.LedgerRPCURL, cfg.LedgerContract, cfg.LedgerPrivateKey)
		if err != nil {
			return nil, release, err
		}
		closers = append(closers, evm.Close)
		svc = evm

	case config.LedgerPostgres:
		if cfg.DatabaseURL == "" {
			return nil, release, fmt.Errorf("LEDGER_BACKEND=postgres needs DATABASE_URL")
		}
		db, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
		if err != nil {
			return nil, release, err
		}
		closers = append(closers, func() { db.Close() })
		svc = postgres.NewLeaderboardRepo(db)

	default:
		return nil, release, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}

	if cache {
		if client := redis.Connect(ctx, cfg.RedisURL, cfg.RedisPassword); client != nil {
			rc := redis.NewRedisCache(client)
			closers = append(closers, func() { rc.Close() })
			svc = ledger.NewCached(svc, rc, cfg.LeaderboardCacheTTL)
		}
	}

	log.Printf("[LEDGER] Using %s back end", cfg.LedgerBackend)
	return svc, release, nil
}

// OpenTransport connects the peer transport selected by cfg.PeerTransport and
// waits up to cfg.TransportReadyTimeout for it to have a local id.
func OpenTransport(ctx context.Context, cfg *config.Config) (peer.Transport, error) {
	switch cfg.PeerTransport {
	case "", config.TransportWebsocket:
		t := wstransport.NewTransport(cfg.SignalURL)
		readyCtx, cancel := context.WithTimeout(ctx, cfg.TransportReadyTimeout)
		defer cancel()
		if err := t.Ready(readyCtx); err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
		}
		return t, nil

	case config.TransportNats:
		t, err := natspeer.Connect(cfg.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown peer transport %q", cfg.PeerTransport)
}
