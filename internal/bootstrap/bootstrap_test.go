package bootstrap

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
	wstransport "github.com/kenshin-labs/bushido-duel/internal/transport/websocket"
)

func TestOpenLedgerNone(t *testing.T) {
	svc, release, err := OpenLedger(context.Background(), &config.Config{LedgerBackend: config.LedgerNone}, true)
	require.NoError(t, err)
	require.Nil(t, svc)
	release()
}

func TestOpenLedgerRejectsBadSettings(t *testing.T) {
	ctx := context.Background()

	_, _, err := OpenLedger(ctx, &config.Config{LedgerBackend: "carrier-pigeon"}, false)
	require.ErrorContains(t, err, "unknown ledger backend")

	_, _, err = OpenLedger(ctx, &config.Config{LedgerBackend: config.LedgerPostgres}, false)
	require.ErrorContains(t, err, "DATABASE_URL")

	_, _, err = OpenLedger(ctx, &config.Config{
		LedgerBackend:  config.LedgerEVM,
		LedgerRPCURL:   "http://127.0.0.1:1",
		LedgerContract: "nope",
	}, false)
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestOpenTransportWebsocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/peer", wstransport.NewHandler(wstransport.NewRelay("secret", time.Hour, time.Minute), nil).HandleWebSocket)
	srv := httptest.NewServer(router)
	defer srv.Close()

	cfg := &config.Config{
		PeerTransport:         config.TransportWebsocket,
		SignalURL:             "ws" + strings.TrimPrefix(srv.URL, "http") + "/peer",
		TransportReadyTimeout: 2 * time.Second,
	}
	tr, err := OpenTransport(context.Background(), cfg)
	require.NoError(t, err)
	defer tr.Close()

	id, err := tr.LocalID()
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestOpenTransportUnavailable(t *testing.T) {
	cfg := &config.Config{
		PeerTransport:         config.TransportWebsocket,
		SignalURL:             "ws://127.0.0.1:1/peer",
		TransportReadyTimeout: 200 * time.Millisecond,
	}
	_, err := OpenTransport(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)

	_, err = OpenTransport(context.Background(), &config.Config{PeerTransport: "pigeon"})
	require.ErrorContains(t, err, "unknown peer transport")
}

var _ ledger.Service = (*ledger.Cached)(nil)
