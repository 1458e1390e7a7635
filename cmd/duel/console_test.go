package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
	"github.com/kenshin-labs/bushido-duel/internal/service/duel"
	"github.com/kenshin-labs/bushido-duel/internal/service/session"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type duelists struct {
	hostManager  *session.Manager
	hostMatch    *duel.Match
	hostResolver *duel.Resolver
	guestManager *session.Manager
	guestMatch   *duel.Match
}

func newDuelists(t *testing.T) duelists {
	t.Helper()
	network := peer.NewNetwork()

	var d duelists
	d.hostManager = session.NewManager(network.NewTransport())
	hostSession, err := d.hostManager.CreateSession()
	require.NoError(t, err)

	d.guestManager = session.NewManager(network.NewTransport())
	guestSession, err := d.guestManager.JoinSession(context.Background(), hostSession.ID())
	require.NoError(t, err)

	d.hostResolver = duel.NewResolver(hostSession, nil, "")
	d.hostMatch = duel.NewMatch(hostSession, d.hostResolver)
	d.guestMatch = duel.NewMatch(guestSession, duel.NewResolver(guestSession, nil, ""))
	return d
}

func TestConsoleCommands(t *testing.T) {
	d := newDuelists(t)
	out := &syncBuffer{}
	c := newConsole(out, d.hostManager, d.hostMatch, d.hostResolver)
	ctx := context.Background()

	require.False(t, c.handle(ctx, "kick"))
	require.Contains(t, out.String(), "It is not your turn.")

	require.False(t, c.handle(ctx, "FIRE"))
	require.Contains(t, out.String(), "You fight for the Fire Bushido clan.")
	require.Contains(t, out.String(), "Waiting for your opponent")

	require.NoError(t, d.guestMatch.SelectLoadout(domain.LoadoutWater))
	require.Contains(t, out.String(), "Battle start! You strike first.")
	require.Contains(t, out.String(), "Your move:")

	require.False(t, c.handle(ctx, "kick"))
	require.Contains(t, out.String(), "You kicked for 1 damage!")
	require.Equal(t, 9, d.guestMatch.Snapshot().Local.Health)

	require.False(t, c.handle(ctx, "retry"))
	require.Contains(t, out.String(), "The duel is still going.")

	require.False(t, c.handle(ctx, "dance"))
	require.Contains(t, out.String(), `Unknown command "dance"`)

	require.True(t, c.handle(ctx, "quit"))
}

func TestConsoleStopsWhenOpponentLeaves(t *testing.T) {
	d := newDuelists(t)
	out := &syncBuffer{}
	c := newConsole(out, d.hostManager, d.hostMatch, d.hostResolver)

	finished := make(chan error, 1)
	stdin, feed := io.Pipe()
	defer feed.Close()

	go func() { finished <- c.run(context.Background(), stdin) }()

	d.guestManager.LeaveSession()

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop")
	}
	require.Contains(t, out.String(), "connection was closed")
}

func TestConsoleLeavesOnEOF(t *testing.T) {
	d := newDuelists(t)
	c := newConsole(&syncBuffer{}, d.hostManager, d.hostMatch, d.hostResolver)

	require.NoError(t, c.run(context.Background(), strings.NewReader("fire\nquit\n")))
	require.Equal(t, domain.StateIdle, d.hostManager.State())
	require.Equal(t, domain.LoadoutFire, d.hostMatch.Snapshot().Local.Loadout)
}

func TestPromptFor(t *testing.T) {
	snap := duel.Snapshot{Phase: domain.PhaseSelecting}
	require.Equal(t, "Choose your clan: fire | water", promptFor(snap))

	snap.Phase = domain.PhaseInProgress
	snap.ActiveSide = domain.SideRemote
	snap.Local = domain.NewCombatant("You", 10)
	snap.Remote = domain.NewCombatant("Opponent", 10)
	require.Contains(t, promptFor(snap), "Opponent's turn")

	snap.ActiveSide = domain.SideLocal
	require.Contains(t, promptFor(snap), "[You 10/10 HP | Opponent 10/10 HP] Your move")

	snap.Phase = domain.PhaseConcluded
	require.Contains(t, promptFor(snap), "ended")
}

func TestPrintStandings(t *testing.T) {
	var buf bytes.Buffer
	printStandings(&buf, nil)
	require.Contains(t, buf.String(), "No duels recorded yet.")

	buf.Reset()
	printStandings(&buf, []ledger.Standing{{Rank: 1, Address: "0xabc", Wins: 3, Losses: 1}})
	require.Contains(t, buf.String(), "RANK")
	require.Contains(t, buf.String(), "75.0%")
}

func TestPrintStatsShowsRank(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, ledger.PlayerStats{Address: "0xabc", Rank: 3, Wins: 2, Losses: 1, TotalGames: 3})
	require.Equal(t, "0xabc: rank #3, 2 wins, 1 losses, 3 games\n", buf.String())

	buf.Reset()
	printStats(&buf, ledger.PlayerStats{Address: "0xdef"})
	require.Contains(t, buf.String(), "unranked")
}

func TestPracticeRejectsUnknownDifficulty(t *testing.T) {
	cmd := newRootCmd(&config.Config{})
	cmd.SetArgs([]string{"practice", "--difficulty", "legendary"})
	cmd.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, cmd.Execute(), "unknown difficulty")
}

func TestLeaderboardNeedsALedger(t *testing.T) {
	cmd := newRootCmd(&config.Config{LedgerBackend: config.LedgerNone})
	cmd.SetArgs([]string{"leaderboard"})
	cmd.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, cmd.Execute(), "no ledger configured")
}

func TestJoinRejectsMalformedRoomCode(t *testing.T) {
	cmd := newRootCmd(&config.Config{})
	cmd.SetArgs([]string{"join", "not-a-room"})
	cmd.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, cmd.Execute(), "is not a room code")
}
