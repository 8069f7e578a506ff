package main

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []any
}

func (b *recordingBroadcaster) Broadcast(roomCode string, msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.msgs = append(b.msgs, msg)
}

func (b *recordingBroadcaster) messages() []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]any(nil), b.msgs...)
}

func testQuestions() []Question {
	return []Question{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3"},
	}
}

func newTestRoom(clock clockwork.Clock) (*GameRoom, *recordingBroadcaster) {
	rec := &recordingBroadcaster{}
	room := NewGameRoom("TEST01", testQuestions(), 150*time.Second, clock, rec)

	return room, rec
}

func TestJoinEnforcesContestantCap(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("host", "host", true)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, rejoined, err := room.Join("conn"+string(rune('a'+i)), "player"+string(rune('a'+i)), false)
		require.NoError(t, err)
		require.False(t, rejoined)
	}

	_, _, err = room.Join("conn-late", "latecomer", false)
	require.ErrorIs(t, err, errRoomFull)

	// The leader doesn't count against the cap, and a ninth contestant
	// can't sneak in as a second leader either.
	_, _, err = room.Join("conn-fake", "pretender", true)
	require.ErrorIs(t, err, errLeaderTaken)
}

func TestJoinRequiresName(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("c1", "", false)
	require.ErrorIs(t, err, errNameRequired)
}

func TestRejoinRebindsConnection(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("conn1", "alice", false)
	require.NoError(t, err)

	_, ok := room.MarkDisconnected("conn1")
	require.True(t, ok)

	player, rejoined, err := room.Join("conn2", "alice", false)
	require.NoError(t, err)
	require.True(t, rejoined)
	require.Equal(t, "conn2", player.ID)
	require.True(t, player.IsConnected)
	require.True(t, player.IsActive)

	require.False(t, room.HasConnection("conn1"))
	require.True(t, room.HasConnection("conn2"))

	state := room.Snapshot()
	require.Len(t, state.AllPlayers, 1)
}

func TestLeaderReconnectKeepsRole(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("conn1", "host", true)
	require.NoError(t, err)

	_, ok := room.MarkDisconnected("conn1")
	require.True(t, ok)

	player, rejoined, err := room.Join("conn2", "host", true)
	require.NoError(t, err)
	require.True(t, rejoined)
	require.True(t, player.IsLeader)

	require.True(t, room.IsLeaderConn("conn2"))
	require.False(t, room.IsLeaderConn("conn1"))
}

func TestRemoveTransfersLeadership(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("conn1", "host", true)
	require.NoError(t, err)
	_, _, err = room.Join("conn2", "bob", false)
	require.NoError(t, err)

	removed, ok, empty := room.Remove("conn1")
	require.True(t, ok)
	require.False(t, empty)
	require.Equal(t, "host", removed.Name)

	require.True(t, room.IsLeaderConn("conn2"))

	state := room.Snapshot()
	require.Len(t, state.AllPlayers, 1)
	require.True(t, state.AllPlayers[0].IsLeader)
}

func TestRemoveLastPlayerEmptiesRoom(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("conn1", "host", true)
	require.NoError(t, err)

	_, ok, empty := room.Remove("conn1")
	require.True(t, ok)
	require.True(t, empty)
}

func TestGracePeriodRemoval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, _ := newTestRoom(clock)

	_, _, err := room.Join("conn1", "alice", false)
	require.NoError(t, err)

	_, ok := room.MarkDisconnected("conn1")
	require.True(t, ok)

	expired := make(chan Player, 1)
	room.ScheduleRemoval("alice", 5*time.Second, func(removed Player, empty bool) {
		require.True(t, empty)
		expired <- removed
	})

	clock.Advance(5 * time.Second)

	select {
	case removed := <-expired:
		require.Equal(t, "alice", removed.Name)
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	require.False(t, room.HasConnection("conn1"))
}

func TestReconnectCancelsGraceRemoval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, _ := newTestRoom(clock)

	_, _, err := room.Join("conn1", "alice", false)
	require.NoError(t, err)

	_, ok := room.MarkDisconnected("conn1")
	require.True(t, ok)

	fired := make(chan Player, 1)
	room.ScheduleRemoval("alice", 5*time.Second, func(removed Player, empty bool) {
		fired <- removed
	})

	_, rejoined, err := room.Join("conn2", "alice", false)
	require.NoError(t, err)
	require.True(t, rejoined)

	clock.Advance(time.Minute)

	select {
	case <-fired:
		t.Fatal("grace timer fired despite reconnect")
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, room.HasConnection("conn2"))
}

func TestCancelRemovalDisarmsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, _ := newTestRoom(clock)

	_, _, err := room.Join("conn1", "alice", false)
	require.NoError(t, err)

	_, ok := room.MarkDisconnected("conn1")
	require.True(t, ok)

	fired := make(chan Player, 1)
	room.ScheduleRemoval("alice", 5*time.Second, func(removed Player, empty bool) {
		fired <- removed
	})

	room.CancelRemoval("alice")

	// Cancelling again, or cancelling a name with no timer, is harmless.
	room.CancelRemoval("alice")
	room.CancelRemoval("nobody")

	clock.Advance(time.Minute)

	select {
	case <-fired:
		t.Fatal("cancelled grace timer fired")
	case <-time.After(100 * time.Millisecond):
	}

	state := room.Snapshot()
	require.Len(t, state.AllPlayers, 1)
}

func TestGraceRemovalSparesDuelist(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, _ := newTestRoom(clock)

	_, _, err := room.Join("host", "host", true)
	require.NoError(t, err)
	_, _, err = room.Join("c1", "alice", false)
	require.NoError(t, err)
	_, _, err = room.Join("c2", "bob", false)
	require.NoError(t, err)

	require.True(t, room.StartDuel())
	require.True(t, room.StartDuelQuestions())

	_, ok := room.MarkDisconnected("c1")
	require.True(t, ok)

	fired := make(chan Player, 1)
	room.ScheduleRemoval("alice", 5*time.Second, func(removed Player, empty bool) {
		fired <- removed
	})

	clock.Advance(time.Minute)

	select {
	case <-fired:
		t.Fatal("duelist removed mid-duel")
	case <-time.After(100 * time.Millisecond):
	}

	state := room.Snapshot()
	require.Len(t, state.AllPlayers, 3)
}

func TestLadderClimbAndBank(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("host", "host", true)
	require.NoError(t, err)
	_, _, err = room.Join("c1", "alice", false)
	require.NoError(t, err)
	_, _, err = room.Join("c2", "bob", false)
	require.NoError(t, err)

	room.SetReadyState()
	room.StartTimer()

	require.Equal(t, PhasePlaying, room.Snapshot().Phase)

	room.HandleCorrect()
	room.HandleCorrect()
	room.HandleCorrect()

	state := room.Snapshot()
	require.Equal(t, 2, state.CurrentScoreLevel)

	room.BankMoney()

	state = room.Snapshot()
	require.Equal(t, 5000, state.Bank)
	require.Equal(t, 5000, state.TotalBank)
	require.Equal(t, -1, state.CurrentScoreLevel)

	// Nothing selected, so a second bank changes nothing.
	room.BankMoney()

	state = room.Snapshot()
	require.Equal(t, 5000, state.Bank)
	require.Equal(t, 5000, state.TotalBank)
}

func TestLadderClampsAtTop(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("c1", "alice", false)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		room.HandleCorrect()
	}

	state := room.Snapshot()
	require.Equal(t, len(scoreLadder())-1, state.CurrentScoreLevel)

	room.BankMoney()
	require.Equal(t, 50000, room.Snapshot().Bank)
}

func TestIncorrectBreaksChain(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("c1", "alice", false)
	require.NoError(t, err)

	room.HandleCorrect()
	room.HandleCorrect()
	room.HandleIncorrect()

	state := room.Snapshot()
	require.Equal(t, -1, state.CurrentScoreLevel)
	require.Equal(t, 0, state.Bank)
}

func TestTurnRotationSkipsEliminated(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("host", "host", true)
	require.NoError(t, err)
	_, _, err = room.Join("c1", "alice", false)
	require.NoError(t, err)
	_, _, err = room.Join("c2", "bob", false)
	require.NoError(t, err)
	_, _, err = room.Join("c3", "carol", false)
	require.NoError(t, err)

	_, ok := room.Eliminate("c2")
	require.True(t, ok)

	// Two active contestants remain, so the cursor cycles mod 2.
	room.HandleCorrect()
	require.Equal(t, 1, room.Snapshot().CurrentPlayerIndex)
	room.HandleCorrect()
	require.Equal(t, 0, room.Snapshot().CurrentPlayerIndex)
}

func TestNextQuestionWraps(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("c1", "alice", false)
	require.NoError(t, err)

	room.NextQuestion()
	room.NextQuestion()
	require.Equal(t, 2, room.Snapshot().CurrentQuestionIndex)

	room.NextQuestion()
	require.Equal(t, 0, room.Snapshot().CurrentQuestionIndex)
}

func TestResetActivityRestoresContestants(t *testing.T) {
	room, _ := newTestRoom(clockwork.NewFakeClock())

	_, _, err := room.Join("host", "host", true)
	require.NoError(t, err)
	_, _, err = room.Join("c1", "alice", false)
	require.NoError(t, err)
	_, _, err = room.Join("c2", "bob", false)
	require.NoError(t, err)

	_, ok := room.Eliminate("c1")
	require.True(t, ok)
	require.Len(t, room.Snapshot().ActivePlayers, 1)

	room.ResetActivity()
	require.Len(t, room.Snapshot().ActivePlayers, 2)
}
