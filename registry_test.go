package main

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(func(code string) *GameRoom {
		return NewGameRoom(code, testQuestions(), 150*time.Second, clockwork.NewFakeClock(), &recordingBroadcaster{})
	})
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := newTestRegistry()

	require.Nil(t, reg.Get("ROOM1"))
	require.False(t, reg.Exists("ROOM1"))

	room, err := reg.Create("ROOM1")
	require.NoError(t, err)
	require.NotNil(t, room)

	require.Same(t, room, reg.Get("ROOM1"))
	require.True(t, reg.Exists("ROOM1"))
	require.Equal(t, 1, reg.Len())

	_, err = reg.Create("ROOM1")
	require.Error(t, err)
}

func TestRegistryAdmissionList(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Create("ROOM1")
	require.NoError(t, err)

	require.False(t, reg.IsStarted("ROOM1"))
	require.False(t, reg.IsAdmitted("ROOM1", "alice"))

	reg.MarkStarted("ROOM1", []string{"host", "alice", "bob"})

	require.True(t, reg.IsStarted("ROOM1"))
	require.True(t, reg.IsAdmitted("ROOM1", "alice"))
	require.False(t, reg.IsAdmitted("ROOM1", "mallory"))

	reg.RemoveAdmittedName("ROOM1", "alice")
	require.False(t, reg.IsAdmitted("ROOM1", "alice"))
}

func TestRegistryDeleteClearsStartedState(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Create("ROOM1")
	require.NoError(t, err)
	reg.MarkStarted("ROOM1", []string{"host"})

	reg.Delete("ROOM1")

	require.Nil(t, reg.Get("ROOM1"))
	require.False(t, reg.IsStarted("ROOM1"))
	require.False(t, reg.IsAdmitted("ROOM1", "host"))
	require.Equal(t, 0, reg.Len())
}

func TestRegistryFindByConnection(t *testing.T) {
	reg := newTestRegistry()

	room1, err := reg.Create("ROOM1")
	require.NoError(t, err)
	room2, err := reg.Create("ROOM2")
	require.NoError(t, err)

	_, _, err = room1.Join("conn1", "alice", false)
	require.NoError(t, err)
	_, _, err = room2.Join("conn2", "bob", false)
	require.NoError(t, err)

	require.Same(t, room1, reg.FindByConnection("conn1"))
	require.Same(t, room2, reg.FindByConnection("conn2"))
	require.Nil(t, reg.FindByConnection("conn3"))
}
