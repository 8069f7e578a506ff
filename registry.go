package main

import (
	"fmt"
	"sync"
)

// Registry is the process-wide table of active rooms, keyed by room code.
// It also tracks which rooms have been started and which player names were
// admitted at start time, so that only those names may rejoin a started game.
//
// The registry is an explicitly owned object injected into the gateway at
// construction, so multiple independent instances can exist in tests.
type Registry struct {
	mu       sync.Mutex
	newRoom  func(code string) *GameRoom
	rooms    map[string]*GameRoom
	started  map[string]bool
	admitted map[string]map[string]bool
}

func NewRegistry(newRoom func(code string) *GameRoom) *Registry {
	return &Registry{
		newRoom:  newRoom,
		rooms:    make(map[string]*GameRoom),
		started:  make(map[string]bool),
		admitted: make(map[string]map[string]bool),
	}
}

// Create adds a new room for the given code. Callers must handle the
// already-exists error; creation is not get-or-create.
func (reg *Registry) Create(code string) (*GameRoom, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		return nil, fmt.Errorf("room %q already exists", code)
	}

	room := reg.newRoom(code)
	reg.rooms[code] = room

	return room, nil
}

// Get returns the room for code, or nil if absent.
func (reg *Registry) Get(code string) *GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[code]
}

// Delete removes a room along with its started flag and admitted-name set.
func (reg *Registry) Delete(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.rooms, code)
	delete(reg.started, code)
	delete(reg.admitted, code)
}

// Exists reports whether a room code is taken, for code generation.
func (reg *Registry) Exists(code string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	_, ok := reg.rooms[code]
	return ok
}

// MarkStarted snapshots the current roster names as the admission list for
// a started room. Names not in the list may no longer join.
func (reg *Registry) MarkStarted(code string, names []string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.started[code] = true

	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	reg.admitted[code] = set
}

func (reg *Registry) IsStarted(code string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.started[code]
}

// IsAdmitted reports whether name was part of the roster when the room was
// marked started.
func (reg *Registry) IsAdmitted(code, name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.admitted[code][name]
}

// RemoveAdmittedName drops a name from a started room's admission list,
// revoking that name's right to rejoin.
func (reg *Registry) RemoveAdmittedName(code, name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if set, ok := reg.admitted[code]; ok {
		delete(set, name)
	}
}

// FindByConnection scans all rooms for the one holding the given connection
// identifier. Used by disconnect handling, where only the connection is known.
func (reg *Registry) FindByConnection(connID string) *GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, room := range reg.rooms {
		if room.HasConnection(connID) {
			return room
		}
	}

	return nil
}

// List returns all active rooms, for the idle reaper.
func (reg *Registry) List() []*GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rooms := make([]*GameRoom, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

// Len returns the number of active rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.rooms)
}
