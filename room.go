// Weakest-link trivia game session engine.
//
// Each room hosts a leader (the moderator) and up to 8 contestants who
// answer questions in turn against a shared countdown, banking ladder
// winnings as they go. Between rounds the contestants vote one of their own
// out; when two remain, the leader can settle the game with a head-to-head
// duel.
//
// Features:
// - WebSockets per room code: /trivia/:roomid and /trivia/:roomid/ws
// - Rooms are created by the first leader-flagged join
// - Players are identified across reconnects by display name
// - Disconnected players get a grace period before removal
// - Leader-only moderation; mistimed or unauthorized actions are no-ops
// - In-browser QR button to share the current room, backed by go-qrcode
// - Rooms auto-reaped after configurable idle timeout

package main

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase is a room's position in the game state machine.
type Phase string

const (
	PhaseWaiting       Phase = "waiting"
	PhaseReady         Phase = "ready"
	PhasePlaying       Phase = "playing"
	PhaseVoting        Phase = "voting"
	PhaseVotingResults Phase = "voting_results"
	PhaseDuelReady     Phase = "duel_ready"
	PhaseDuel          Phase = "duel"
)

const maxContestants = 8

var (
	errRoomFull     = errors.New("room is limited to 8 players")
	errLeaderTaken  = errors.New("room already has a leader")
	errNameRequired = errors.New("a player name is required")
)

// Player is one roster entry. The display name is the only identity that
// survives a reconnect; ID is the current connection identifier and changes
// every time the player reconnects.
type Player struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsLeader      bool   `json:"isLeader"`
	IsActive      bool   `json:"isActive"`
	IsConnected   bool   `json:"isConnected"`
	CurrentAnswer string `json:"currentAnswer"`
	HasAnswered   bool   `json:"hasAnswered"`
}

// Broadcaster delivers a named event to every member of a room. The gateway
// implements it over websockets; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(roomCode string, msg any)
}

// GameRoom owns the full state of one room. All mutations are synchronous
// method calls serialized by a single mutex; countdown ticks and
// grace-timer expiries funnel through the same lock.
type GameRoom struct {
	mu     sync.Mutex
	code   string
	clock  clockwork.Clock
	notify Broadcaster

	players []*Player // insertion order doubles as turn order
	leader  string    // connection ID of the leader, empty if none

	questions   []Question
	scoreLevels []ScoreLevel

	currentQuestionIndex int
	currentScoreLevel    int // -1 when no rung is selected
	currentPlayerIndex   int
	bank                 int
	totalBank            int

	phase Phase

	roundDuration  time.Duration
	isTimerRunning bool
	timeLeft       int
	timerStop      chan struct{}

	votingStarted bool
	votingEnded   bool
	votes         map[string]string // voter -> target
	voteOrder     []string
	voteCounts    map[string]int // target -> tally
	tallyOrder    []string

	duelStarted            bool
	duelQuestionIndex      int
	duelScores             map[string]int
	duelResults            map[string][]bool
	duelPlayerOrder        []string
	currentDuelPlayerIndex int

	graceTimers map[string]clockwork.Timer // keyed by player name

	createdAt  time.Time
	lastActive time.Time
}

func NewGameRoom(code string, questions []Question, roundDuration time.Duration, clock clockwork.Clock, notify Broadcaster) *GameRoom {
	now := clock.Now()

	return &GameRoom{
		code:              code,
		clock:             clock,
		notify:            notify,
		questions:         questions,
		scoreLevels:       scoreLadder(),
		currentScoreLevel: -1,
		phase:             PhaseWaiting,
		roundDuration:     roundDuration,
		timeLeft:          int(roundDuration / time.Second),
		votes:             make(map[string]string),
		voteCounts:        make(map[string]int),
		duelScores:        make(map[string]int),
		duelResults:       make(map[string][]bool),
		graceTimers:       make(map[string]clockwork.Timer),
		createdAt:         now,
		lastActive:        now,
	}
}

func (r *GameRoom) Code() string {
	return r.code
}

func (r *GameRoom) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastActive
}

func (r *GameRoom) touchLocked() {
	r.lastActive = r.clock.Now()
}

// Join resolves a (connection, displayName, wantsLeader) triple to a roster
// slot. A name already present means a reconnect: the entry's connection ID
// is rebound and any pending removal is cancelled. Otherwise a new entry is
// created, subject to the contestant cap and the one-leader invariant.
func (r *GameRoom) Join(connID, name string, isLeader bool) (Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if name == "" {
		return Player{}, false, errNameRequired
	}

	if existing := r.findByNameLocked(name); existing != nil {
		old := existing.ID
		existing.ID = connID
		existing.IsConnected = true
		r.cancelRemovalLocked(name)
		r.remapIDLocked(old, connID)
		if isLeader && existing.IsLeader {
			r.leader = connID
		}
		return *existing, true, nil
	}

	if isLeader {
		if r.hasLeaderLocked() {
			return Player{}, false, errLeaderTaken
		}
	} else if r.contestantCountLocked() >= maxContestants {
		return Player{}, false, errRoomFull
	}

	player := &Player{
		ID:          connID,
		Name:        name,
		IsLeader:    isLeader,
		IsActive:    true,
		IsConnected: true,
	}
	r.players = append(r.players, player)

	if isLeader {
		r.leader = connID
	}

	return *player, false, nil
}

// remapIDLocked rewrites a stale connection ID throughout the room's
// identity-keyed state, so votes, tallies, and duel standing survive a
// reconnect under a fresh connection.
func (r *GameRoom) remapIDLocked(old, current string) {
	if old == current {
		return
	}

	if r.leader == old {
		r.leader = current
	}

	for voter, target := range r.votes {
		if target == old {
			r.votes[voter] = current
		}
	}
	if target, ok := r.votes[old]; ok {
		delete(r.votes, old)
		r.votes[current] = target
	}
	for i, voter := range r.voteOrder {
		if voter == old {
			r.voteOrder[i] = current
		}
	}
	if count, ok := r.voteCounts[old]; ok {
		delete(r.voteCounts, old)
		r.voteCounts[current] = count
	}
	for i, target := range r.tallyOrder {
		if target == old {
			r.tallyOrder[i] = current
		}
	}

	if score, ok := r.duelScores[old]; ok {
		delete(r.duelScores, old)
		r.duelScores[current] = score
	}
	if results, ok := r.duelResults[old]; ok {
		delete(r.duelResults, old)
		r.duelResults[current] = results
	}
	for i, id := range r.duelPlayerOrder {
		if id == old {
			r.duelPlayerOrder[i] = current
		}
	}
}

// Remove deletes the roster entry for a connection, transferring leadership
// to an arbitrary remaining player if the leader left. Returns the removed
// player and whether the roster is now empty.
func (r *GameRoom) Remove(connID string) (Player, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	player := r.findByIDLocked(connID)
	if player == nil {
		return Player{}, false, len(r.players) == 0
	}

	return r.removeLocked(player)
}

func (r *GameRoom) removeLocked(player *Player) (Player, bool, bool) {
	removed := *player

	r.cancelRemovalLocked(player.Name)

	dst := r.players[:0]
	for _, p := range r.players {
		if p == player {
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst

	if r.leader == removed.ID && len(r.players) > 0 {
		next := r.players[0]
		next.IsLeader = true
		r.leader = next.ID
	} else if len(r.players) == 0 {
		r.leader = ""
	}

	return removed, true, len(r.players) == 0
}

// MarkDisconnected flags the roster entry for a connection as disconnected
// without removing it. Returns the affected player.
func (r *GameRoom) MarkDisconnected(connID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	player := r.findByIDLocked(connID)
	if player == nil {
		return Player{}, false
	}

	player.IsConnected = false

	return *player, true
}

// ScheduleRemoval arms the grace timer for a disconnected player. If no
// reconnect cancels it before expiry, onExpire receives the removed player
// and whether the roster emptied. While a duel is in progress a duelist is
// left in place, disconnected, rather than removed.
func (r *GameRoom) ScheduleRemoval(name string, grace time.Duration, onExpire func(removed Player, empty bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelRemovalLocked(name)

	r.graceTimers[name] = r.clock.AfterFunc(grace, func() {
		r.mu.Lock()

		delete(r.graceTimers, name)

		player := r.findByNameLocked(name)
		if player == nil || player.IsConnected {
			r.mu.Unlock()
			return
		}

		if (r.phase == PhaseDuel || r.phase == PhaseDuelReady) && r.isDuelistLocked(player.ID) {
			r.mu.Unlock()
			return
		}

		removed, _, empty := r.removeLocked(player)
		r.touchLocked()
		r.mu.Unlock()

		onExpire(removed, empty)
	})
}

// CancelRemoval disarms a pending grace timer. Cancelling an already-fired
// or absent timer is a no-op.
func (r *GameRoom) CancelRemoval(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelRemovalLocked(name)
}

func (r *GameRoom) cancelRemovalLocked(name string) {
	if timer, ok := r.graceTimers[name]; ok {
		timer.Stop()
		delete(r.graceTimers, name)
	}
}

// HasConnection reports whether a connection identifier belongs to this
// room's roster.
func (r *GameRoom) HasConnection(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findByIDLocked(connID) != nil
}

// IsLeaderConn reports whether a connection currently holds the leader role.
func (r *GameRoom) IsLeaderConn(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leader != "" && r.leader == connID
}

// PlayerNames returns every roster name, for the started-game admission list.
func (r *GameRoom) PlayerNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.Name)
	}

	return names
}

// SetReadyState arms the room for a new round: timer stopped, full time
// displayed. Entered on explicit room start and after every elimination.
func (r *GameRoom) SetReadyState() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()
	r.setReadyStateLocked()
}

func (r *GameRoom) setReadyStateLocked() {
	r.phase = PhaseReady
	r.stopCountdownLocked()
	r.timeLeft = int(r.roundDuration / time.Second)
}

// ResetActivity re-activates every contestant.
func (r *GameRoom) ResetActivity() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	for _, p := range r.players {
		if !p.IsLeader {
			p.IsActive = true
		}
	}
}

// ResumePlaying returns the room to regular play, used after the duel
// result banner has been displayed.
func (r *GameRoom) ResumePlaying() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()
	r.phase = PhasePlaying
}

// HandleCorrect advances the ladder one rung (clamped at the top, never
// banking automatically), clears per-question scratch state, and rotates
// the turn to the next active contestant.
func (r *GameRoom) HandleCorrect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.currentScoreLevel == -1 {
		r.currentScoreLevel = 0
	} else if r.currentScoreLevel < len(r.scoreLevels)-1 {
		r.currentScoreLevel++
	}

	r.clearAnswersLocked()
	r.nextPlayerLocked()
}

// HandleIncorrect drops the ladder selection back to none, clears scratch
// state, and rotates the turn. Also applied by the countdown on expiry.
func (r *GameRoom) HandleIncorrect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()
	r.handleIncorrectLocked()
}

func (r *GameRoom) handleIncorrectLocked() {
	r.currentScoreLevel = -1
	r.clearAnswersLocked()
	r.nextPlayerLocked()
}

// BankMoney secures the selected rung's value into both the current and
// cumulative banks, then clears the selection. A no-op if nothing is
// selected, so banking twice in a row changes nothing.
func (r *GameRoom) BankMoney() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.currentScoreLevel < 0 {
		return
	}

	value := r.scoreLevels[r.currentScoreLevel].Value
	r.bank += value
	r.totalBank += value
	r.currentScoreLevel = -1
}

// NextQuestion advances the shared question cursor, wrapping at the end of
// the bank. Deliberately independent of turn rotation.
func (r *GameRoom) NextQuestion() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	r.currentQuestionIndex = (r.currentQuestionIndex + 1) % len(r.questions)
	r.clearAnswersLocked()
}

func (r *GameRoom) clearAnswersLocked() {
	for _, p := range r.players {
		p.CurrentAnswer = ""
		p.HasAnswered = false
	}
}

func (r *GameRoom) nextPlayerLocked() {
	active := r.activeContestantsLocked()
	if len(active) > 0 {
		r.currentPlayerIndex = (r.currentPlayerIndex + 1) % len(active)
	}
}

func (r *GameRoom) findByIDLocked(connID string) *Player {
	for _, p := range r.players {
		if p.ID == connID {
			return p
		}
	}
	return nil
}

func (r *GameRoom) findByNameLocked(name string) *Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *GameRoom) hasLeaderLocked() bool {
	for _, p := range r.players {
		if p.IsLeader {
			return true
		}
	}
	return false
}

func (r *GameRoom) contestantCountLocked() int {
	count := 0
	for _, p := range r.players {
		if !p.IsLeader {
			count++
		}
	}
	return count
}

// activeContestantsLocked returns the non-leader players still in the game,
// in roster order.
func (r *GameRoom) activeContestantsLocked() []*Player {
	active := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if !p.IsLeader && p.IsActive {
			active = append(active, p)
		}
	}
	return active
}
