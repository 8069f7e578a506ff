package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// How long the duel result banner stays up before play resumes.
const duelResultDelay = 2 * time.Second

// Event names broadcast to clients.
const (
	eventGameJoined       = "gameJoined"
	eventJoinError        = "joinError"
	eventPlayerJoined     = "playerJoined"
	eventPlayerLeft       = "playerLeft"
	eventPlayerEliminated = "playerEliminated"
	eventGameState        = "gameStateUpdate"
	eventTimerUpdate      = "timerUpdate"
	eventRoomStarted      = "gameRoomStart"
	eventDuelStarted      = "duelStarted"
	eventDuelEnded        = "duelEnded"
)

// ClientMessage is the JSON structure received from clients.
type ClientMessage struct {
	Type       string `json:"type"`
	RoomCode   string `json:"roomCode,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	IsLeader   bool   `json:"isLeader,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`
	TargetID   string `json:"targetId,omitempty"`
	IsCorrect  bool   `json:"isCorrect,omitempty"`
}

// GameStateMessage carries the full snapshot; reused for gameJoined,
// gameStateUpdate, and gameRoomStart.
type GameStateMessage struct {
	Type  string    `json:"type"`
	State GameState `json:"state"`
}

type JoinErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PlayerJoinedMessage struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

type PlayerEliminatedMessage struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

type TimerUpdateMessage struct {
	Type     string `json:"type"`
	TimeLeft int    `json:"timeLeft"`
}

type DuelStartedMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

type DuelEndedMessage struct {
	Type      string `json:"type"`
	Winner    Player `json:"winner"`
	TotalBank int    `json:"totalBank"`
}

type wsClient struct {
	id       string
	roomCode string
	conn     *websocket.Conn
	gw       *Gateway

	mu     sync.Mutex
	send   chan any
	closed bool
}

// enqueue hands msg to the write pump. Messages to a full or torn-down
// client are dropped rather than blocking or panicking.
func (c *wsClient) enqueue(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// close tears down the outbound channel. Only called once the connection
// is gone; an explicit leave keeps the channel open, since the same
// connection may still request state or rejoin. Safe to call twice.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) readPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.gw.dispatch(c, msg)
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// Gateway bridges transport events to room method calls. It resolves each
// inbound action to a room, invokes one method, and broadcasts the
// resulting snapshot. Every mutating action except casting a vote is
// leader-gated; unauthorized or mistimed requests are silently ignored.
type Gateway struct {
	cfg      *Config
	registry *Registry
	clock    clockwork.Clock

	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool

	upgrader websocket.Upgrader
}

func newTriviaGateway(cfg *Config, clock clockwork.Clock, questions []Question) *Gateway {
	gw := &Gateway{
		cfg:     cfg,
		clock:   clock,
		clients: make(map[string]map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	gw.registry = NewRegistry(func(code string) *GameRoom {
		return NewGameRoom(code, questions, cfg.roundDuration, clock, gw)
	})

	return gw
}

// Broadcast delivers msg to every connection in a room. Slow clients have
// the message dropped rather than stalling the room.
func (gw *Gateway) Broadcast(roomCode string, msg any) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()

	for client := range gw.clients[roomCode] {
		client.enqueue(msg)
	}

	metricEventsBroadcast.Inc()
}

// broadcastExcept delivers msg to everyone in a room but the sender.
func (gw *Gateway) broadcastExcept(roomCode string, sender *wsClient, msg any) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()

	for client := range gw.clients[roomCode] {
		if client == sender {
			continue
		}
		client.enqueue(msg)
	}
}

// sendTo delivers msg to a single connection.
func (gw *Gateway) sendTo(c *wsClient, msg any) {
	c.enqueue(msg)
}

func (gw *Gateway) register(c *wsClient, roomCode string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.clients[roomCode] == nil {
		gw.clients[roomCode] = make(map[*wsClient]bool)
	}
	gw.clients[roomCode][c] = true
}

func (gw *Gateway) unregister(c *wsClient) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if set, ok := gw.clients[c.roomCode]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(gw.clients, c.roomCode)
		}
	}
}

// clientCount returns the number of active connections across all rooms.
func (gw *Gateway) clientCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()

	total := 0
	for _, set := range gw.clients {
		total += len(set)
	}

	return total
}

func (gw *Gateway) broadcastState(room *GameRoom) {
	gw.Broadcast(room.Code(), GameStateMessage{
		Type:  eventGameState,
		State: room.Snapshot(),
	})
}

// leaderRoom resolves a room and verifies the acting connection holds the
// leader role. Returns nil, and counts a rejection, otherwise.
func (gw *Gateway) leaderRoom(c *wsClient, code string) *GameRoom {
	room := gw.registry.Get(code)
	if room == nil || !room.IsLeaderConn(c.id) {
		metricActionsRejected.Inc()
		return nil
	}

	return room
}

func (gw *Gateway) dispatch(c *wsClient, msg ClientMessage) {
	code := msg.RoomCode
	if code == "" {
		code = c.roomCode
	}

	switch msg.Type {
	case "join":
		gw.handleJoin(c, code, msg)
	case "leave":
		gw.handleLeave(c, code)
	case "startRoom":
		gw.handleStartRoom(c, code)
	case "getState":
		if room := gw.registry.Get(code); room != nil {
			gw.sendTo(c, GameStateMessage{Type: eventGameState, State: room.Snapshot()})
		}
	case "startTimer":
		if room := gw.leaderRoom(c, code); room != nil {
			room.StartTimer()
			gw.broadcastState(room)
		}
	case "restartTimer":
		if room := gw.leaderRoom(c, code); room != nil {
			room.RestartTimer()
			gw.broadcastState(room)
		}
	case "resetActivity":
		if room := gw.leaderRoom(c, code); room != nil {
			room.ResetActivity()
			gw.broadcastState(room)
		}
	case "correct":
		if room := gw.leaderRoom(c, code); room != nil {
			room.HandleCorrect()
			gw.broadcastState(room)
		}
	case "incorrect":
		if room := gw.leaderRoom(c, code); room != nil {
			room.HandleIncorrect()
			gw.broadcastState(room)
		}
	case "bank":
		if room := gw.leaderRoom(c, code); room != nil {
			room.BankMoney()
			gw.broadcastState(room)
		}
	case "nextQuestion":
		if room := gw.leaderRoom(c, code); room != nil {
			room.NextQuestion()
			gw.broadcastState(room)
		}
	case "startVoting":
		if room := gw.leaderRoom(c, code); room != nil {
			room.StartVoting()
			gw.broadcastState(room)
		}
	case "castVote":
		if room := gw.registry.Get(code); room != nil {
			if room.CastVote(c.id, msg.TargetID) {
				gw.broadcastState(room)
			} else {
				metricActionsRejected.Inc()
			}
		}
	case "endVoting":
		if room := gw.leaderRoom(c, code); room != nil {
			room.EndVoting()
			gw.broadcastState(room)
		}
	case "eliminate":
		gw.handleEliminate(c, code, msg.PlayerID)
	case "startDuel":
		if room := gw.leaderRoom(c, code); room != nil && room.StartDuel() {
			gw.Broadcast(code, DuelStartedMessage{Type: eventDuelStarted, RoomCode: code})
			gw.broadcastState(room)
		}
	case "startDuelQuestions":
		if room := gw.leaderRoom(c, code); room != nil && room.StartDuelQuestions() {
			gw.broadcastState(room)
		}
	case "duelAnswer":
		if room := gw.leaderRoom(c, code); room != nil && room.DuelAnswer(msg.PlayerID, msg.IsCorrect) {
			gw.broadcastState(room)
		}
	case "nextDuelQuestion":
		if room := gw.leaderRoom(c, code); room != nil && room.NextDuelQuestion() {
			gw.broadcastState(room)
		}
	case "endDuel":
		gw.handleEndDuel(c, code)
	default:
		// ignore unknown types
	}
}

// handleJoin applies the reconnection policy: an existing name is resumed
// under the new connection, a new name gets a fresh roster slot, and a
// started room only admits names that were present at start time. Any
// internal fault is reported to the requester alone, never to the room.
func (gw *Gateway) handleJoin(c *wsClient, code string, msg ClientMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("room", code).Any("panic", rec).Msg("join failed")
			gw.sendTo(c, JoinErrorMessage{Type: eventJoinError, Message: "unable to join game"})
		}
	}()

	room := gw.registry.Get(code)

	if room == nil && !msg.IsLeader {
		gw.sendTo(c, JoinErrorMessage{Type: eventJoinError, Message: "game room does not exist"})
		return
	}

	if gw.registry.IsStarted(code) && !gw.registry.IsAdmitted(code, msg.PlayerName) {
		gw.sendTo(c, JoinErrorMessage{Type: eventJoinError, Message: "game already started"})
		return
	}

	if room == nil {
		var err error
		room, err = gw.registry.Create(code)
		if err != nil {
			// Lost a creation race; the room exists now.
			room = gw.registry.Get(code)
		}
		if room == nil {
			gw.sendTo(c, JoinErrorMessage{Type: eventJoinError, Message: "unable to join game"})
			return
		}
	}

	player, rejoined, err := room.Join(c.id, msg.PlayerName, msg.IsLeader)
	if err != nil {
		gw.sendTo(c, JoinErrorMessage{Type: eventJoinError, Message: err.Error()})
		return
	}

	c.roomCode = code
	gw.register(c, code)

	gw.sendTo(c, GameStateMessage{Type: eventGameJoined, State: room.Snapshot()})
	gw.broadcastExcept(code, c, PlayerJoinedMessage{Type: eventPlayerJoined, Player: player})
	gw.broadcastState(room)

	log.Info().
		Str("room", code).
		Str("player", player.Name).
		Bool("leader", player.IsLeader).
		Bool("rejoined", rejoined).
		Msg("player joined")
}

// handleLeave removes the player immediately, unlike a transport-level
// disconnect, which gets a grace period.
func (gw *Gateway) handleLeave(c *wsClient, code string) {
	room := gw.registry.Get(code)
	if room == nil {
		return
	}

	removed, ok, empty := room.Remove(c.id)
	gw.unregister(c)
	if !ok {
		return
	}

	if gw.registry.IsStarted(code) {
		gw.registry.RemoveAdmittedName(code, removed.Name)
	}

	gw.Broadcast(code, PlayerLeftMessage{Type: eventPlayerLeft, PlayerID: removed.ID})

	if empty {
		gw.registry.Delete(code)
		log.Info().Str("room", code).Msg("room emptied, deleting")
		return
	}

	gw.broadcastState(room)

	log.Info().Str("room", code).Str("player", removed.Name).Msg("player left")
}

// handleStartRoom marks the game started, snapshotting the roster names as
// the admission list that gates any later joins.
func (gw *Gateway) handleStartRoom(c *wsClient, code string) {
	room := gw.leaderRoom(c, code)
	if room == nil {
		return
	}

	gw.registry.MarkStarted(code, room.PlayerNames())
	room.ResetActivity()
	room.SetReadyState()

	gw.Broadcast(code, GameStateMessage{Type: eventRoomStarted, State: room.Snapshot()})

	log.Info().Str("room", code).Msg("room started")
}

func (gw *Gateway) handleEliminate(c *wsClient, code, targetID string) {
	room := gw.leaderRoom(c, code)
	if room == nil {
		return
	}

	eliminated, ok := room.Eliminate(targetID)
	if !ok {
		metricActionsRejected.Inc()
		return
	}

	// Free the name so a replacement can claim the seat later.
	if gw.registry.IsStarted(code) {
		gw.registry.RemoveAdmittedName(code, eliminated.Name)
	}

	gw.Broadcast(code, PlayerEliminatedMessage{Type: eventPlayerEliminated, Player: eliminated})
	gw.broadcastState(room)

	log.Info().Str("room", code).Str("player", eliminated.Name).Msg("player eliminated")
}

func (gw *Gateway) handleEndDuel(c *wsClient, code string) {
	room := gw.leaderRoom(c, code)
	if room == nil {
		return
	}

	winner, totalBank, ok := room.EndDuel()
	if !ok {
		return
	}

	gw.Broadcast(code, DuelEndedMessage{Type: eventDuelEnded, Winner: winner, TotalBank: totalBank})
	gw.broadcastState(room)

	gw.clock.AfterFunc(duelResultDelay, func() {
		room.ResumePlaying()
		gw.broadcastState(room)
	})

	log.Info().Str("room", code).Str("winner", winner.Name).Int("totalBank", totalBank).Msg("duel ended")
}

// handleDisconnect marks the player disconnected and arms the grace timer.
// Only its expiry removes the player; a reconnect under the same name
// cancels it.
func (gw *Gateway) handleDisconnect(c *wsClient) {
	room := gw.registry.FindByConnection(c.id)
	gw.unregister(c)
	c.close()
	if room == nil {
		return
	}

	player, ok := room.MarkDisconnected(c.id)
	if !ok {
		return
	}

	gw.broadcastState(room)

	code := room.Code()
	room.ScheduleRemoval(player.Name, gw.cfg.gracePeriod, func(removed Player, empty bool) {
		gw.Broadcast(code, PlayerLeftMessage{Type: eventPlayerLeft, PlayerID: removed.ID})

		if empty {
			gw.registry.Delete(code)
			log.Info().Str("room", code).Msg("room emptied, deleting")
			return
		}

		gw.broadcastState(room)

		log.Info().Str("room", code).Str("player", removed.Name).Msg("player removed after grace period")
	})

	log.Debug().Str("room", code).Str("player", player.Name).Msg("player disconnected, grace timer armed")
}

// serveWS upgrades a connection and runs its pumps until disconnect.
func (gw *Gateway) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		conn, err := gw.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &wsClient{
			id:       uuid.NewString(),
			roomCode: roomID,
			conn:     conn,
			send:     make(chan any, 8),
			gw:       gw,
		}

		go client.writePump()
		client.readPump()
	}
}

// reaperLoop periodically deletes rooms idle longer than the session
// timeout and closes their connections.
func (gw *Gateway) reaperLoop() {
	ticker := gw.clock.NewTicker(gw.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for range ticker.Chan() {
		cutoff := gw.clock.Now().Add(-gw.cfg.sessionTimeout)

		for _, room := range gw.registry.List() {
			if !room.LastActive().Before(cutoff) {
				continue
			}

			code := room.Code()
			gw.registry.Delete(code)
			room.StopTimer()
			gw.closeRoomClients(code)

			log.Info().Str("room", code).Msg("idle room reaped")
		}
	}
}

func (gw *Gateway) closeRoomClients(code string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	for client := range gw.clients[code] {
		client.close()
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
	delete(gw.clients, code)
}
