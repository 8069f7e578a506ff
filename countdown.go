package main

import (
	"time"

	"github.com/rs/zerolog/log"
)

// The countdown is owned by the room, not the gateway: one per room,
// ticking once per second, forcing an incorrect-answer transition when it
// reaches zero. Stopping is idempotent; a stopped countdown leaves no
// dangling ticks behind.

// StartTimer arms the countdown. It only takes effect from the ready
// phase: the room transitions to playing, the ladder selection is cleared,
// and the turn cursor returns to the first active contestant.
func (r *GameRoom) StartTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.isTimerRunning || r.phase != PhaseReady {
		return
	}

	r.phase = PhasePlaying
	r.currentScoreLevel = -1
	r.currentPlayerIndex = 0

	r.startCountdownLocked()
}

// RestartTimer cancels any running countdown and rearms it from the full
// duration, regardless of phase. Used by the leader mid-round.
func (r *GameRoom) RestartTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()
	r.startCountdownLocked()
}

// StopTimer halts the countdown without otherwise touching room state.
func (r *GameRoom) StopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()
	r.stopCountdownLocked()
}

func (r *GameRoom) startCountdownLocked() {
	r.stopCountdownLocked()

	r.isTimerRunning = true
	r.timeLeft = int(r.roundDuration / time.Second)

	stop := make(chan struct{})
	r.timerStop = stop

	go r.runCountdown(stop)

	log.Debug().Str("room", r.code).Int("seconds", r.timeLeft).Msg("countdown armed")
}

// stopCountdownLocked is safe to call at any time, including when no
// countdown is running or the countdown already expired.
func (r *GameRoom) stopCountdownLocked() {
	r.isTimerRunning = false
	if r.timerStop != nil {
		close(r.timerStop)
		r.timerStop = nil
	}
}

func (r *GameRoom) runCountdown(stop chan struct{}) {
	ticker := r.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if expired := r.tick(stop); expired {
				return
			}
		}
	}
}

// tick decrements the remaining time by one second and broadcasts a
// lightweight time-remaining update. On reaching zero the countdown stops
// itself and forces an incorrect answer, exactly as if the leader had
// pressed "incorrect". Returns true once the countdown should cease.
//
// A tick that was already in flight when its countdown was stopped or
// rearmed identifies itself by stop channel and is discarded, so it can
// never land on a fresh countdown.
func (r *GameRoom) tick(stop chan struct{}) bool {
	r.mu.Lock()

	if !r.isTimerRunning || r.timerStop != stop {
		r.mu.Unlock()
		return true
	}

	r.timeLeft--
	left := r.timeLeft
	expired := left <= 0

	if expired {
		r.stopCountdownLocked()
		r.handleIncorrectLocked()
		log.Debug().Str("room", r.code).Msg("countdown expired, forcing incorrect answer")
	}

	r.mu.Unlock()

	r.notify.Broadcast(r.code, TimerUpdateMessage{
		Type:     eventTimerUpdate,
		TimeLeft: left,
	})

	if expired {
		r.notify.Broadcast(r.code, GameStateMessage{
			Type:  eventGameState,
			State: r.Snapshot(),
		})
	}

	return expired
}
