package main

import (
	"time"
)

// Voting: one ballot per contestant per round, tallied per target. The
// leader opens and closes the ballot and performs the elimination; the
// engine never eliminates anyone on its own.

// StartVoting opens a ballot: prior votes and tallies are cleared, the
// countdown is stopped and the displayed time reset, and a zero tally is
// seeded for every active contestant so the results render a full list.
func (r *GameRoom) StartVoting() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	r.phase = PhaseVoting
	r.votingStarted = true
	r.votingEnded = false

	r.votes = make(map[string]string)
	r.voteOrder = nil
	r.voteCounts = make(map[string]int)
	r.tallyOrder = nil

	r.stopCountdownLocked()
	r.timeLeft = int(r.roundDuration / time.Second)

	for _, p := range r.activeContestantsLocked() {
		r.voteCounts[p.ID] = 0
		r.tallyOrder = append(r.tallyOrder, p.ID)
	}
}

// CastVote records one ballot. Rejected without state change when the
// voter is the leader, votes for themselves, already voted this round, or
// the target is the leader or not on the roster.
func (r *GameRoom) CastVote(voterID, targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	voter := r.findByIDLocked(voterID)
	if voter == nil || voter.IsLeader || voterID == targetID {
		return false
	}

	target := r.findByIDLocked(targetID)
	if target == nil || target.IsLeader {
		return false
	}

	if _, voted := r.votes[voterID]; voted {
		return false
	}

	r.votes[voterID] = targetID
	r.voteOrder = append(r.voteOrder, voterID)

	if _, seeded := r.voteCounts[targetID]; !seeded {
		r.tallyOrder = append(r.tallyOrder, targetID)
	}
	r.voteCounts[targetID]++

	return true
}

// EndVoting freezes the tallies for display. It does not eliminate anyone.
func (r *GameRoom) EndVoting() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	r.phase = PhaseVotingResults
	r.votingEnded = true
}

// Eliminate marks the targeted contestant inactive. The entry stays on the
// roster so the scoreboard can show them as out. The room returns to ready
// and the current round's bank is forfeit; winnings already banked into the
// cumulative total are untouched.
func (r *GameRoom) Eliminate(targetID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	target := r.findByIDLocked(targetID)
	if target == nil || target.IsLeader {
		return Player{}, false
	}

	target.IsActive = false

	r.setReadyStateLocked()
	r.votingStarted = false
	r.votingEnded = false
	r.votes = make(map[string]string)
	r.voteOrder = nil
	r.voteCounts = make(map[string]int)
	r.tallyOrder = nil
	r.bank = 0

	return *target, true
}
