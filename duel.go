package main

// The duel is a 1-vs-1 sudden-death tie-break: when exactly two
// contestants remain, the leader snapshots them as a fixed-order pair and
// they alternate strictly enforced turns until the leader calls it.

// StartDuel snapshots the two remaining contestants as the duel pair and
// moves the room to duel_ready. Fails when any other number of contestants
// is still active.
func (r *GameRoom) StartDuel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	active := r.activeContestantsLocked()
	if len(active) != 2 {
		return false
	}

	r.phase = PhaseDuelReady
	r.duelStarted = false
	r.duelQuestionIndex = 0
	r.duelScores = make(map[string]int)
	r.duelResults = make(map[string][]bool)
	r.duelPlayerOrder = make([]string, 0, 2)
	r.currentDuelPlayerIndex = 0

	for _, p := range active {
		r.duelPlayerOrder = append(r.duelPlayerOrder, p.ID)
		r.duelScores[p.ID] = 0
		r.duelResults[p.ID] = []bool{}
	}

	return true
}

// StartDuelQuestions begins the answer loop, valid only from duel_ready.
func (r *GameRoom) StartDuelQuestions() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.phase != PhaseDuelReady {
		return false
	}

	r.phase = PhaseDuel
	r.duelStarted = true

	return true
}

// DuelAnswer scores one answer for the duelist whose turn it is. Unlike
// the main game, answering out of turn is rejected. The outcome history is
// capped to the five most recent answers.
func (r *GameRoom) DuelAnswer(playerID string, isCorrect bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.phase != PhaseDuel {
		return false
	}

	if playerID != r.duelPlayerOrder[r.currentDuelPlayerIndex] {
		return false
	}

	if isCorrect {
		r.duelScores[playerID]++
	}

	results := append(r.duelResults[playerID], isCorrect)
	if len(results) > 5 {
		results = results[len(results)-5:]
	}
	r.duelResults[playerID] = results

	r.currentDuelPlayerIndex = (r.currentDuelPlayerIndex + 1) % len(r.duelPlayerOrder)

	return true
}

// NextDuelQuestion advances both the duel-local question counter and the
// shared question cursor.
func (r *GameRoom) NextDuelQuestion() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.phase != PhaseDuel {
		return false
	}

	r.duelQuestionIndex++
	r.currentQuestionIndex = (r.currentQuestionIndex + 1) % len(r.questions)

	return true
}

// EndDuel declares the duelist with the strictly higher score the winner;
// an exact tie goes to the first duelist in the pairing order. All duel
// state is cleared; the caller announces the winner alongside the room's
// cumulative bank and later returns the room to play.
func (r *GameRoom) EndDuel() (Player, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked()

	if r.phase != PhaseDuel || len(r.duelPlayerOrder) == 0 {
		return Player{}, 0, false
	}

	winnerID := r.duelPlayerOrder[0]
	if r.duelScores[r.duelPlayerOrder[1]] > r.duelScores[winnerID] {
		winnerID = r.duelPlayerOrder[1]
	}

	var winner Player
	if p := r.findByIDLocked(winnerID); p != nil {
		winner = *p
	}

	r.duelStarted = false
	r.duelQuestionIndex = 0
	r.duelScores = make(map[string]int)
	r.duelResults = make(map[string][]bool)
	r.duelPlayerOrder = nil
	r.currentDuelPlayerIndex = 0

	return winner, r.totalBank, true
}

func (r *GameRoom) isDuelistLocked(connID string) bool {
	for _, id := range r.duelPlayerOrder {
		if id == connID {
			return true
		}
	}
	return false
}
