package main

// GameState is the single canonical snapshot shape consumed by the
// presentation layer, broadcast after every mutating action. Fixed, typed
// fields keep the payload from drifting between events.
type GameState struct {
	RoomCode               string            `json:"roomCode"`
	Players                []Player          `json:"players"`       // connected contestants
	AllPlayers             []Player          `json:"allPlayers"`    // full roster, leader included
	ActivePlayers          []Player          `json:"activePlayers"` // connected contestants still in the game
	Leader                 string            `json:"leader"`
	CurrentQuestion        Question          `json:"currentQuestion"`
	CurrentQuestionIndex   int               `json:"currentQuestionIndex"`
	CurrentScoreLevel      int               `json:"currentScoreLevel"`
	CurrentPlayerIndex     int               `json:"currentPlayerIndex"`
	Bank                   int               `json:"bank"`
	TotalBank              int               `json:"totalBank"`
	IsTimerRunning         bool              `json:"isTimerRunning"`
	TimeLeft               int               `json:"timeLeft"`
	Phase                  Phase             `json:"gameState"`
	ScoreLevels            []ScoreLevel      `json:"scoreLevels"`
	VotingStarted          bool              `json:"votingStarted"`
	VotingEnded            bool              `json:"votingEnded"`
	Votes                  []VoteEntry       `json:"votes"`
	VoteCounts             []TallyEntry      `json:"voteCounts"`
	DuelStarted            bool              `json:"duelStarted"`
	DuelQuestionIndex      int               `json:"duelQuestionIndex"`
	DuelScores             []DuelScoreEntry  `json:"duelScores"`
	DuelResults            []DuelResultEntry `json:"duelResults"`
	DuelPlayerOrder        []string          `json:"duelPlayerOrder"`
	CurrentDuelPlayerIndex int               `json:"currentDuelPlayerIndex"`
}

// VoteEntry is one recorded ballot, in casting order.
type VoteEntry struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// TallyEntry is one target's vote count, in seeding order.
type TallyEntry struct {
	Target string `json:"target"`
	Count  int    `json:"count"`
}

type DuelScoreEntry struct {
	Player string `json:"player"`
	Score  int    `json:"score"`
}

type DuelResultEntry struct {
	Player  string `json:"player"`
	Results []bool `json:"results"`
}

// Snapshot assembles the full room state.
func (r *GameRoom) Snapshot() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	contestants := make([]Player, 0, len(r.players))
	all := make([]Player, 0, len(r.players))
	active := make([]Player, 0, len(r.players))

	for _, p := range r.players {
		all = append(all, *p)
		if p.IsLeader || !p.IsConnected {
			continue
		}
		contestants = append(contestants, *p)
		if p.IsActive {
			active = append(active, *p)
		}
	}

	votes := make([]VoteEntry, 0, len(r.voteOrder))
	for _, voter := range r.voteOrder {
		votes = append(votes, VoteEntry{Voter: voter, Target: r.votes[voter]})
	}

	tallies := make([]TallyEntry, 0, len(r.tallyOrder))
	for _, target := range r.tallyOrder {
		tallies = append(tallies, TallyEntry{Target: target, Count: r.voteCounts[target]})
	}

	duelOrder := append([]string(nil), r.duelPlayerOrder...)
	duelScores := make([]DuelScoreEntry, 0, len(duelOrder))
	duelResults := make([]DuelResultEntry, 0, len(duelOrder))
	for _, id := range duelOrder {
		duelScores = append(duelScores, DuelScoreEntry{Player: id, Score: r.duelScores[id]})
		duelResults = append(duelResults, DuelResultEntry{Player: id, Results: append([]bool(nil), r.duelResults[id]...)})
	}

	return GameState{
		RoomCode:               r.code,
		Players:                contestants,
		AllPlayers:             all,
		ActivePlayers:          active,
		Leader:                 r.leader,
		CurrentQuestion:        r.questions[r.currentQuestionIndex],
		CurrentQuestionIndex:   r.currentQuestionIndex,
		CurrentScoreLevel:      r.currentScoreLevel,
		CurrentPlayerIndex:     r.currentPlayerIndex,
		Bank:                   r.bank,
		TotalBank:              r.totalBank,
		IsTimerRunning:         r.isTimerRunning,
		TimeLeft:               r.timeLeft,
		Phase:                  r.phase,
		ScoreLevels:            r.scoreLevels,
		VotingStarted:          r.votingStarted,
		VotingEnded:            r.votingEnded,
		Votes:                  votes,
		VoteCounts:             tallies,
		DuelStarted:            r.duelStarted,
		DuelQuestionIndex:      r.duelQuestionIndex,
		DuelScores:             duelScores,
		DuelResults:            duelResults,
		DuelPlayerOrder:        duelOrder,
		CurrentDuelPlayerIndex: r.currentDuelPlayerIndex,
	}
}
