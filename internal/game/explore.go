package game

import "fmt"

func applyMove(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase != PhaseExploration || n.Exploration == nil {
		return nil, n, Diff{}, ErrWrongPhase
	}
	here, ok := Locations[n.Exploration.LocationID]
	if !ok {
		return nil, n, Diff{}, fmt.Errorf("%w: lost in %q", ErrInvalidAction, n.Exploration.LocationID)
	}
	linked := false
	for _, l := range here.Links {
		if l == a.LocationID {
			linked = true
			break
		}
	}
	if !linked {
		return nil, n, Diff{}, fmt.Errorf("%w: no path from %s to %s", ErrInvalidAction, here.ID, a.LocationID)
	}
	dest := Locations[a.LocationID]
	n.Exploration.LocationID = dest.ID
	seen := false
	for _, v := range n.Exploration.Visited {
		if v == dest.ID {
			seen = true
			break
		}
	}
	if !seen {
		n.Exploration.Visited = append(n.Exploration.Visited, dest.ID)
	}
	events := []Event{{Type: EvtPlayerMoved, PlayerID: a.PlayerID, TargetID: dest.ID}}

	if dest.AmbushID != "" && !n.fought(dest.AmbushID) {
		more, n2, d, err := startBattle(n, dest.AmbushID, a)
		if err == nil {
			d.Exploration = n2.Exploration
			return append(events, more...), n2, d, nil
		}
	}
	d := Diff{Exploration: n.Exploration}
	return events, n, d, nil
}

func (s State) fought(enemyID string) bool {
	if s.Exploration == nil {
		return false
	}
	for _, id := range s.Exploration.Defeated {
		if id == enemyID {
			return true
		}
	}
	return false
}

// applyInvestigate reveals the next clue at the current location that this
// player has not yet seen. Discovery is private: the event reaches only the
// investigator.
func applyInvestigate(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase != PhaseExploration || n.Exploration == nil {
		return nil, n, Diff{}, ErrWrongPhase
	}
	loc := Locations[n.Exploration.LocationID]
	know := n.Knowledge[a.PlayerID]
	for _, clueID := range loc.Clues {
		if know.HasClue(clueID) {
			continue
		}
		know.Clues = append(know.Clues, clueID)
		n.Knowledge[a.PlayerID] = know
		return []Event{{Type: EvtClueDiscovered, PlayerID: a.PlayerID, ClueID: clueID}}, n, Diff{}, nil
	}
	return []Event{{Type: EvtClueDiscovered, PlayerID: a.PlayerID, Message: "nothing more to find here"}}, n, Diff{}, nil
}

// applyShareClue copies a clue into the recipient's knowledge. A copy, not a
// reference: the sharer keeps the clue and cannot retract it later.
func applyShareClue(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase == PhaseLobby {
		return nil, n, Diff{}, ErrWrongPhase
	}
	if _, ok := Clues[a.ClueID]; !ok {
		return nil, n, Diff{}, fmt.Errorf("%w: unknown clue %q", ErrInvalidAction, a.ClueID)
	}
	from := n.Knowledge[a.PlayerID]
	if !from.HasClue(a.ClueID) {
		return nil, n, Diff{}, fmt.Errorf("%w: you have not discovered that clue", ErrInvalidAction)
	}
	if n.Player(a.TargetID) == nil {
		return nil, n, Diff{}, fmt.Errorf("%w: no such player", ErrInvalidAction)
	}
	to := n.Knowledge[a.TargetID]
	if !to.HasClue(a.ClueID) {
		to.Clues = append(to.Clues, a.ClueID)
		n.Knowledge[a.TargetID] = to
	}
	return []Event{{Type: EvtClueShared, PlayerID: a.PlayerID, TargetID: a.TargetID, ClueID: a.ClueID}}, n, Diff{}, nil
}

func applyAskQuestion(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase != PhaseInterrogation || n.Interrogation == nil {
		return nil, n, Diff{}, ErrWrongPhase
	}
	iv := n.Interrogation
	if iv.QuestionsRemaining <= 0 {
		return nil, n, Diff{}, fmt.Errorf("%w: no questions left", ErrNotEnoughResource)
	}
	q, ok := Questions[a.QuestionID]
	if !ok {
		return nil, n, Diff{}, fmt.Errorf("%w: unknown question %q", ErrInvalidAction, a.QuestionID)
	}
	for _, asked := range iv.Asked {
		if asked == q.ID {
			return nil, n, Diff{}, fmt.Errorf("%w: already asked", ErrInvalidAction)
		}
	}
	iv.QuestionsRemaining--
	iv.Asked = append(iv.Asked, q.ID)

	events := []Event{{Type: EvtQuestionAsked, PlayerID: a.PlayerID, Message: q.Text}}
	// The answer is a clue only the asker learns.
	know := n.Knowledge[a.PlayerID]
	if q.ClueID != "" && !know.HasClue(q.ClueID) {
		know.Clues = append(know.Clues, q.ClueID)
		n.Knowledge[a.PlayerID] = know
		events = append(events, Event{Type: EvtClueDiscovered, PlayerID: a.PlayerID, ClueID: q.ClueID})
	}
	d := Diff{Interrogation: iv}
	return events, n, d, nil
}
