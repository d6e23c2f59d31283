// Package game implements the memory-match session state machine: deck
// lifecycle, flip/compare resolution, scoring, the countdown, and the
// end-of-session reward evaluation.
package game

import (
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

// CardState is the flip state of a single card on the grid.
type CardState string

const (
	CardHidden   CardState = "hidden"
	CardRevealed CardState = "revealed"
	CardMatched  CardState = "matched"
)

// Card is a positional instance of a catalog item for the lifetime of one
// deck.
type Card struct {
	ItemID   string
	Position int
	State    CardState
}

// Config carries the tunable constants of the state machine. Zero delays are
// resolved synchronously, which the tests rely on.
type Config struct {
	PairBonus       int           // score gained per matched pair
	MismatchPenalty int           // score lost per mismatch, floored at 0
	RewardThreshold int           // minimum final score for a discount code
	MaxDuration     time.Duration // countdown start value
	FlipDelay       time.Duration // reveal animation time before comparing
	MismatchDelay   time.Duration // extra time mismatched cards stay revealed
	TickInterval    time.Duration // countdown granularity
}

// DefaultConfig returns the production constants of the original game.
func DefaultConfig() Config {
	return Config{
		PairBonus:       150,
		MismatchPenalty: 50,
		RewardThreshold: 1000,
		MaxDuration:     2 * time.Minute,
		FlipDelay:       500 * time.Millisecond,
		MismatchDelay:   800 * time.Millisecond,
		TickInterval:    time.Second,
	}
}

// Session is one authenticated play-through. All fields are guarded by the
// owning engine's mutex; timer callbacks re-acquire it before touching
// anything here.
type Session struct {
	ID    string
	Phone string
	State State

	Cards        []Card
	CurrentScore int
	BestScore    int // running best within this session
	MatchedPairs int
	Remaining    time.Duration
	InputLocked  bool

	AlreadyClaimed bool   // loaded from the ledger at login
	RewardCode     string // set on finish when newly earned

	firstPick  int // -1 when nothing is selected
	secondPick int

	stopCountdown chan struct{}
	pendingTimers []*time.Timer
	subs          map[chan Event]struct{}
}

// CardView is the client-visible state of a card. The item is only exposed
// once the card is revealed or matched; the server stays authoritative over
// hidden cards.
type CardView struct {
	Position int       `json:"position"`
	State    CardState `json:"state"`
	ItemID   string    `json:"itemId,omitempty"`
}

// Snapshot is the wire representation of a session.
type Snapshot struct {
	ID           string     `json:"sessionId"`
	Phone        string     `json:"phone"`
	State        State      `json:"state"`
	Score        int        `json:"score"`
	BestScore    int        `json:"bestScore"`
	MatchedPairs int        `json:"matchedPairs"`
	RemainingMs  int64      `json:"remainingMs"`
	InputLocked  bool       `json:"inputLocked"`
	RewardCode   string     `json:"rewardCode,omitempty"`
	Cards        []CardView `json:"cards"`
}

// snapshotLocked builds a Snapshot; the engine mutex must be held.
func (s *Session) snapshotLocked() Snapshot {
	cards := make([]CardView, len(s.Cards))
	for i, c := range s.Cards {
		view := CardView{Position: c.Position, State: c.State}
		if c.State != CardHidden {
			view.ItemID = c.ItemID
		}
		cards[i] = view
	}
	return Snapshot{
		ID:           s.ID,
		Phone:        s.Phone,
		State:        s.State,
		Score:        s.CurrentScore,
		BestScore:    s.BestScore,
		MatchedPairs: s.MatchedPairs,
		RemainingMs:  s.Remaining.Milliseconds(),
		InputLocked:  s.InputLocked,
		RewardCode:   s.RewardCode,
		Cards:        cards,
	}
}

// cancelTimersLocked stops the countdown and every pending flip/hide timer so
// stale callbacks cannot mutate a torn-down session.
func (s *Session) cancelTimersLocked() {
	if s.stopCountdown != nil {
		close(s.stopCountdown)
		s.stopCountdown = nil
	}
	for _, t := range s.pendingTimers {
		t.Stop()
	}
	s.pendingTimers = nil
}
