package game

// EventType labels a session event sent to WebSocket subscribers.
type EventType string

const (
	EventStarted      EventType = "started"
	EventCardRevealed EventType = "card_revealed"
	EventCardHidden   EventType = "card_hidden"
	EventCardMatched  EventType = "card_matched"
	EventScore        EventType = "score"
	EventTick         EventType = "tick"
	EventFinished     EventType = "finished"
)

// Event is a single state change of a session. Positions carries the cards a
// flip event refers to.
type Event struct {
	Type         EventType `json:"type"`
	Positions    []int     `json:"positions,omitempty"`
	ItemID       string    `json:"itemId,omitempty"`
	Score        int       `json:"score"`
	MatchedPairs int       `json:"matchedPairs"`
	RemainingMs  int64     `json:"remainingMs"`
	RewardCode   string    `json:"rewardCode,omitempty"`
}

const eventBuffer = 32

// publishLocked fans an event out to every subscriber. Slow subscribers drop
// events rather than block the state machine.
func (s *Session) publishLocked(ev Event) {
	ev.Score = s.CurrentScore
	ev.MatchedPairs = s.MatchedPairs
	ev.RemainingMs = s.Remaining.Milliseconds()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeSubsLocked closes every subscriber channel.
func (s *Session) closeSubsLocked() {
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
