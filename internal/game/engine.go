package game

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"giocasconto/internal/catalog"
	"giocasconto/internal/reward"
)

// ResultRecorder receives the outcome of a finished session for persistence.
// It is called synchronously with the engine lock held and must not call back
// into the engine. Persistence failures are the recorder's concern; a session
// finish never fails.
type ResultRecorder interface {
	RecordResult(phone string, sessionBest int, rewardCode string)
}

// IdleNotifier is told when the board switches between active play and idle,
// so the demo driver can stop and resume.
type IdleNotifier interface {
	SessionStarted()
	AllSessionsEnded()
}

// Engine owns every live session. One session per phone number at a time;
// sessions are keyed by an opaque random ID handed to the client.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	items    []catalog.Item
	rng      *mrand.Rand
	sessions map[string]*Session
	byPhone  map[string]string
	recorder ResultRecorder
	idle     IdleNotifier
}

// NewEngine creates an engine over the given catalog. recorder and idle may
// be nil.
func NewEngine(cfg Config, items []catalog.Item, rng *mrand.Rand, recorder ResultRecorder, idle IdleNotifier) *Engine {
	if rng == nil {
		rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		cfg:      cfg,
		items:    items,
		rng:      rng,
		sessions: make(map[string]*Session),
		byPhone:  make(map[string]string),
		recorder: recorder,
		idle:     idle,
	}
}

// newSessionID returns 16 random bytes hex-encoded.
func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable for anything else too
		return hex.EncodeToString(big.NewInt(time.Now().UnixNano()).Bytes())
	}
	return hex.EncodeToString(buf)
}

// Start creates a session for an eligible phone number: fresh shuffled deck,
// score zero, full countdown. alreadyClaimed carries the ledger state loaded
// at login so the finish-time reward evaluation can honor it.
func (e *Engine) Start(phone string, alreadyClaimed bool) (Snapshot, error) {
	e.mu.Lock()

	if _, exists := e.byPhone[phone]; exists {
		e.mu.Unlock()
		return Snapshot{}, ErrSessionActive
	}

	deck := catalog.BuildDeck(e.items, e.rng)
	cards := make([]Card, len(deck))
	for i, id := range deck {
		cards[i] = Card{ItemID: id, Position: i, State: CardHidden}
	}

	s := &Session{
		ID:             newSessionID(),
		Phone:          phone,
		State:          StatePlaying,
		Cards:          cards,
		Remaining:      e.cfg.MaxDuration,
		AlreadyClaimed: alreadyClaimed,
		firstPick:      -1,
		secondPick:     -1,
		stopCountdown:  make(chan struct{}),
		subs:           make(map[chan Event]struct{}),
	}
	e.sessions[s.ID] = s
	e.byPhone[phone] = s.ID
	first := len(e.sessions) == 1

	go e.runCountdown(s.ID, s.stopCountdown)

	snap := s.snapshotLocked()
	e.mu.Unlock()

	log.Info().Str("session", s.ID).Str("phone", phone).Msg("Session started")
	if first && e.idle != nil {
		e.idle.SessionStarted()
	}
	return snap, nil
}

// runCountdown decrements the session clock once per tick until the session
// finishes or is torn down.
func (e *Engine) runCountdown(id string, stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(id)
		}
	}
}

// tick advances the countdown by one interval. Reaching zero forces the
// session to finish, even with a comparison still pending.
func (e *Engine) tick(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok || s.State != StatePlaying {
		return
	}
	s.Remaining -= e.cfg.TickInterval
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	s.publishLocked(Event{Type: EventTick})
	if s.Remaining <= 0 {
		e.finishLocked(s)
	}
}

// Select flips the card at position. Selections while input is locked, on an
// already revealed or matched card, or repeating the first pick are no-ops
// that return the unchanged snapshot.
func (e *Engine) Select(id string, position int) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if s.State != StatePlaying {
		return Snapshot{}, ErrNotPlaying
	}
	if position < 0 || position >= len(s.Cards) {
		return Snapshot{}, ErrInvalidPosition
	}

	card := &s.Cards[position]
	if s.InputLocked || card.State != CardHidden || s.firstPick == position {
		return s.snapshotLocked(), nil
	}

	card.State = CardRevealed
	s.publishLocked(Event{Type: EventCardRevealed, Positions: []int{position}, ItemID: card.ItemID})

	if s.firstPick == -1 {
		s.firstPick = position
		return s.snapshotLocked(), nil
	}

	s.secondPick = position
	s.InputLocked = true
	e.scheduleLocked(s, e.cfg.FlipDelay, e.compareLocked)

	return s.snapshotLocked(), nil
}

// scheduleLocked runs fn after delay, re-acquiring the engine lock and
// dropping the callback if the session has finished or been torn down in the
// meantime. A non-positive delay resolves synchronously.
func (e *Engine) scheduleLocked(s *Session, delay time.Duration, fn func(*Session)) {
	if delay <= 0 {
		fn(s)
		return
	}
	id := s.ID
	t := time.AfterFunc(delay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		cur, ok := e.sessions[id]
		if !ok || cur.State != StatePlaying {
			return
		}
		fn(cur)
	})
	s.pendingTimers = append(s.pendingTimers, t)
}

// compareLocked resolves the in-flight comparison after the reveal delay.
func (e *Engine) compareLocked(s *Session) {
	if s.firstPick == -1 || s.secondPick == -1 {
		return
	}
	first := &s.Cards[s.firstPick]
	second := &s.Cards[s.secondPick]

	if first.ItemID == second.ItemID {
		first.State = CardMatched
		second.State = CardMatched
		s.CurrentScore += e.cfg.PairBonus
		if s.CurrentScore > s.BestScore {
			s.BestScore = s.CurrentScore
		}
		s.MatchedPairs++
		positions := []int{first.Position, second.Position}
		s.firstPick, s.secondPick = -1, -1
		s.InputLocked = false
		s.publishLocked(Event{Type: EventCardMatched, Positions: positions, ItemID: first.ItemID})
		if s.MatchedPairs == len(e.items) {
			e.finishLocked(s)
		}
		return
	}

	s.CurrentScore -= e.cfg.MismatchPenalty
	if s.CurrentScore < 0 {
		s.CurrentScore = 0
	}
	s.publishLocked(Event{Type: EventScore})
	e.scheduleLocked(s, e.cfg.MismatchDelay, e.hideMismatchLocked)
}

// hideMismatchLocked turns the mismatched pair face-down again and unlocks
// input.
func (e *Engine) hideMismatchLocked(s *Session) {
	if s.firstPick == -1 || s.secondPick == -1 {
		return
	}
	positions := []int{s.firstPick, s.secondPick}
	for _, pos := range positions {
		if s.Cards[pos].State == CardRevealed {
			s.Cards[pos].State = CardHidden
		}
	}
	s.firstPick, s.secondPick = -1, -1
	s.InputLocked = false
	s.publishLocked(Event{Type: EventCardHidden, Positions: positions})
}

// finishLocked moves a session to its terminal state: countdown and pending
// timers stop, the reward rule runs on the final score, and the outcome goes
// to the recorder.
func (e *Engine) finishLocked(s *Session) {
	s.State = StateFinished
	s.cancelTimersLocked()
	s.InputLocked = false

	s.RewardCode = reward.Evaluate(s.CurrentScore, s.Phone, s.AlreadyClaimed, e.cfg.RewardThreshold)
	s.publishLocked(Event{Type: EventFinished, RewardCode: s.RewardCode})

	log.Info().
		Str("session", s.ID).
		Str("phone", s.Phone).
		Int("score", s.CurrentScore).
		Int("best", s.BestScore).
		Bool("reward", s.RewardCode != "").
		Msg("Session finished")

	if e.recorder != nil {
		e.recorder.RecordResult(s.Phone, s.BestScore, s.RewardCode)
	}
}

// Ack acknowledges a finished session and tears it down; the board returns to
// the idle/demo state. Acking a session still in play just abandons it
// without a ledger write, which also covers client-side teardown.
func (e *Engine) Ack(id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return ErrSessionNotFound
	}
	e.removeLocked(s)
	idleNow := len(e.sessions) == 0
	e.mu.Unlock()

	log.Info().Str("session", id).Msg("Session acknowledged")
	if idleNow && e.idle != nil {
		e.idle.AllSessionsEnded()
	}
	return nil
}

func (e *Engine) removeLocked(s *Session) {
	s.cancelTimersLocked()
	s.closeSubsLocked()
	delete(e.sessions, s.ID)
	delete(e.byPhone, s.Phone)
}

// Snapshot returns the current state of a session.
func (e *Engine) Snapshot(id string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.snapshotLocked(), nil
}

// Subscribe attaches an event channel to a session. The returned cancel
// function detaches it; the channel is closed on cancel or teardown.
func (e *Engine) Subscribe(id string) (<-chan Event, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	ch := make(chan Event, eventBuffer)
	s.subs[ch] = struct{}{}

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s.subs != nil {
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

// ActiveSessions reports how many sessions are live (playing or awaiting
// acknowledgement).
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Shutdown tears down every session, canceling all timers.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		s.cancelTimersLocked()
		s.closeSubsLocked()
	}
	e.sessions = make(map[string]*Session)
	e.byPhone = make(map[string]string)
}
