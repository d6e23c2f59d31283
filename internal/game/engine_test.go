package game

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"giocasconto/internal/catalog"
)

// instantConfig resolves every delay synchronously and keeps the countdown
// goroutine from ever firing during a test; tests drive ticks by hand.
func instantConfig() Config {
	cfg := DefaultConfig()
	cfg.FlipDelay = 0
	cfg.MismatchDelay = 0
	cfg.TickInterval = time.Hour
	cfg.MaxDuration = 2 * time.Hour
	return cfg
}

type recordedResult struct {
	phone      string
	best       int
	rewardCode string
}

type stubRecorder struct {
	results []recordedResult
}

func (r *stubRecorder) RecordResult(phone string, best int, code string) {
	r.results = append(r.results, recordedResult{phone, best, code})
}

type stubNotifier struct {
	started int
	ended   int
}

func (n *stubNotifier) SessionStarted()   { n.started++ }
func (n *stubNotifier) AllSessionsEnded() { n.ended++ }

func newTestEngine(t *testing.T, cfg Config) (*Engine, *stubRecorder, *stubNotifier) {
	t.Helper()
	rec := &stubRecorder{}
	idle := &stubNotifier{}
	return NewEngine(cfg, catalog.Appliances(), rand.New(rand.NewSource(7)), rec, idle), rec, idle
}

// cardPositions exposes the hidden layout for white-box tests.
func cardPositions(e *Engine, id string) map[string][]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	byItem := make(map[string][]int)
	for _, c := range e.sessions[id].Cards {
		byItem[c.ItemID] = append(byItem[c.ItemID], c.Position)
	}
	return byItem
}

func TestStartBuildsFreshSession(t *testing.T) {
	e, _, idle := newTestEngine(t, instantConfig())

	snap, err := e.Start("32012345678", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if snap.State != StatePlaying {
		t.Errorf("state = %q, want playing", snap.State)
	}
	if len(snap.Cards) != 20 {
		t.Errorf("cards = %d, want 20", len(snap.Cards))
	}
	if snap.Score != 0 || snap.MatchedPairs != 0 {
		t.Errorf("score/pairs = %d/%d, want 0/0", snap.Score, snap.MatchedPairs)
	}
	if snap.RemainingMs != (2 * time.Hour).Milliseconds() {
		t.Errorf("remaining = %d ms", snap.RemainingMs)
	}
	for _, c := range snap.Cards {
		if c.State != CardHidden {
			t.Errorf("card %d starts %q, want hidden", c.Position, c.State)
		}
		if c.ItemID != "" {
			t.Errorf("card %d leaks item id %q while hidden", c.Position, c.ItemID)
		}
	}
	if idle.started != 1 {
		t.Errorf("idle notifier started %d times, want 1", idle.started)
	}

	if _, err := e.Start("32012345678", false); err != ErrSessionActive {
		t.Errorf("second Start for same phone = %v, want ErrSessionActive", err)
	}
}

func TestMatchIncreasesScoreAndPairs(t *testing.T) {
	e, _, _ := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", false)

	var pair []int
	for _, positions := range cardPositions(e, snap.ID) {
		pair = positions
		break
	}

	if _, err := e.Select(snap.ID, pair[0]); err != nil {
		t.Fatalf("first select: %v", err)
	}
	after, err := e.Select(snap.ID, pair[1])
	if err != nil {
		t.Fatalf("second select: %v", err)
	}

	if after.Score != 150 {
		t.Errorf("score = %d, want 150", after.Score)
	}
	if after.MatchedPairs != 1 {
		t.Errorf("matchedPairs = %d, want 1", after.MatchedPairs)
	}
	if after.InputLocked {
		t.Error("input should unlock immediately after a match")
	}
	for _, pos := range pair {
		if after.Cards[pos].State != CardMatched {
			t.Errorf("card %d state = %q, want matched", pos, after.Cards[pos].State)
		}
	}
}

func TestMismatchFloorsScoreAtZero(t *testing.T) {
	e, _, _ := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", false)

	var a, b int
	byItem := cardPositions(e, snap.ID)
	items := make([]string, 0, len(byItem))
	for id := range byItem {
		items = append(items, id)
	}
	a = byItem[items[0]][0]
	b = byItem[items[1]][0]

	e.Select(snap.ID, a)
	after, err := e.Select(snap.ID, b)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}

	if after.Score != 0 {
		t.Errorf("score = %d, want floored at 0", after.Score)
	}
	if after.MatchedPairs != 0 {
		t.Errorf("matchedPairs = %d, want 0", after.MatchedPairs)
	}
	// With zero delays the mismatched pair hides synchronously.
	if after.Cards[a].State != CardHidden || after.Cards[b].State != CardHidden {
		t.Errorf("mismatched cards should be hidden again, got %q/%q", after.Cards[a].State, after.Cards[b].State)
	}
	if after.InputLocked {
		t.Error("input should be unlocked after mismatch resolution")
	}
}

func TestSelectNoOps(t *testing.T) {
	e, _, _ := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", false)

	var pair []int
	for _, positions := range cardPositions(e, snap.ID) {
		pair = positions
		break
	}

	first, _ := e.Select(snap.ID, pair[0])
	again, err := e.Select(snap.ID, pair[0])
	if err != nil {
		t.Fatalf("repeat select: %v", err)
	}
	if again.Score != first.Score || again.Cards[pair[0]].State != CardRevealed {
		t.Error("re-selecting the first card must be a no-op")
	}

	if _, err := e.Select(snap.ID, -1); err != ErrInvalidPosition {
		t.Errorf("negative position = %v, want ErrInvalidPosition", err)
	}
	if _, err := e.Select(snap.ID, len(snap.Cards)); err != ErrInvalidPosition {
		t.Errorf("out-of-range position = %v, want ErrInvalidPosition", err)
	}
	if _, err := e.Select("nope", 0); err != ErrSessionNotFound {
		t.Errorf("unknown session = %v, want ErrSessionNotFound", err)
	}
}

func TestSelectWhileComparingIsNoOp(t *testing.T) {
	cfg := instantConfig()
	cfg.FlipDelay = time.Hour // keep the comparison pending
	e, _, _ := newTestEngine(t, cfg)
	snap, _ := e.Start("32012345678", false)

	byItem := cardPositions(e, snap.ID)
	var a, b, other int
	seen := 0
	for _, positions := range byItem {
		switch seen {
		case 0:
			a, b = positions[0], positions[1]
		case 1:
			other = positions[0]
		}
		seen++
	}

	e.Select(snap.ID, a)
	locked, _ := e.Select(snap.ID, b)
	if !locked.InputLocked {
		t.Fatal("input should lock while the comparison is pending")
	}

	after, err := e.Select(snap.ID, other)
	if err != nil {
		t.Fatalf("select while locked: %v", err)
	}
	if after.Cards[other].State != CardHidden {
		t.Error("selection while locked must not reveal a card")
	}
}

func TestFullGameEarnsRewardAndRecords(t *testing.T) {
	e, rec, idle := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", false)

	for _, positions := range cardPositions(e, snap.ID) {
		e.Select(snap.ID, positions[0])
		snap, _ = e.Select(snap.ID, positions[1])
	}

	if snap.State != StateFinished {
		t.Fatalf("state = %q, want finished", snap.State)
	}
	if snap.Score != 1500 {
		t.Errorf("final score = %d, want 1500", snap.Score)
	}
	if !strings.HasPrefix(snap.RewardCode, "SCONTO5678") {
		t.Errorf("reward code = %q, want SCONTO5678 prefix", snap.RewardCode)
	}

	if len(rec.results) != 1 {
		t.Fatalf("recorder called %d times, want 1", len(rec.results))
	}
	got := rec.results[0]
	if got.phone != "32012345678" || got.best != 1500 || got.rewardCode != snap.RewardCode {
		t.Errorf("recorded %+v", got)
	}

	// Selecting after the finish is rejected.
	if _, err := e.Select(snap.ID, 0); err != ErrNotPlaying {
		t.Errorf("select after finish = %v, want ErrNotPlaying", err)
	}

	if err := e.Ack(snap.ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, err := e.Snapshot(snap.ID); err != ErrSessionNotFound {
		t.Errorf("snapshot after ack = %v, want ErrSessionNotFound", err)
	}
	if idle.ended != 1 {
		t.Errorf("idle notifier ended %d times, want 1", idle.ended)
	}
}

func TestAlreadyClaimedNeverEarnsAgain(t *testing.T) {
	e, rec, _ := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", true)

	for _, positions := range cardPositions(e, snap.ID) {
		e.Select(snap.ID, positions[0])
		snap, _ = e.Select(snap.ID, positions[1])
	}

	if snap.State != StateFinished || snap.Score != 1500 {
		t.Fatalf("state/score = %q/%d", snap.State, snap.Score)
	}
	if snap.RewardCode != "" {
		t.Errorf("reward code = %q, want none for an already-claimed phone", snap.RewardCode)
	}
	if len(rec.results) != 1 || rec.results[0].rewardCode != "" {
		t.Errorf("recorded %+v", rec.results)
	}
}

func TestCountdownExpiryForcesFinish(t *testing.T) {
	e, rec, _ := newTestEngine(t, instantConfig()) // MaxDuration = 2 ticks
	snap, _ := e.Start("32012345678", false)

	e.tick(snap.ID)
	mid, _ := e.Snapshot(snap.ID)
	if mid.State != StatePlaying {
		t.Fatalf("state after one tick = %q, want playing", mid.State)
	}

	e.tick(snap.ID)
	end, _ := e.Snapshot(snap.ID)
	if end.State != StateFinished {
		t.Fatalf("state after countdown = %q, want finished", end.State)
	}
	if end.RemainingMs != 0 {
		t.Errorf("remaining = %d ms, want 0", end.RemainingMs)
	}
	if len(rec.results) != 1 {
		t.Errorf("recorder called %d times, want 1", len(rec.results))
	}
}

func TestCountdownExpiryMidComparison(t *testing.T) {
	cfg := instantConfig()
	cfg.FlipDelay = time.Hour
	e, _, _ := newTestEngine(t, cfg)
	snap, _ := e.Start("32012345678", false)

	byItem := cardPositions(e, snap.ID)
	for _, positions := range byItem {
		e.Select(snap.ID, positions[0])
		e.Select(snap.ID, positions[1])
		break
	}

	e.tick(snap.ID)
	e.tick(snap.ID)
	end, _ := e.Snapshot(snap.ID)
	if end.State != StateFinished {
		t.Fatalf("state = %q, want finished even mid-comparison", end.State)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	e, _, _ := newTestEngine(t, instantConfig())
	snap, _ := e.Start("32012345678", false)

	events, cancel, err := e.Subscribe(snap.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	var pair []int
	for _, positions := range cardPositions(e, snap.ID) {
		pair = positions
		break
	}
	e.Select(snap.ID, pair[0])
	e.Select(snap.ID, pair[1])

	var types []EventType
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	if types[0] != EventCardRevealed {
		t.Errorf("first event = %q, want card_revealed", types[0])
	}
}

// TestScoreInvariantsProperty drives random selection sequences and checks
// that the score never goes negative and the matched-pair count never
// decreases, for any interleaving of valid and no-op selections.
func TestScoreInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		e := NewEngine(instantConfig(), catalog.Appliances(), rand.New(rand.NewSource(seed)), nil, nil)
		snap, err := e.Start("32012345678", false)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}

		steps := rapid.IntRange(1, 120).Draw(t, "steps")
		lastPairs := 0
		for i := 0; i < steps; i++ {
			pos := rapid.IntRange(0, len(snap.Cards)-1).Draw(t, "pos")
			cur, err := e.Select(snap.ID, pos)
			if err == ErrNotPlaying {
				break
			}
			if err != nil {
				t.Fatalf("Select(%d): %v", pos, err)
			}
			if cur.Score < 0 {
				t.Fatalf("score went negative: %d", cur.Score)
			}
			if cur.MatchedPairs < lastPairs {
				t.Fatalf("matchedPairs decreased: %d -> %d", lastPairs, cur.MatchedPairs)
			}
			if cur.MatchedPairs > lastPairs+1 {
				t.Fatalf("matchedPairs jumped: %d -> %d", lastPairs, cur.MatchedPairs)
			}
			lastPairs = cur.MatchedPairs
		}
	})
}
