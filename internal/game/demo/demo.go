// Package demo drives the idle attract mode: a non-scoring simulated
// play-through on a fresh deck, shown whenever no real session is active.
package demo

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"giocasconto/internal/catalog"
	"giocasconto/internal/game"
)

// Config carries the demo pacing. All durations must be positive in
// production; the driver never schedules a zero-delay restart loop.
type Config struct {
	IdleDelay    time.Duration // wait before the demo starts once idle
	StepInterval time.Duration // pause between revealed pairs
	FlipDelay    time.Duration // reveal time before a real pair is marked matched
	RestartPause time.Duration // pause before reshuffling after the last pair
}

// DefaultConfig returns the pacing of the original attract mode.
func DefaultConfig() Config {
	return Config{
		IdleDelay:    30 * time.Second,
		StepInterval: 1400 * time.Millisecond,
		FlipDelay:    500 * time.Millisecond,
		RestartPause: 2500 * time.Millisecond,
	}
}

// Driver owns the demo grid and its timers. It implements game.IdleNotifier:
// a starting session suspends the demo immediately, and the demo resumes once
// the board is idle again.
type Driver struct {
	mu    sync.Mutex
	cfg   Config
	items []catalog.Item
	rng   *rand.Rand

	running bool
	gen     int // invalidates stale timer callbacks
	cards   []game.Card
	order   []int // shuffled positions revealed two at a time
	pos     int
	timers  []*time.Timer
	subs    map[chan game.Event]struct{}
}

// NewDriver creates a demo driver over the given catalog.
func NewDriver(cfg Config, items []catalog.Item, rng *rand.Rand) *Driver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Driver{
		cfg:   cfg,
		items: items,
		rng:   rng,
		subs:  make(map[chan game.Event]struct{}),
	}
}

// SessionStarted suspends the demo: every pending timer is canceled and the
// grid resets face-down.
func (d *Driver) SessionStarted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspendLocked()
}

// AllSessionsEnded schedules the demo to resume after the idle delay.
func (d *Driver) AllSessionsEnded() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspendLocked()
	d.gen++
	gen := d.gen
	d.schedule(d.cfg.IdleDelay, gen, func() { d.beginLocked() })
}

// Run starts the demo promptly at boot.
func (d *Driver) Run() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginLocked()
}

// Stop cancels the demo entirely, for process shutdown.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspendLocked()
	for ch := range d.subs {
		close(ch)
	}
	d.subs = nil
}

func (d *Driver) suspendLocked() {
	d.running = false
	d.gen++
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	d.cards = nil
	d.order = nil
	d.pos = 0
}

// beginLocked deals a fresh shuffled deck and starts revealing pairs.
func (d *Driver) beginLocked() {
	if d.running {
		return
	}
	deck := catalog.BuildDeck(d.items, d.rng)
	d.cards = make([]game.Card, len(deck))
	for i, id := range deck {
		d.cards[i] = game.Card{ItemID: id, Position: i, State: game.CardHidden}
	}

	d.order = d.rng.Perm(len(deck))
	d.pos = 0
	d.running = true
	d.gen++
	gen := d.gen

	log.Debug().Msg("Demo round started")
	d.publishLocked(game.Event{Type: game.EventStarted})
	d.schedule(d.cfg.StepInterval, gen, func() { d.stepLocked(gen) })
}

// schedule runs fn under the driver lock after delay, dropping it when the
// generation has moved on. The lock must be held by the caller.
func (d *Driver) schedule(delay time.Duration, gen int, fn func()) {
	t := time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen != gen {
			return
		}
		fn()
	})
	d.timers = append(d.timers, t)
}

// stepLocked reveals the next pair of positions. Real pairs get marked
// matched after the flip delay; mismatched reveals just stay face-up, the
// reshuffle cleans them away.
func (d *Driver) stepLocked(gen int) {
	if !d.running || d.pos+1 >= len(d.order) {
		return
	}
	a, b := d.order[d.pos], d.order[d.pos+1]
	d.pos += 2

	d.cards[a].State = game.CardRevealed
	d.cards[b].State = game.CardRevealed
	d.publishLocked(game.Event{Type: game.EventCardRevealed, Positions: []int{a, b}})

	if d.cards[a].ItemID == d.cards[b].ItemID {
		d.schedule(d.cfg.FlipDelay, gen, func() {
			d.cards[a].State = game.CardMatched
			d.cards[b].State = game.CardMatched
			d.publishLocked(game.Event{Type: game.EventCardMatched, Positions: []int{a, b}, ItemID: d.cards[a].ItemID})
		})
	}

	if d.pos+1 < len(d.order) {
		d.schedule(d.cfg.StepInterval, gen, func() { d.stepLocked(gen) })
		return
	}
	// Round over: reshuffle after a pause and go again.
	d.schedule(d.cfg.RestartPause, gen, func() {
		d.running = false
		d.beginLocked()
	})
}

func (d *Driver) publishLocked(ev game.Event) {
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe attaches a viewer to the demo stream.
func (d *Driver) Subscribe() (<-chan game.Event, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan game.Event, 32)
	if d.subs == nil {
		close(ch)
		return ch, func() {}
	}
	d.subs[ch] = struct{}{}

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.subs != nil {
			if _, ok := d.subs[ch]; ok {
				delete(d.subs, ch)
				close(ch)
			}
		}
	}
	return ch, cancel
}

// Snapshot returns the current demo grid for viewers joining mid-round.
func (d *Driver) Snapshot() []game.CardView {
	d.mu.Lock()
	defer d.mu.Unlock()

	views := make([]game.CardView, len(d.cards))
	for i, c := range d.cards {
		v := game.CardView{Position: c.Position, State: c.State}
		if c.State != game.CardHidden {
			v.ItemID = c.ItemID
		}
		views[i] = v
	}
	return views
}

// Running reports whether a demo round is in progress.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
