// Package timeline merges independent delta-timed track streams into a
// single chronologically ordered stream without buffering the song.
package timeline

import (
	"errors"
	"io"
	"log"

	"github.com/icco/buzzer/internal/source"
)

// Step is one event selected by the merger.
type Step struct {
	Track int
	// Delta is the tick distance from the previously selected step.
	Delta uint32
	// Tick is the absolute song position of the step.
	Tick  uint64
	Event source.Event
}

type cursor struct {
	iter      source.Iterator
	head      source.Event
	remaining uint32
	live      bool
}

// Merger is a streaming k-way merge over track iterators. Each step costs
// O(tracks) and nothing beyond one pending event per track is held.
type Merger struct {
	cursors []cursor
	now     uint64
	logger  *log.Logger
}

// New primes a cursor for each track. A nil logger discards messages.
func New(tracks []source.Iterator, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Merger{
		cursors: make([]cursor, len(tracks)),
		logger:  logger,
	}
	for i, it := range tracks {
		m.cursors[i].iter = it
		m.pull(i)
	}
	return m
}

// pull loads the next event of track i into its cursor, or retires the
// cursor at the end of the track or on a corrupt event.
func (m *Merger) pull(i int) {
	c := &m.cursors[i]
	ev, err := c.iter.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			m.logger.Printf("track %d: stopped at unreadable event: %v", i, err)
		}
		c.live = false
		c.head = source.Event{}
		c.remaining = 0
		return
	}
	c.head = ev
	c.remaining = ev.Delta
	c.live = true
}

// Next returns the globally next event. Among events due at the same tick
// the lowest track index wins. It returns false once every track is done.
func (m *Merger) Next() (Step, bool) {
	sel := -1
	for i := range m.cursors {
		c := &m.cursors[i]
		if !c.live {
			continue
		}
		if c.remaining == 0 {
			sel = i
			break
		}
		if sel < 0 || c.remaining < m.cursors[sel].remaining {
			sel = i
		}
	}
	if sel < 0 {
		return Step{}, false
	}

	delta := m.cursors[sel].remaining
	if delta > 0 {
		for i := range m.cursors {
			if i != sel && m.cursors[i].live {
				m.cursors[i].remaining -= delta
			}
		}
	}
	m.now += uint64(delta)

	step := Step{Track: sel, Delta: delta, Tick: m.now, Event: m.cursors[sel].head}
	m.pull(sel)
	return step, true
}

// Done reports whether every track is exhausted.
func (m *Merger) Done() bool {
	return m.Live() == 0
}

// Live returns the number of tracks that still have events.
func (m *Merger) Live() int {
	n := 0
	for i := range m.cursors {
		if m.cursors[i].live {
			n++
		}
	}
	return n
}

// Tick returns the absolute position of the last selected step.
func (m *Merger) Tick() uint64 {
	return m.now
}

// Reset rewinds every track and restarts the merge from tick zero.
func (m *Merger) Reset() {
	m.now = 0
	for i := range m.cursors {
		m.cursors[i].iter.Reset()
		m.pull(i)
	}
}
