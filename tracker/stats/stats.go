// Package stats tracks processing counters for the tracker: one
// goroutine owns the counters and serializes updates through a channel,
// the same shape as the teacher's original event-counting package.
package stats

import "time"

const (
	Announce = iota
	Look
	GetFile
	Update
	Rejected
	Expired
	Malformed
)

// Snapshot is a consistent, point-in-time copy of every counter.
type Snapshot struct {
	Announces uint64
	Looks     uint64
	GetFiles  uint64
	Updates   uint64
	Rejected  uint64
	Expired   uint64
	Malformed uint64
}

// eventMsg carries event, the counter to bump, and n, how much to bump it
// by (n > 1 lets a single sweep report evicting several hosts at once).
type eventMsg struct {
	event int
	n     uint64
}

type Stats struct {
	start time.Time

	counts Snapshot

	events chan eventMsg
	reads  chan chan Snapshot
}

func New(chanSize int) *Stats {
	s := &Stats{
		start:  time.Now(),
		events: make(chan eventMsg, chanSize),
		reads:  make(chan chan Snapshot),
	}

	go s.run()

	return s
}

func (s *Stats) Close() {
	close(s.events)
}

func (s *Stats) Uptime() time.Duration {
	return time.Since(s.start)
}

// RecordEvent bumps event's counter by one.
func (s *Stats) RecordEvent(event int) {
	s.RecordEvents(event, 1)
}

// RecordEvents bumps event's counter by n, e.g. reporting a single TTL
// sweep that evicted several hosts at once. A zero n is a no-op.
func (s *Stats) RecordEvents(event int, n uint64) {
	if n == 0 {
		return
	}
	s.events <- eventMsg{event, n}
}

// Read returns a consistent snapshot of every counter, by asking the
// owning goroutine for one rather than reading the fields directly.
func (s *Stats) Read() Snapshot {
	reply := make(chan Snapshot)
	s.reads <- reply
	return <-reply
}

func (s *Stats) run() {
	for {
		select {
		case msg, ok := <-s.events:
			if !ok {
				return
			}
			switch msg.event {
			case Announce:
				s.counts.Announces += msg.n
			case Look:
				s.counts.Looks += msg.n
			case GetFile:
				s.counts.GetFiles += msg.n
			case Update:
				s.counts.Updates += msg.n
			case Rejected:
				s.counts.Rejected += msg.n
			case Expired:
				s.counts.Expired += msg.n
			case Malformed:
				s.counts.Malformed += msg.n
			default:
				panic("stats: RecordEvent called with an unknown event")
			}
		case reply := <-s.reads:
			reply <- s.counts
		}
	}
}
