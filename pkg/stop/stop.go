// Package stop coordinates shutdown across the tracker's subsystems: the
// dispatcher's accept loop, the debug HTTP server, the per-run log file
// sink, and the stats counter goroutine all join one Group so a single
// SIGINT/SIGTERM can unwind every one of them and report what happened.
package stop

import (
	"io"
	"sync"

	"github.com/Xpolo29/torrent/pkg/log"
)

// AlreadyStopped is a closed error channel for Funcs whose component was
// already stopped (or never needed to do anything) by the time Stop ran.
var AlreadyStopped <-chan error

// AlreadyStoppedFunc is a Func that returns AlreadyStopped.
var AlreadyStoppedFunc = func() <-chan error { return AlreadyStopped }

func init() {
	closeMe := make(chan error)
	close(closeMe)
	AlreadyStopped = closeMe
}

// Stopper is implemented by anything with a clean shutdown path: the
// dispatcher's accept loop, the debug HTTP server, or any future listener.
type Stopper interface {
	// Stop returns a channel that indicates whether the stop was
	// successful. The channel can either return one error or be closed.
	// Stop should return immediately and perform the actual shutdown in a
	// separate goroutine.
	Stop() <-chan error
}

// Func is a function that can be used to provide a clean shutdown.
type Func func() <-chan error

// FromCloser adapts an io.Closer into a Func, for joining something that
// only knows how to Close (the tracker's per-run log file sink returned by
// log.AddFileSink) to a Group alongside its Stoppers.
func FromCloser(c io.Closer) Func {
	return func() <-chan error {
		errCh := make(chan error, 1)
		go func() { errCh <- c.Close() }()
		return errCh
	}
}

// component pairs a subsystem's shutdown Func with the name logged when it
// stops, so an operator reading the shutdown log can tell which subsystem
// hung or failed instead of seeing an anonymous error.
type component struct {
	name string
	fn   Func
}

// Group is a named collection of the tracker's shutdown-capable subsystems,
// stopped all at once.
type Group struct {
	components []component
	sync.Mutex
}

// NewGroup allocates a new Group.
func NewGroup() *Group {
	return &Group{}
}

// Add appends a Stopper to the Group under name.
func (g *Group) Add(name string, s Stopper) {
	g.Lock()
	defer g.Unlock()

	g.components = append(g.components, component{name, s.Stop})
}

// AddFunc appends a Func to the Group under name.
func (g *Group) AddFunc(name string, f Func) {
	g.Lock()
	defer g.Unlock()

	g.components = append(g.components, component{name, f})
}

// Stop stops every member of the Group concurrently, logging each
// component's outcome as it finishes, and returns every error reported.
func (g *Group) Stop() []error {
	g.Lock()
	defer g.Unlock()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)

	for _, c := range g.components {
		waitFor := c.fn()
		if waitFor == nil {
			panic("stop: received a nil chan from Stop")
		}

		wg.Add(1)
		go func(name string, ch <-chan error) {
			defer wg.Done()
			if err := <-ch; err != nil {
				log.Warn("stop: component stopped with an error", log.Fields{"component": name, "error": err.Error()})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			log.Info("stop: component stopped cleanly", log.Fields{"component": name})
		}(c.name, waitFor)
	}

	wg.Wait()
	return errs
}
