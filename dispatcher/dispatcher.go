// Package dispatcher owns the tracker's listening socket and worker
// pool: a non-blocking accept loop feeds a small bounded queue that a
// fixed number of workers drain, mirroring network.c/threads.c's
// task-slot design.
package dispatcher

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/Xpolo29/torrent/pkg/log"
	"github.com/Xpolo29/torrent/pkg/stop"
	"github.com/Xpolo29/torrent/tracker"
)

// LenTasks is the size of the bounded task queue (original LEN_TASKS).
const LenTasks = 128

// MaxWorkers is the upper bound on pool size accepted by Listen, matching
// the CLI's -m/--max-conn <1..128> range.
const MaxWorkers = 128

// MaxSleep is the idle backoff applied by the accept loop and by workers
// whenever the task queue is empty (original MAX_SLEEPING_TIME, 10ms).
const MaxSleep = 10 * time.Millisecond

// acceptPollInterval is the rolling deadline used to emulate a
// non-blocking accept() on top of net.Listener.
const acceptPollInterval = 50 * time.Millisecond

type slot struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dispatcher owns one listening socket, a bounded task queue, and a
// fixed pool of worker goroutines draining it.
type Dispatcher struct {
	ln        *net.TCPListener
	processor *tracker.Processor
	slots     [LenTasks]slot

	countMu sync.Mutex
	count   int

	acceptLimiter *rate.Limiter

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Listen binds addr with SO_REUSEADDR and starts numWorkers worker
// goroutines draining the task queue with processor. Serve must be
// called to run the accept loop.
func Listen(addr string, processor *tracker.Processor, numWorkers int) (*Dispatcher, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > MaxWorkers {
		numWorkers = MaxWorkers
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dispatcher: listen")
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, errors.New("dispatcher: listener is not a *net.TCPListener")
	}

	d := &Dispatcher{
		ln:            tcpLn,
		processor:     processor,
		acceptLimiter: rate.NewLimiter(rate.Every(MaxSleep), 1),
		done:          make(chan struct{}),
	}

	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	return d, nil
}

// Addr returns the bound address, useful when Listen was given port 0.
func (d *Dispatcher) Addr() net.Addr {
	return d.ln.Addr()
}

// Serve runs the accept loop until Stop is called or the listener fails
// fatally. It blocks the calling goroutine.
func (d *Dispatcher) Serve() error {
	limiter := rate.NewLimiter(rate.Every(MaxSleep), 1)

	for {
		select {
		case <-d.done:
			return nil
		default:
		}

		d.ln.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := d.ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				d.idleIfEmpty(limiter)
				continue
			}
			select {
			case <-d.done:
				return nil
			default:
				return errors.Wrap(err, "dispatcher: accept")
			}
		}

		if !d.enqueue(conn) {
			log.Warn("dispatcher: task queue full, dropping connection")
			conn.Close()
		}

		d.idleIfEmpty(limiter)
	}
}

// worker round-robins across every slot, claiming and processing whatever
// connection it finds, and otherwise backing off when the queue is
// empty.
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	limiter := rate.NewLimiter(rate.Every(MaxSleep), 1)

	i := 0
	for {
		select {
		case <-d.done:
			return
		default:
		}

		s := &d.slots[i]
		if s.mu.TryLock() {
			conn := s.conn
			s.conn = nil
			s.mu.Unlock()

			if conn != nil {
				d.decrement()
				if requeue := d.processor.Process(conn); requeue {
					if !d.enqueue(conn) {
						conn.Close()
					}
				}
			}
		}

		i = (i + 1) % LenTasks
		d.idleIfEmpty(limiter)
	}
}

// enqueue claims the first empty slot for conn, mirroring new_task's
// linear scan-and-trylock. Reports false (queue full) without blocking.
func (d *Dispatcher) enqueue(conn net.Conn) bool {
	for i := range d.slots {
		s := &d.slots[i]
		s.mu.Lock()
		if s.conn == nil {
			s.conn = conn
			s.mu.Unlock()
			d.increment()
			return true
		}
		s.mu.Unlock()
	}
	return false
}

func (d *Dispatcher) increment() {
	d.countMu.Lock()
	d.count++
	d.countMu.Unlock()
}

func (d *Dispatcher) decrement() {
	d.countMu.Lock()
	d.count--
	d.countMu.Unlock()
}

func (d *Dispatcher) currentCount() int {
	d.countMu.Lock()
	defer d.countMu.Unlock()
	return d.count
}

// idleIfEmpty sleeps up to MaxSleep only when the task queue is
// currently empty, matching mysleep()'s task_len == 0 branch.
func (d *Dispatcher) idleIfEmpty(limiter *rate.Limiter) {
	if d.currentCount() == 0 {
		limiter.Wait(context.Background())
	}
}

// Stop implements stop.Stopper: it closes the listener, signals every
// worker and the accept loop to exit, and waits for them to finish.
func (d *Dispatcher) Stop() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		d.stopOnce.Do(func() { close(d.done) })
		d.ln.Close()
		d.wg.Wait()
		errCh <- nil
	}()
	return errCh
}

var _ stop.Stopper = (*Dispatcher)(nil)
