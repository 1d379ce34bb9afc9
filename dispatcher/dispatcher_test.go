package dispatcher

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/Xpolo29/torrent/swarm"
	"github.com/Xpolo29/torrent/tracker"
)

func TestEnqueueFull(t *testing.T) {
	d := &Dispatcher{}
	for i := 0; i < LenTasks; i++ {
		d.slots[i].conn = fakeConn{}
		d.count++
	}
	if d.enqueue(fakeConn{}) {
		t.Fatal("expected enqueue to fail once every slot is occupied")
	}
}

func TestEnqueueFindsFirstEmptySlot(t *testing.T) {
	d := &Dispatcher{}
	for i := 0; i < 5; i++ {
		d.slots[i].conn = fakeConn{}
	}
	if !d.enqueue(fakeConn{}) {
		t.Fatal("expected enqueue to succeed")
	}
	if d.slots[5].conn == nil {
		t.Fatal("expected the 6th slot to be claimed")
	}
}

type fakeConn struct{ net.Conn }

func TestServeHandlesAnnounce(t *testing.T) {
	store := swarm.New(0)
	p := tracker.NewProcessor(store, 3600, nil, nil)

	d, err := Listen("127.0.0.1:0", p, 2)
	if err != nil {
		t.Fatalf("listen: %s", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- d.Serve() }()

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("announce listen 4444 seed [movie.mp4 1000 100 deadbeef]\n")); err != nil {
		t.Fatalf("write: %s", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %s", err)
	}
	if line != "ok\n" {
		t.Fatalf("got %q, want %q", line, "ok\n")
	}

	<-d.Stop()
	if err := <-serveErrCh; err != nil {
		t.Fatalf("serve returned error: %s", err)
	}
}
