// Package tracker implements the per-connection request processor: it
// turns an accepted net.Conn into a parsed proto.Command, applies that
// command's effects to a swarm.Store, and writes back a single reply
// line. Grounded on tracker.c's process() and on
// frontend/udp/frontend.go's handleRequest dispatch-by-verb structure.
package tracker

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/Xpolo29/torrent/pkg/iputil"
	"github.com/Xpolo29/torrent/pkg/log"
	"github.com/Xpolo29/torrent/pkg/publicip"
	"github.com/Xpolo29/torrent/proto"
	"github.com/Xpolo29/torrent/swarm"
	"github.com/Xpolo29/torrent/tracker/stats"
)

// readTimeout bounds the single non-blocking read attempt made per Process
// call; a connection that times out without producing data is reported as
// not-yet-ready so the dispatcher can re-enqueue it, rather than closed.
const readTimeout = 2 * time.Millisecond

// maxRequestSize mirrors the 16 KiB read-buffer ceiling from §4.3.
const maxRequestSize = 16 * 1024

// Processor applies the tracker's four-verb protocol to a shared
// swarm.Store. A single Processor is shared by every worker in the
// dispatcher's pool.
type Processor struct {
	store  *swarm.Store
	ttl    int64
	prober publicip.Prober
	nowFn  func() int64
	stats  *stats.Stats

	bootstrapOnce sync.Once
	publicIP      string
	privateIP     string
}

// NewProcessor builds a Processor over store, evicting records idle for
// more than ttlSeconds and probing prober for the tracker's public IP on
// the first request it ever handles. s may be nil, in which case no
// counters are recorded.
func NewProcessor(store *swarm.Store, ttlSeconds int64, prober publicip.Prober, s *stats.Stats) *Processor {
	return &Processor{
		store:  store,
		ttl:    ttlSeconds,
		prober: prober,
		nowFn:  func() int64 { return time.Now().Unix() },
		stats:  s,
	}
}

func (p *Processor) record(event int) {
	if p.stats != nil {
		p.stats.RecordEvent(event)
	}
}

func (p *Processor) recordN(event int, n int) {
	if p.stats != nil && n > 0 {
		p.stats.RecordEvents(event, uint64(n))
	}
}

// Process reads one request from conn and writes one reply. It reports
// requeue=true when the connection produced no data within readTimeout,
// in which case the caller must put conn back into the task queue instead
// of closing it (§4.3 step 1's cooperative retry).
func (p *Processor) Process(conn net.Conn) (requeue bool) {
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Warn("tracker: failed to set read deadline", log.Err(err))
	}

	buf := make([]byte, maxRequestSize)
	n, err := conn.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() && n == 0 {
			return true
		}
		// A peer that closed without sending anything falls through to the
		// n == 0 branch below and is answered as an empty request.
		if err != io.EOF || n != 0 {
			conn.Close()
			return false
		}
	}
	defer conn.Close()

	if n == 0 {
		conn.Write([]byte(proto.WriteError(proto.ErrMalformed)))
		return false
	}

	p.bootstrap(conn)

	now := p.nowFn()
	host := p.resolveHost(conn, now)
	p.recordN(stats.Expired, p.store.Expire(p.ttl, now))

	reply := p.dispatch(string(buf[:n]), host, now)
	conn.Write([]byte(reply))
	return false
}

// bootstrap runs once per Processor lifetime: it records the tracker's
// private IP from the listening socket and resolves its public IP,
// falling back to the private address when the probe fails (§4.3 step 2).
func (p *Processor) bootstrap(conn net.Conn) {
	p.bootstrapOnce.Do(func() {
		if local, ok := conn.LocalAddr().(*net.TCPAddr); ok {
			p.privateIP = local.IP.String()
		}
		if p.prober != nil {
			p.publicIP = publicip.ProbeOrWarn(p.prober, p.privateIP)
		} else {
			p.publicIP = p.privateIP
		}
	})
}

// resolveHost extracts the caller's IP and port (§4.3 step 3). If the
// registry already knows this IP under exactly one listening port (via
// LoadByIP), that port overrides the ephemeral transport port for
// identity purposes; otherwise the transport port from getpeername is
// used as-is.
func (p *Processor) resolveHost(conn net.Conn, now int64) swarm.Host {
	remote, _ := conn.RemoteAddr().(*net.TCPAddr)
	ip := ""
	var transportPort uint16
	if remote != nil {
		ip = remote.IP.String()
		transportPort = uint16(remote.Port)
	}

	port := transportPort
	if known := p.store.LoadByIP(ip); len(known) == 1 {
		port = known[0].Port
	}

	host := swarm.Host{IP: ip, Port: port, LastSeen: now}
	p.store.Touch(host, now)
	return host
}

func (p *Processor) dispatch(line string, host swarm.Host, now int64) string {
	cmd, err := proto.Parse(line)
	if err != nil {
		log.Warn("tracker: malformed request", log.Fields{"host": host.Key()})
		p.record(stats.Malformed)
		return proto.WriteError(proto.ErrMalformed)
	}

	switch {
	case cmd.Announce != nil:
		p.record(stats.Announce)
		return p.handleAnnounce(cmd.Announce, host, now)
	case cmd.Update != nil:
		p.record(stats.Update)
		return p.handleUpdate(cmd.Update, host, now)
	case cmd.GetFile != nil:
		p.record(stats.GetFile)
		return p.handleGetFile(cmd.GetFile, host)
	case cmd.Look != nil:
		p.record(stats.Look)
		return p.handleLook(cmd.Look)
	default:
		p.record(stats.Malformed)
		return proto.WriteError(proto.ErrMalformed)
	}
}

func (p *Processor) handleAnnounce(cmd *proto.AnnounceCommand, caller swarm.Host, now int64) string {
	h := swarm.Host{IP: caller.IP, Port: cmd.Port, LastSeen: now}

	for _, s := range cmd.Seeds {
		rec := swarm.Record{Host: h, Size: s.Size, ChunkSize: s.ChunkSize, Hash: s.Hash, Filename: s.Filename}
		if err := p.store.Store(rec); err != nil {
			log.Warn("tracker: announce seed rejected", log.Fields{"hash": s.Hash, "error": err.Error()})
			p.record(stats.Rejected)
		}
	}

	for _, hash := range cmd.Leeches {
		if rec, ok := firstOtherHost(p.store.LoadByHash(hash), h); ok {
			copied := swarm.Record{Host: h, Size: rec.Size, ChunkSize: rec.ChunkSize, Hash: hash, Filename: rec.Filename}
			if err := p.store.Store(copied); err != nil {
				log.Warn("tracker: announce leech rejected", log.Fields{"hash": hash, "error": err.Error()})
			}
		}
	}

	return proto.WriteOK()
}

func (p *Processor) handleUpdate(cmd *proto.UpdateCommand, caller swarm.Host, now int64) string {
	caller.LastSeen = now
	p.store.RemoveHost(caller)

	hashes := make([]string, 0, len(cmd.Seeds)+len(cmd.Leeches))
	hashes = append(hashes, cmd.Seeds...)
	hashes = append(hashes, cmd.Leeches...)

	for _, hash := range hashes {
		if rec, ok := firstOtherHost(p.store.LoadByHash(hash), caller); ok {
			copied := swarm.Record{Host: caller, Size: rec.Size, ChunkSize: rec.ChunkSize, Hash: hash, Filename: rec.Filename}
			if err := p.store.Store(copied); err != nil {
				log.Warn("tracker: update copy rejected", log.Fields{"hash": hash, "error": err.Error()})
			}
		}
	}

	return proto.WriteOK()
}

func (p *Processor) handleGetFile(cmd *proto.GetFileCommand, caller swarm.Host) string {
	records := p.store.LoadByHash(cmd.Hash)
	callerIsPublic := !iputil.IsPrivate(caller.IP)

	hosts := make([]swarm.Host, 0, len(records))
	for _, r := range records {
		h := r.Host
		if callerIsPublic && iputil.IsPrivate(h.IP) {
			log.Warn("tracker: rewriting private peer ip for public caller", log.Fields{
				"hash": cmd.Hash,
				"peer": h.Key(),
			})
			h.IP = p.publicIP
		}
		hosts = append(hosts, h)
	}

	return proto.WritePeers(cmd.Hash, hosts)
}

func (p *Processor) handleLook(cmd *proto.LookCommand) string {
	var filename string
	var size int64
	op := swarm.OpNone

	if cmd.HasFilename {
		filename = cmd.Filename
	}
	if cmd.HasFileSize {
		size = cmd.FileSize
		op = cmd.Op
	}

	return proto.WriteList(p.store.Filter(filename, size, op))
}

// firstOtherHost returns the first record (in iteration order) whose host
// differs from exclude, implementing the "first match wins" rule shared
// by announce's leech handling and update's re-hosting.
func firstOtherHost(records []swarm.Record, exclude swarm.Host) (swarm.Record, bool) {
	for _, r := range records {
		if !r.Host.Equal(exclude) {
			return r, true
		}
	}
	return swarm.Record{}, false
}
