package swarm

import (
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/elliotchance/orderedmap"
	"github.com/pkg/errors"

	"github.com/Xpolo29/torrent/pkg/log"
)

// DefaultCapacity mirrors the original BDD_SIZE design capacity (§3):
// a soft cap past which Store reports ErrFull rather than growing
// without bound. Unlike the C source's fixed array, this is just the
// starting point for a back-pressure decision; the backing maps are
// ordinary Go maps and never need a resize.
const DefaultCapacity = 64

// ErrFull is returned by Store when the registry is at capacity (I5).
var ErrFull = errors.New("swarm: registry at capacity")

// FilterOp is the comparison operator accepted by Filter.
type FilterOp int

const (
	OpNone FilterOp = iota
	OpEq
	OpLess
	OpGreater
)

// Store is the tracker's peer registry: a concurrent set of Records under
// full-record equality (I1), with secondary indices by hash, host,
// filename, and host IP.
//
// A single RWMutex serializes every operation (§5: "the simplest correct
// strategy serializes writes per host via the global registry lock").
// load_*/Filter take the read lock; Store/Remove*/Expire/Touch take the
// write lock. No operation ever blocks on I/O while holding it.
type Store struct {
	mu       sync.RWMutex
	capacity int

	records *orderedmap.OrderedMap // record key -> Record, insertion order preserved

	byHash     *orderedmap.OrderedMap // hash -> *orderedmap.OrderedMap of record keys
	byHost     *orderedmap.OrderedMap // host key -> *orderedmap.OrderedMap of record keys
	byFilename *orderedmap.OrderedMap // filename -> *orderedmap.OrderedMap of record keys
	byIP       *orderedmap.OrderedMap // ip -> *orderedmap.OrderedMap of host keys

	metrics *storeMetrics
}

// New creates an empty Store with the given soft capacity. A capacity of
// 0 falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity:   capacity,
		records:    orderedmap.NewOrderedMap(),
		byHash:     orderedmap.NewOrderedMap(),
		byHost:     orderedmap.NewOrderedMap(),
		byFilename: orderedmap.NewOrderedMap(),
		byIP:       orderedmap.NewOrderedMap(),
		metrics:    newStoreMetrics(),
	}
	return s
}

func index(m *orderedmap.OrderedMap, key string) *orderedmap.OrderedMap {
	raw, ok := m.Get(key)
	if !ok {
		sub := orderedmap.NewOrderedMap()
		m.Set(key, sub)
		return sub
	}
	return raw.(*orderedmap.OrderedMap)
}

func indexAdd(m *orderedmap.OrderedMap, key, recordKey string) {
	index(m, key).Set(recordKey, struct{}{})
}

func indexRemove(m *orderedmap.OrderedMap, key, recordKey string) {
	raw, ok := m.Get(key)
	if !ok {
		return
	}
	sub := raw.(*orderedmap.OrderedMap)
	sub.Delete(recordKey)
	if sub.Len() == 0 {
		m.Delete(key)
	}
}

// Store inserts r if an equal record (I1) is not already present. It
// reports ErrFull once the registry has reached capacity; the caller
// (the processor) logs this as a WARNING (CapacityError, §7) and
// continues without failing the whole request.
func (s *Store) Store(r Record) error {
	if r.IsTombstone() {
		return errors.New("swarm: refusing to store a tombstone record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := r.key()
	if raw, ok := s.records.Get(k); ok {
		existing := raw.(Record)
		if existing.Equal(r) {
			return nil // I1: already present, no-op
		}
		// Same (hash, host) key, different metadata: a legal replacement
		// (Lifecycle). k encodes hash and host, so only the filename index
		// can now be stale; clear it before adding the new entry below.
		if existing.Filename != r.Filename {
			indexRemove(s.byFilename, existing.Filename, k)
		}
	} else if s.records.Len() >= s.capacity {
		s.metrics.rejected.Inc()
		log.Warn("swarm: store rejected, registry full", log.Fields{
			"capacity": s.capacity,
			"hash":     r.Hash,
		})
		return ErrFull
	}

	s.records.Set(k, r)
	indexAdd(s.byHash, r.Hash, k)
	indexAdd(s.byHost, r.Host.Key(), k)
	indexAdd(s.byFilename, r.Filename, k)
	indexAdd(s.byIP, r.Host.IP, r.Host.Key())
	s.metrics.records.Set(float64(s.records.Len()))
	s.metrics.hosts.Set(float64(s.byHost.Len()))
	return nil
}

// Size returns the count of non-tombstone records currently stored.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Len()
}

// LoadAll returns a consistent, independent snapshot of every record
// currently stored, built by walking the insertion-ordered record index.
// The snapshot is backed by an immutable.List while it is assembled so
// that the copy handed back can never alias the live store; freeing it is
// just letting the returned slice go out of scope.
func (s *Store) LoadAll() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(nil)
}

// snapshotLocked walks s.records in insertion order, optionally filtering
// with keep (nil means "keep everything"), and returns the result as a
// plain slice after assembling it through an immutable.List.
func (s *Store) snapshotLocked(keep func(Record) bool) []Record {
	l := immutable.NewList()
	for el := s.records.Front(); el != nil; el = el.Next() {
		r := el.Value.(Record)
		if keep == nil || keep(r) {
			l = l.Append(r)
		}
	}
	out := make([]Record, l.Len())
	itr := l.Iterator()
	for i := 0; !itr.Done(); i++ {
		_, v := itr.Next()
		out[i] = v.(Record)
	}
	return out
}

// recordsForKeys resolves an index's set of record keys back to Records,
// in insertion order of the sub-index (first occurrence wins, per the
// dedup edge policy in §4.1).
func (s *Store) recordsForKeys(keys *orderedmap.OrderedMap) []Record {
	if keys == nil {
		return nil
	}
	out := make([]Record, 0, keys.Len())
	for el := keys.Front(); el != nil; el = el.Next() {
		recKey := el.Key.(string)
		if r, ok := s.records.Get(recKey); ok {
			out = append(out, r.(Record))
		}
	}
	return out
}

// LoadByHash returns every record currently advertising hash.
func (s *Store) LoadByHash(hash string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.byHash.Get(hash)
	if !ok {
		return nil
	}
	return s.recordsForKeys(raw.(*orderedmap.OrderedMap))
}

// LoadByHost returns every record owned by host (matched on ip and port).
func (s *Store) LoadByHost(h Host) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.byHost.Get(h.Key())
	if !ok {
		return nil
	}
	return s.recordsForKeys(raw.(*orderedmap.OrderedMap))
}

// LoadByFilename returns every record matching filename.
func (s *Store) LoadByFilename(filename string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.byFilename.Get(filename)
	if !ok {
		return nil
	}
	return s.recordsForKeys(raw.(*orderedmap.OrderedMap))
}

// LoadByIP returns the distinct (ip, port, last_seen) hosts currently
// known for ip (P5: no repeated (ip, port) pairs).
func (s *Store) LoadByIP(ip string) []Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.byIP.Get(ip)
	if !ok {
		return nil
	}
	hostKeys := raw.(*orderedmap.OrderedMap)
	out := make([]Host, 0, hostKeys.Len())
	for el := hostKeys.Front(); el != nil; el = el.Next() {
		hostKey := el.Key.(string)
		if h, ok := s.hostByKeyLocked(hostKey); ok {
			out = append(out, h)
		}
	}
	return out
}

// hostByKeyLocked reconstructs the current Host value (with its freshest
// LastSeen) for a host key, by inspecting every one of its records.
func (s *Store) hostByKeyLocked(hostKey string) (Host, bool) {
	raw, ok := s.byHost.Get(hostKey)
	if !ok {
		return Host{}, false
	}
	keys := raw.(*orderedmap.OrderedMap)
	var best Host
	found := false
	for el := keys.Front(); el != nil; el = el.Next() {
		r, ok := s.records.Get(el.Key.(string))
		if !ok {
			continue
		}
		if h := r.(Record).Host; !found || h.LastSeen > best.LastSeen {
			best, found = h, true
		}
	}
	return best, found
}

// removeByKeysLocked deletes every record named by keys (a snapshot, since
// we mutate the live indices while iterating).
func (s *Store) removeByKeysLocked(recordKeys []string) bool {
	removedAny := false
	for _, k := range recordKeys {
		raw, ok := s.records.Get(k)
		if !ok {
			continue
		}
		r := raw.(Record)
		s.records.Delete(k)
		indexRemove(s.byHash, r.Hash, k)
		indexRemove(s.byHost, r.Host.Key(), k)
		indexRemove(s.byFilename, r.Filename, k)
		if _, stillKnown := s.byHost.Get(r.Host.Key()); !stillKnown {
			indexRemove(s.byIP, r.Host.IP, r.Host.Key())
		}
		removedAny = true
	}
	if removedAny {
		s.metrics.records.Set(float64(s.records.Len()))
		s.metrics.hosts.Set(float64(s.byHost.Len()))
	}
	return removedAny
}

func keysOf(m *orderedmap.OrderedMap) []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key.(string))
	}
	return out
}

// RemoveHost deletes every record owned by host. Never fails; reports
// whether anything was removed.
func (s *Store) RemoveHost(h Host) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.byHost.Get(h.Key())
	if !ok {
		return false
	}
	return s.removeByKeysLocked(keysOf(raw.(*orderedmap.OrderedMap)))
}

// RemoveFile deletes every record matching filename.
func (s *Store) RemoveFile(filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.byFilename.Get(filename)
	if !ok {
		return false
	}
	return s.removeByKeysLocked(keysOf(raw.(*orderedmap.OrderedMap)))
}

// RemoveHash deletes every record matching hash.
func (s *Store) RemoveHash(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.byHash.Get(hash)
	if !ok {
		return false
	}
	return s.removeByKeysLocked(keysOf(raw.(*orderedmap.OrderedMap)))
}

// Filter implements §4.1's filter(filename, size, op) contract, returning
// records deduplicated by hash (first occurrence in iteration order
// wins).
func (s *Store) Filter(filename string, size int64, op FilterOp) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Record
	switch {
	case size == 0 && filename == "":
		matches = s.snapshotLocked(nil)
	case size == 0 && filename != "":
		raw, ok := s.byFilename.Get(filename)
		if ok {
			matches = s.recordsForKeys(raw.(*orderedmap.OrderedMap))
		}
	case size != 0 && filename == "":
		matches = s.snapshotLocked(func(r Record) bool { return compares(r.Size, size, op) })
	default:
		raw, ok := s.byFilename.Get(filename)
		if ok {
			candidates := s.recordsForKeys(raw.(*orderedmap.OrderedMap))
			for _, r := range candidates {
				if compares(r.Size, size, op) {
					matches = append(matches, r)
				}
			}
		}
	}

	return dedupByHash(matches)
}

func compares(recordSize, operand int64, op FilterOp) bool {
	switch op {
	case OpEq:
		return recordSize == operand
	case OpGreater:
		return recordSize > operand
	case OpLess:
		return recordSize < operand
	default:
		return true
	}
}

// dedupByHash keeps only the first record seen for each distinct hash,
// preserving iteration order (I4).
func dedupByHash(records []Record) []Record {
	if len(records) == 0 {
		return records
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Hash]; ok {
			continue
		}
		seen[r.Hash] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Expire drops every record owned by a host whose LastSeen is non-zero
// and older than ttlSeconds relative to now (I3). Best-effort
// housekeeping, called on every request per §4.3. Returns the number of
// hosts evicted, so a caller can surface it as a stats counter.
func (s *Store) Expire(ttlSeconds int64, now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for el := s.byHost.Front(); el != nil; el = el.Next() {
		hostKey := el.Key.(string)
		h, ok := s.hostByKeyLocked(hostKey)
		if !ok || h.LastSeen == 0 {
			continue
		}
		if now-h.LastSeen > ttlSeconds {
			stale = append(stale, hostKey)
		}
	}

	for _, hostKey := range stale {
		raw, ok := s.byHost.Get(hostKey)
		if !ok {
			continue
		}
		s.removeByKeysLocked(keysOf(raw.(*orderedmap.OrderedMap)))
	}
	s.metrics.hosts.Set(float64(s.byHost.Len()))
	return len(stale)
}

// Touch sets last_seen = now on every record owned by host (I2: never
// decreases within a session — callers are expected to pass a
// monotonically advancing now).
func (s *Store) Touch(h Host, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.byHost.Get(h.Key())
	if !ok {
		return
	}
	for _, k := range keysOf(raw.(*orderedmap.OrderedMap)) {
		r, ok := s.records.Get(k)
		if !ok {
			continue
		}
		rec := r.(Record)
		if now > rec.Host.LastSeen {
			rec.Host.LastSeen = now
			s.records.Set(k, rec)
		}
	}
}
