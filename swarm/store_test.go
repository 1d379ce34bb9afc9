package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hostRecord(ip string, port uint16, hash, filename string, size int64) Record {
	return Record{
		Host:      Host{IP: ip, Port: port},
		Size:      size,
		ChunkSize: 1 << 18,
		Hash:      hash,
		Filename:  filename,
	}
}

func TestStoreDedupByFullEquality(t *testing.T) {
	s := New(4)
	r := hostRecord("10.0.0.1", 6881, "abc", "file.bin", 1024)

	assert.Nil(t, s.Store(r))
	assert.Nil(t, s.Store(r)) // I1: identical record is a no-op, not a second entry
	assert.Equal(t, 1, s.Size())

	other := r
	other.Size = 2048
	assert.Nil(t, s.Store(other))
	assert.Equal(t, 1, s.Size(), "same (hash, host) key still collapses to one record")
}

func TestStoreReplacementClearsStaleFilenameIndex(t *testing.T) {
	s := New(4)
	r := hostRecord("10.0.0.1", 6881, "abc", "old-name.bin", 1024)
	assert.Nil(t, s.Store(r))
	assert.Len(t, s.LoadByFilename("old-name.bin"), 1)

	renamed := r
	renamed.Filename = "new-name.bin"
	assert.Nil(t, s.Store(renamed))

	assert.Empty(t, s.LoadByFilename("old-name.bin"), "stale filename index entry must be cleared on replacement")
	got := s.LoadByFilename("new-name.bin")
	assert.Len(t, got, 1)
	assert.Equal(t, "new-name.bin", got[0].Filename)
}

func TestStoreRejectsTombstone(t *testing.T) {
	s := New(4)
	err := s.Store(hostRecord("10.0.0.1", 6881, "abc", "file.bin", 0))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Size())
}

func TestStoreRejectsAtCapacity(t *testing.T) {
	s := New(1)
	assert.Nil(t, s.Store(hostRecord("10.0.0.1", 6881, "abc", "file.bin", 1024)))

	err := s.Store(hostRecord("10.0.0.2", 6881, "def", "other.bin", 2048))
	assert.Equal(t, ErrFull, err)
	assert.Equal(t, 1, s.Size())
}

func TestLoadByHashAndFilenameAndIP(t *testing.T) {
	s := New(8)
	a := hostRecord("10.0.0.1", 6881, "abc", "movie.mkv", 1024)
	b := hostRecord("10.0.0.2", 6881, "abc", "movie.mkv", 1024)
	c := hostRecord("10.0.0.1", 6882, "def", "other.bin", 2048)

	assert.Nil(t, s.Store(a))
	assert.Nil(t, s.Store(b))
	assert.Nil(t, s.Store(c))

	assert.Len(t, s.LoadByHash("abc"), 2)
	assert.Len(t, s.LoadByFilename("movie.mkv"), 2)
	assert.Len(t, s.LoadByIP("10.0.0.1"), 2) // distinct (ip, port) hosts, per P5

	assert.Empty(t, s.LoadByHash("missing"))
}

func TestFilterDedupesByHash(t *testing.T) {
	s := New(8)
	assert.Nil(t, s.Store(hostRecord("10.0.0.1", 6881, "abc", "movie.mkv", 1024)))
	assert.Nil(t, s.Store(hostRecord("10.0.0.2", 6881, "abc", "movie.mkv", 1024)))
	assert.Nil(t, s.Store(hostRecord("10.0.0.3", 6881, "def", "movie.mkv", 4096)))

	matches := s.Filter("movie.mkv", 0, OpNone)
	assert.Len(t, matches, 2, "I4: Filter dedups by hash, keeping the first occurrence")

	big := s.Filter("movie.mkv", 2048, OpGreater)
	assert.Len(t, big, 1)
	assert.Equal(t, "def", big[0].Hash)
}

func TestRemoveHostDropsEveryOwnedRecord(t *testing.T) {
	s := New(8)
	h := Host{IP: "10.0.0.1", Port: 6881}
	assert.Nil(t, s.Store(Record{Host: h, Size: 1024, Hash: "abc", Filename: "a.bin"}))
	assert.Nil(t, s.Store(Record{Host: h, Size: 2048, Hash: "def", Filename: "b.bin"}))

	assert.True(t, s.RemoveHost(h))
	assert.Equal(t, 0, s.Size())
	assert.Empty(t, s.LoadByIP("10.0.0.1"))
	assert.False(t, s.RemoveHost(h), "removing an already-empty host reports no-op")
}

func TestExpireDropsOnlyStaleHosts(t *testing.T) {
	s := New(8)
	fresh := Host{IP: "10.0.0.1", Port: 6881, LastSeen: 100}
	stale := Host{IP: "10.0.0.2", Port: 6881, LastSeen: 10}
	assert.Nil(t, s.Store(Record{Host: fresh, Size: 1024, Hash: "abc", Filename: "a.bin"}))
	assert.Nil(t, s.Store(Record{Host: stale, Size: 1024, Hash: "def", Filename: "b.bin"}))

	evicted := s.Expire(50, 100)

	assert.Equal(t, 1, evicted)
	assert.Len(t, s.LoadByHash("abc"), 1)
	assert.Empty(t, s.LoadByHash("def"))
}

func TestTouchNeverDecreasesLastSeen(t *testing.T) {
	s := New(8)
	h := Host{IP: "10.0.0.1", Port: 6881, LastSeen: 100}
	assert.Nil(t, s.Store(Record{Host: h, Size: 1024, Hash: "abc", Filename: "a.bin"}))

	s.Touch(h, 50) // older timestamp must not roll LastSeen backwards
	got := s.LoadByHash("abc")
	assert.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Host.LastSeen)

	s.Touch(h, 200)
	got = s.LoadByHash("abc")
	assert.Equal(t, int64(200), got[0].Host.LastSeen)
}

func TestLoadAllIsAnIndependentSnapshot(t *testing.T) {
	s := New(8)
	assert.Nil(t, s.Store(hostRecord("10.0.0.1", 6881, "abc", "a.bin", 1024)))

	snap := s.LoadAll()
	assert.Len(t, snap, 1)

	assert.Nil(t, s.Store(hostRecord("10.0.0.2", 6881, "def", "b.bin", 2048)))
	assert.Len(t, snap, 1, "a snapshot taken before a later Store must not grow")
}
