package swarm

import "fmt"

// Size limits from the wire protocol (§3 DATA MODEL).
const (
	MaxHashLen     = 63
	MaxFilenameLen = 351
)

// Record is a single peer's advertisement of a file: who has it (Host),
// how big it is, its chunking, and its content hash.
//
// A Record with Size == 0 is the tombstone value and is considered absent
// by every query in this package.
type Record struct {
	Host      Host
	Size      int64
	ChunkSize int32
	Hash      string
	Filename  string
}

// IsTombstone reports whether r represents a deleted/absent slot.
func (r Record) IsTombstone() bool {
	return r.Size == 0
}

// Equal implements full-record equality (I1/I2): every field, including
// host identity, must match. LastSeen is excluded via Host.Equal.
func (r Record) Equal(other Record) bool {
	return r.Host.Equal(other.Host) &&
		r.Size == other.Size &&
		r.ChunkSize == other.ChunkSize &&
		r.Hash == other.Hash &&
		r.Filename == other.Filename
}

// key is the canonical identity used for O(1) duplicate detection: the
// same (hash, host) pair can only ever describe one record, since a given
// host seeds or leeches a given hash at most once. Combined with the full
// Equal check on insert, this gives expected-O(1) I1 enforcement in place
// of the C source's O(n) db_exists scan.
func (r Record) key() string {
	return fmt.Sprintf("%s|%s", r.Hash, r.Host.Key())
}
