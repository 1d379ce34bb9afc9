package proto

import (
	"strconv"
	"strings"

	"github.com/Xpolo29/torrent/swarm"
)

// WriteOK formats the "ok\n" reply sent after a successful announce or
// update.
func WriteOK() string {
	return "ok\n"
}

// WritePeers formats the reply to a getfile request: every host currently
// known to be seeding or leeching the given hash.
func WritePeers(hash string, hosts []swarm.Host) string {
	var b strings.Builder
	b.WriteString("peers ")
	b.WriteString(hash)
	b.WriteString(" [")
	for i, h := range hosts {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(h.IP)
		b.WriteString(":")
		b.WriteString(strconv.FormatUint(uint64(h.Port), 10))
	}
	b.WriteString("]\n")
	return b.String()
}

// WriteList formats the reply to a look request: the matching records,
// already deduplicated by hash.
func WriteList(records []swarm.Record) string {
	var b strings.Builder
	b.WriteString("list [")
	for i, r := range records {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(r.Filename)
		b.WriteString(" ")
		b.WriteString(strconv.FormatInt(r.Size, 10))
		b.WriteString(" ")
		b.WriteString(strconv.FormatInt(int64(r.ChunkSize), 10))
		b.WriteString(" ")
		b.WriteString(r.Hash)
	}
	b.WriteString("]\n")
	return b.String()
}

// WriteError formats the single-line reply sent for any request that
// fails to parse, matching network.c's send_msg fallback for an empty
// response ("Wrong request\n") verbatim.
func WriteError(err error) string {
	return "Wrong request\n"
}
