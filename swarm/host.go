// Package swarm implements the tracker's peer registry: a concurrent,
// TTL-evicted store of (host, file) records indexed by hash, host,
// filename and IP.
package swarm

import "fmt"

// Host is a peer's externally reachable identity: an IPv4 dotted-quad
// address and the listening (not ephemeral transport) port it advertised.
type Host struct {
	IP       string
	Port     uint16
	LastSeen int64 // unix seconds; 0 means "never touched"
}

// Equal compares ip and port only; LastSeen is not part of host identity.
func (h Host) Equal(other Host) bool {
	return h.IP == other.IP && h.Port == other.Port
}

// Key returns the canonical "ip:port" identity string used by the
// registry's host-keyed indices.
func (h Host) Key() string {
	return fmt.Sprintf("%s:%d", h.IP, h.Port)
}

func (h Host) String() string {
	return h.Key()
}
