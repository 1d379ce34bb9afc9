// Package publicip wraps the external "what is my IP" probe used to learn
// the tracker's publicly routable address, mirroring get_public_ip's
// popen("curl ifconfig.me")-style lookup: best-effort, never fatal.
package publicip

import (
	"context"
	"time"

	"github.com/anacrolix/publicip"

	"github.com/Xpolo29/torrent/pkg/log"
)

// Prober looks up the caller's public IPv4 address.
type Prober interface {
	Probe() (string, error)
}

// httpProber is the production Prober, backed by anacrolix/publicip's pool
// of HTTP "echo my IP" services.
type httpProber struct {
	timeout time.Duration
}

// New returns a Prober that queries external IP-echo services with the
// given timeout.
func New(timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpProber{timeout: timeout}
}

func (p *httpProber) Probe() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ip, err := publicip.Get(ctx, "tcp4")
	if err != nil {
		return "", err
	}
	return ip.String(), nil
}

// ProbeOrWarn returns the public IP, or fallback with a WARNING logged if
// the probe failed, matching the original's "local-only mode" behavior.
func ProbeOrWarn(p Prober, fallback string) string {
	ip, err := p.Probe()
	if err != nil {
		log.Warn("publicip: probe failed, falling back to private IP", log.Err(err))
		return fallback
	}
	return ip
}
