package chat

import (
	"net"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Throttle limits how many connections a single IP may open within a
// window. Counts expire on their own once the window passes.
type Throttle struct {
	window     time.Duration
	maxAccepts int
	counts     *gocache.Cache
}

// NewThrottle returns a Throttle allowing maxAccepts connections per IP per
// window. A zero maxAccepts or window disables throttling.
func NewThrottle(window time.Duration, maxAccepts int) *Throttle {
	t := &Throttle{window: window, maxAccepts: maxAccepts}
	if t.Enabled() {
		t.counts = gocache.New(window, 2*window)
	}
	return t
}

func (t *Throttle) Enabled() bool {
	return t.maxAccepts > 0 && t.window > 0
}

// Allow records a connection attempt from addr and reports whether it is
// within the limit.
func (t *Throttle) Allow(addr net.Addr) bool {
	if !t.Enabled() {
		return true
	}

	ip := hostOf(addr)
	// Add only succeeds for the first attempt in a window, which also sets
	// the expiration the later increments share.
	if err := t.counts.Add(ip, 1, gocache.DefaultExpiration); err == nil {
		return true
	}
	n, err := t.counts.IncrementInt(ip, 1)
	if err != nil {
		// The entry expired between Add and IncrementInt, so this is a new window.
		t.counts.Set(ip, 1, gocache.DefaultExpiration)
		return true
	}
	return n <= t.maxAccepts
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
