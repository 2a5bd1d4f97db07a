package allocation

import (
	"net"
	"time"

	"github.com/pion/logging"
)

// permissionTimeout is how long a permission lasts without a refresh
const permissionTimeout = 5 * time.Minute

// Permission represents a short-lived authorisation for a peer IP to
// reach the relay. Expiry is driven by its own timer, independent of the
// parent allocation's lifetime.
type Permission struct {
	Addr net.Addr

	allocation    *Allocation
	lifetimeTimer *time.Timer
	log           logging.LeveledLogger
}

// NewPermission creates a new Permission for the given peer address
func NewPermission(addr net.Addr, log logging.LeveledLogger) *Permission {
	return &Permission{
		Addr: addr,
		log:  log,
	}
}

func (p *Permission) start(lifetime time.Duration) {
	p.lifetimeTimer = time.AfterFunc(lifetime, func() {
		p.allocation.RemovePermission(p.Addr)
	})
}

func (p *Permission) refresh(lifetime time.Duration) {
	if !p.lifetimeTimer.Reset(lifetime) {
		p.log.Errorf("Failed to reset permission timer for %v", p.Addr)
	}
}

func (p *Permission) stop() bool {
	return p.lifetimeTimer.Stop()
}
