package allocation

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/saintparish4/relay/internal/proto"
)

// channelBindTimeout is how long a channel binding lasts without a refresh
const channelBindTimeout = 10 * time.Minute

// ChannelBind is the bidirectional mapping between a channel number and a
// peer address. Number and peer are immutable for the binding's life.
type ChannelBind struct {
	Peer   net.Addr
	Number proto.ChannelNumber

	allocation    *Allocation
	lifetimeTimer *time.Timer
	log           logging.LeveledLogger
}

// NewChannelBind creates a new ChannelBind of the peer to the channel number
func NewChannelBind(number proto.ChannelNumber, peer net.Addr, log logging.LeveledLogger) *ChannelBind {
	return &ChannelBind{
		Number: number,
		Peer:   peer,
		log:    log,
	}
}

func (c *ChannelBind) start(lifetime time.Duration) {
	c.lifetimeTimer = time.AfterFunc(lifetime, func() {
		c.allocation.RemoveChannelBind(c.Number)
	})
}

func (c *ChannelBind) refresh(lifetime time.Duration) {
	if !c.lifetimeTimer.Reset(lifetime) {
		c.log.Errorf("Failed to reset channel bind timer for %v", c.Number)
	}
}

func (c *ChannelBind) stop() bool {
	return c.lifetimeTimer.Stop()
}
