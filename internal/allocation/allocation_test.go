package allocation

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saintparish4/relay/internal/proto"
)

func newBareAllocation() *Allocation {
	return NewAllocation(nil, &FiveTuple{
		SrcAddr: &net.UDPAddr{IP: net.IPv4zero, Port: 5000},
		DstAddr: &net.UDPAddr{IP: net.IPv4zero, Port: 3478},
	}, "user", testLoggerFactory.NewLogger("test"))
}

func TestGetPermission(t *testing.T) {
	a := newBareAllocation()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	samePeerDifferentPort := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3479}
	otherPeer := &net.UDPAddr{IP: net.ParseIP("192.168.0.2"), Port: 3478}

	a.AddPermission(NewPermission(addr, a.log))

	assert.NotNil(t, a.GetPermission(addr))
	assert.NotNil(t, a.GetPermission(samePeerDifferentPort), "permissions are keyed by IP, not port")
	assert.Nil(t, a.GetPermission(otherPeer))
}

func TestAddPermissionRefreshesExisting(t *testing.T) {
	a := newBareAllocation()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	p1 := NewPermission(addr, a.log)
	a.AddPermission(p1)

	// a second add for the same IP refreshes rather than replaces
	a.AddPermission(NewPermission(addr, a.log))

	assert.Same(t, p1, a.GetPermission(addr))
}

func TestRemovePermission(t *testing.T) {
	a := newBareAllocation()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	a.AddPermission(NewPermission(addr, a.log))
	require.NotNil(t, a.GetPermission(addr))

	a.RemovePermission(addr)
	assert.Nil(t, a.GetPermission(addr))
}

func TestPermissionExpiry(t *testing.T) {
	a := newBareAllocation()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	p := NewPermission(addr, a.log)
	a.AddPermission(p)

	// shorten the already-armed timer instead of waiting five minutes
	require.True(t, p.lifetimeTimer.Reset(10*time.Millisecond))

	assert.Eventually(t, func() bool {
		return a.GetPermission(addr) == nil
	}, time.Second, 10*time.Millisecond, "permission should remove itself on expiry")
}

func TestAddChannelBind(t *testing.T) {
	a := newBareAllocation()

	peer := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	otherPeer := &net.UDPAddr{IP: net.ParseIP("192.168.0.2"), Port: 3478}

	c := NewChannelBind(proto.MinChannelNumber, peer, a.log)
	require.NoError(t, a.AddChannelBind(c, channelBindTimeout))

	// the binding installs an implicit permission for the peer's IP
	assert.NotNil(t, a.GetPermission(peer))

	err := a.AddChannelBind(NewChannelBind(proto.MinChannelNumber, otherPeer, a.log), channelBindTimeout)
	assert.Error(t, err, "same channel number with a different peer must be rejected")

	err = a.AddChannelBind(NewChannelBind(proto.MinChannelNumber+1, peer, a.log), channelBindTimeout)
	assert.Error(t, err, "same peer with a different channel number must be rejected")

	err = a.AddChannelBind(NewChannelBind(proto.MinChannelNumber-1, otherPeer, a.log), channelBindTimeout)
	assert.Error(t, err, "out-of-range channel numbers must be rejected")

	// rebinding the same pair refreshes
	require.NoError(t, a.AddChannelBind(NewChannelBind(proto.MinChannelNumber, peer, a.log), channelBindTimeout))
}

func TestGetChannelByNumberAndAddr(t *testing.T) {
	a := newBareAllocation()

	peer := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	c := NewChannelBind(proto.MinChannelNumber, peer, a.log)
	require.NoError(t, a.AddChannelBind(c, channelBindTimeout))

	assert.Same(t, c, a.GetChannelByNumber(proto.MinChannelNumber))
	assert.Nil(t, a.GetChannelByNumber(proto.MinChannelNumber+1))

	assert.Same(t, c, a.GetChannelByAddr(peer))
	assert.Nil(t, a.GetChannelByAddr(&net.UDPAddr{IP: net.ParseIP("192.168.0.2"), Port: 3478}))
}

func TestRemoveChannelBind(t *testing.T) {
	a := newBareAllocation()

	peer := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	require.NoError(t, a.AddChannelBind(NewChannelBind(proto.MinChannelNumber, peer, a.log), channelBindTimeout))

	assert.True(t, a.RemoveChannelBind(proto.MinChannelNumber))
	assert.Nil(t, a.GetChannelByNumber(proto.MinChannelNumber))
	assert.False(t, a.RemoveChannelBind(proto.MinChannelNumber))
}

func TestChannelBindExpiry(t *testing.T) {
	a := newBareAllocation()

	peer := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}
	c := NewChannelBind(proto.MinChannelNumber, peer, a.log)
	require.NoError(t, a.AddChannelBind(c, channelBindTimeout))

	require.True(t, c.lifetimeTimer.Reset(10*time.Millisecond))

	assert.Eventually(t, func() bool {
		return a.GetChannelByNumber(proto.MinChannelNumber) == nil
	}, time.Second, 10*time.Millisecond, "channel bind should remove itself on expiry")
}

func TestAllocationClose(t *testing.T) {
	a := newBareAllocation()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	a.RelaySocket = conn

	a.AddPermission(NewPermission(&net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 3478}, a.log))
	require.NoError(t, a.AddChannelBind(NewChannelBind(proto.MinChannelNumber, &net.UDPAddr{IP: net.ParseIP("192.168.0.2"), Port: 3478}, a.log), channelBindTimeout))

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Close(), ErrClosed, "second close must fail")
}

func TestFiveTupleAccessors(t *testing.T) {
	a := newBareAllocation()

	assert.Equal(t, "user", a.Username())
	assert.NotNil(t, a.FiveTuple())
}
