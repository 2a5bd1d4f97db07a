package allocation

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pkg/errors"

	"github.com/saintparish4/relay/internal/relay"
)

// reservationTimeout is how long a reservation token holds its port
const reservationTimeout = 30 * time.Second

// ManagerConfig a bag of config params for Manager
type ManagerConfig struct {
	LeveledLogger    logging.LeveledLogger
	AddressGenerator relay.AddressGenerator

	// OnEvent, when set, receives allocation lifecycle events. It is
	// invoked outside the allocation map lock.
	OnEvent func(Event)
}

// Manager is the sole arbiter of the allocation and reservation tables
type Manager struct {
	lock sync.RWMutex
	log  logging.LeveledLogger

	allocations map[string]*Allocation

	reservationsLock sync.RWMutex
	reservations     map[string]int

	addressGenerator relay.AddressGenerator
	onEvent          func(Event)
}

// NewManager creates a new instance of Manager
func NewManager(config ManagerConfig) (*Manager, error) {
	switch {
	case config.AddressGenerator == nil:
		return nil, errors.New("AddressGenerator must be set")
	case config.LeveledLogger == nil:
		return nil, errors.New("LeveledLogger must be set")
	}

	return &Manager{
		log:              config.LeveledLogger,
		allocations:      make(map[string]*Allocation, 64),
		reservations:     make(map[string]int),
		addressGenerator: config.AddressGenerator,
		onEvent:          config.OnEvent,
	}, nil
}

// GetAllocation fetches the allocation matching the passed FiveTuple
func (m *Manager) GetAllocation(fiveTuple *FiveTuple) *Allocation {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.allocations[fiveTuple.Fingerprint()]
}

// AllocationCount returns the number of existing allocations
func (m *Manager) AllocationCount() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.allocations)
}

// CreateAllocation creates a new allocation and starts relaying
func (m *Manager) CreateAllocation(fiveTuple *FiveTuple, turnSocket net.PacketConn, requestedPort int, lifetime time.Duration, username string) (*Allocation, error) {
	switch {
	case fiveTuple == nil:
		return nil, errNilFiveTuple
	case fiveTuple.SrcAddr == nil:
		return nil, errNilFiveTupleSrc
	case fiveTuple.DstAddr == nil:
		return nil, errNilFiveTupleDst
	case turnSocket == nil:
		return nil, errNilTurnSocket
	case lifetime == 0:
		return nil, ErrLifetimeZero
	}

	fingerprint := fiveTuple.Fingerprint()

	m.lock.RLock()
	_, dupe := m.allocations[fingerprint]
	m.lock.RUnlock()
	if dupe {
		return nil, ErrDupeFiveTuple
	}

	conn, relayAddr, err := m.addressGenerator.AllocateConn(true, requestedPort)
	if err != nil {
		return nil, err
	}

	a := NewAllocation(turnSocket, fiveTuple, username, m.log)
	a.RelaySocket = conn
	a.RelayAddr = relayAddr
	a.Protocol = fiveTuple.Protocol

	m.log.Debugf("listening on relay addr: %s", a.RelayAddr)

	a.lifetimeTimer = time.AfterFunc(lifetime, func() {
		m.deleteAllocation(fiveTuple, EventAllocationExpired)
	})

	// The relay socket is bound outside the map lock, so the key is
	// re-checked before insertion to keep check-and-insert atomic with
	// respect to concurrent creates for the same five-tuple.
	m.lock.Lock()
	if _, ok := m.allocations[fingerprint]; ok {
		m.lock.Unlock()
		a.lifetimeTimer.Stop()
		if err := conn.Close(); err != nil {
			m.log.Errorf("Failed to close relay socket for duplicate %v: %v", fiveTuple, err)
		}
		return nil, ErrDupeFiveTuple
	}
	m.allocations[fingerprint] = a
	m.lock.Unlock()

	go a.packetHandler(m)

	m.emit(Event{
		Type:      EventAllocationCreated,
		FiveTuple: fiveTuple,
		Username:  username,
		RelayAddr: relayAddr,
	})
	return a, nil
}

// DeleteAllocation removes an allocation and releases its relay socket.
// Deleting an absent five-tuple is a no-op.
func (m *Manager) DeleteAllocation(fiveTuple *FiveTuple) {
	m.deleteAllocation(fiveTuple, EventAllocationRemoved)
}

func (m *Manager) deleteAllocation(fiveTuple *FiveTuple, event EventType) {
	fingerprint := fiveTuple.Fingerprint()

	m.lock.Lock()
	allocation := m.allocations[fingerprint]
	delete(m.allocations, fingerprint)
	m.lock.Unlock()

	if allocation == nil {
		return
	}

	if err := allocation.Close(); err != nil && err != ErrClosed {
		m.log.Errorf("Failed to close allocation: %v", err)
	}

	m.emit(Event{
		Type:      event,
		FiveTuple: fiveTuple,
		Username:  allocation.username,
		RelayAddr: allocation.RelayAddr,
	})
}

// DeleteAllocationsByUsername removes every allocation created with the
// given username. The victims are unlinked in a single critical section and
// closed concurrently outside it, so a racing CreateAllocation with the
// same username may survive the sweep.
func (m *Manager) DeleteAllocationsByUsername(name string) {
	m.lock.Lock()
	var toDelete []*Allocation
	for fingerprint, a := range m.allocations {
		if a.username == name {
			delete(m.allocations, fingerprint)
			toDelete = append(toDelete, a)
		}
	}
	m.lock.Unlock()

	var wg sync.WaitGroup
	for _, a := range toDelete {
		wg.Add(1)
		go func(a *Allocation) {
			defer wg.Done()
			if err := a.Close(); err != nil && err != ErrClosed {
				m.log.Errorf("Failed to close allocation: %v", err)
			}
			m.emit(Event{
				Type:      EventAllocationRemoved,
				FiveTuple: a.fiveTuple,
				Username:  a.username,
				RelayAddr: a.RelayAddr,
			})
		}(a)
	}
	wg.Wait()
}

// Close closes the manager and closes all allocations it manages
func (m *Manager) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, a := range m.allocations {
		if err := a.Close(); err != nil {
			return err
		}
	}
	return nil
}

// CreateReservation stores the reservation for the token+port and schedules
// its removal 30 seconds from now. A second reservation with the same token
// overwrites the previous value; the older detached timer fires against the
// key unconditionally, so a re-created token may expire before its own 30
// seconds elapse.
func (m *Manager) CreateReservation(reservationToken string, port int) {
	time.AfterFunc(reservationTimeout, func() {
		m.reservationsLock.Lock()
		defer m.reservationsLock.Unlock()
		delete(m.reservations, reservationToken)
	})

	m.reservationsLock.Lock()
	m.reservations[reservationToken] = port
	m.reservationsLock.Unlock()
}

// GetReservation returns the port for a given reservation if it exists
func (m *Manager) GetReservation(reservationToken string) (int, bool) {
	m.reservationsLock.RLock()
	defer m.reservationsLock.RUnlock()

	port, ok := m.reservations[reservationToken]
	return port, ok
}

// GetRandomEvenPort samples an un-allocated even udp4 port. The port is
// merely sampled; the socket is released and actual allocation happens on
// the subsequent CreateAllocation.
func (m *Manager) GetRandomEvenPort() (int, error) {
	conn, addr, err := m.addressGenerator.AllocateConn(true, 0)
	if err != nil {
		return 0, err
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		_ = conn.Close()
		return 0, errors.New("failed to cast net.Addr to *net.UDPAddr")
	}

	if err := conn.Close(); err != nil {
		return 0, err
	}
	return udpAddr.Port, nil
}

// Stats contains manager statistics
type Stats struct {
	// Allocations is the total number of allocations
	Allocations int
	// Permissions is the total number of permissions in all allocations
	Permissions int
	// Bindings is the total number of channel bindings in all allocations
	Bindings int
}

// Stats returns current statistics
func (m *Manager) Stats() Stats {
	m.lock.RLock()
	defer m.lock.RUnlock()

	s := Stats{
		Allocations: len(m.allocations),
	}
	for _, a := range m.allocations {
		a.permissionsLock.RLock()
		s.Permissions += len(a.permissions)
		a.permissionsLock.RUnlock()

		a.channelBindingsLock.RLock()
		s.Bindings += len(a.channelBindings)
		a.channelBindingsLock.RUnlock()
	}
	return s
}

func (m *Manager) emit(e Event) {
	if m.onEvent != nil {
		go m.onEvent(e)
	}
}
