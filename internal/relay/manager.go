package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"relayd/internal/metrics"
)

// ErrChannelBusy is returned by Start while the channel's previous process
// is still alive.
var ErrChannelBusy = errors.New("relay: channel already has a live process")

// Manager tracks the live process of each channel role.
type Manager struct {
	spawner Spawner
	log     zerolog.Logger

	mu     sync.Mutex
	active map[Channel]Handle
	wg     sync.WaitGroup
}

func NewManager(spawner Spawner, log zerolog.Logger) *Manager {
	return &Manager{spawner: spawner, log: log, active: make(map[Channel]Handle)}
}

// Start spawns a relay for path on ch.
func (m *Manager) Start(ch Channel, path string, loop bool) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.active[ch]; h != nil && alive(h) {
		return nil, fmt.Errorf("%w: %s pid %d", ErrChannelBusy, ch, h.PID())
	}
	h, err := m.spawner.Spawn(path, loop)
	if err != nil {
		return nil, fmt.Errorf("spawn %s relay: %w", ch, err)
	}
	m.active[ch] = h
	metrics.Streams.WithLabelValues(ch.String()).Inc()
	m.log.Info().Str("event", "relay_start").Stringer("channel", ch).Int("pid", h.PID()).Str("path", path).Bool("loop", loop).Msg("relay started")

	m.wg.Add(1)
	go m.watch(ch, h)
	return h, nil
}

func (m *Manager) watch(ch Channel, h Handle) {
	defer m.wg.Done()
	exit := h.Wait()
	metrics.RelayExits.WithLabelValues(exit.Status()).Inc()
	m.mu.Lock()
	if m.active[ch] == h {
		delete(m.active, ch)
	}
	m.mu.Unlock()
	m.log.Info().Str("event", "relay_exit").Stringer("channel", ch).Int("pid", h.PID()).Stringer("exit", exit).Str("exit_status", exit.Status()).Msg("relay exited")
}

// Wait blocks until h exits.
func (m *Manager) Wait(h Handle) Exit { return h.Wait() }

// Kill terminates h. A nil or exited handle is a no-op.
func (m *Manager) Kill(h Handle) error {
	if h == nil || !alive(h) {
		return nil
	}
	if err := h.Kill(); err != nil {
		m.log.Warn().Err(err).Int("pid", h.PID()).Msg("relay kill")
		return err
	}
	return nil
}

// Active returns the live process on ch, if any.
func (m *Manager) Active(ch Channel) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.active[ch]
	if h == nil || !alive(h) {
		return nil, false
	}
	return h, true
}

// KillAll kills every live process and waits until they are reaped.
func (m *Manager) KillAll() {
	m.mu.Lock()
	handles := make([]Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()
	for _, h := range handles {
		_ = m.Kill(h)
	}
	m.wg.Wait()
}

func alive(h Handle) bool {
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}
