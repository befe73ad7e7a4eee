// Package notifications implements NotificationSink (spec §4.13): a
// fan-out of blocker_created(severity=sync) events to desktop, dashboard,
// webhook, and email channels. The core's only guarantee is that a sink
// failure never hides the blocker — it remains visible through the
// EventBus regardless of whether any channel here succeeds.
package notifications

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Notification is the structured payload handed to every Channel, built
// from a blocker_created event (spec §4.13 "the core emits a structured
// notification event; platform dispatch is the sink's concern").
type Notification struct {
	BlockerID int64
	TaskID    int64
	ProjectID int64
	Severity  types.BlockerSeverity
	Reason    string
	Question  string
	CreatedAt time.Time
}

// Channel is one notification transport. ShouldNotify lets a channel
// opt out (e.g. a webhook scoped to async-only alerts); Send performs
// the actual dispatch and may fail independently of every other channel.
type Channel interface {
	Name() string
	ShouldNotify(n Notification) bool
	Send(n Notification) error
}

// Manager subscribes to the bus, filters to blocker_created(sync), and
// fans the resulting Notification out to every registered Channel
// fire-and-forget, logging failures rather than propagating them (spec
// §4.13's sink-failure fallback).
type Manager struct {
	bus    *events.Bus
	logger *log.Logger

	mu       sync.RWMutex
	channels []Channel
	banner   *BannerChannel

	stopCh chan struct{}
	doneCh chan struct{}
}

// Banner returns the dashboard banner channel so internal/httpapi and
// internal/wsserver can read its current state.
func (m *Manager) Banner() *BannerChannel {
	return m.banner
}

// Config configures a Manager's built-in channels. The webhook and email
// channels live in internal/notifications/external and are registered by
// the caller via AddChannel (they depend on this package for the Channel
// and Notification types, so this package cannot import them back
// without a cycle — internal/app wires them at startup).
type Config struct {
	AppID        string
	DashboardURL string
	Logger       *log.Logger
}

// NewManager builds a Manager with the always-on desktop/terminal/banner
// channels (spec §1's "desktop/webhook notification transports" list);
// external channels are added afterward with AddChannel.
func NewManager(bus *events.Bus, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	m := &Manager{
		bus:    bus,
		logger: cfg.Logger,
	}

	m.AddChannel(NewToastChannel(cfg.AppID, cfg.DashboardURL))
	m.AddChannel(NewTerminalChannel())
	m.banner = NewBannerChannel()
	m.AddChannel(m.banner)

	return m
}

// AddChannel registers an additional channel (used by tests and by
// callers that want a channel Config doesn't build, e.g. a FakeChannel).
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels returns the names of every registered channel.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name()
	}
	return names
}

// Run subscribes to blocker_created events for every project (broadcast
// scope) and fans each sync-severity blocker out to every channel until
// Stop is called. Intended to run in its own goroutine for the lifetime
// of the process.
func (m *Manager) Run() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	ch := m.bus.Subscribe(0, []events.Type{events.BlockerCreated, events.BlockerResolved})
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			m.bus.Unsubscribe(0, ch)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case events.BlockerCreated:
				m.handle(ev)
			case events.BlockerResolved:
				if m.banner != nil {
					m.banner.Clear()
				}
			}
		}
	}
}

// Stop ends Run's subscription loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (m *Manager) handle(ev events.Event) {
	severity, _ := ev.Payload["severity"].(types.BlockerSeverity)
	if severity != types.BlockerSync {
		return
	}

	n := Notification{
		ProjectID: ev.ProjectID,
		Severity:  severity,
		CreatedAt: ev.CreatedAt,
	}
	if id, ok := ev.Payload["blocker_id"].(int64); ok {
		n.BlockerID = id
	}
	if id, ok := ev.Payload["task_id"].(int64); ok {
		n.TaskID = id
	}
	if r, ok := ev.Payload["reason"].(string); ok {
		n.Reason = r
	}
	if q, ok := ev.Payload["question"].(string); ok {
		n.Question = q
	}

	m.dispatch(n)
}

// dispatch sends n to every matching channel concurrently, matching the
// teacher's Router.Route fire-and-forget shape, but waiting for all
// channels to finish so a caller (e.g. a test) can observe the outcome
// deterministically rather than racing background goroutines.
func (m *Manager) dispatch(n Notification) {
	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		if !ch.ShouldNotify(n) {
			continue
		}
		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			if err := channel.Send(n); err != nil {
				m.logger.Printf("[NOTIFICATION] channel %s failed for blocker %d: %v", channel.Name(), n.BlockerID, err)
			}
		}(ch)
	}
	wg.Wait()
}

func formatSubject(n Notification) string {
	return fmt.Sprintf("CodeFRAME blocker #%d on task %d", n.BlockerID, n.TaskID)
}
