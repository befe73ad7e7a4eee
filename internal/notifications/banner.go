package notifications

import (
	"sync"
	"time"
)

// BannerState holds the current state of the dashboard's blocker banner,
// polled by internal/httpapi's project-status endpoint and pushed over
// internal/wsserver on every blocker_created.
type BannerState struct {
	Visible   bool      `json:"visible"`
	BlockerID int64     `json:"blocker_id,omitempty"`
	TaskID    int64     `json:"task_id,omitempty"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// BannerChannel tracks the latest sync-severity blocker as dashboard
// banner state rather than dispatching anywhere external; it is always
// enabled since the dashboard has no platform-support restriction.
type BannerChannel struct {
	state BannerState
	mu    sync.RWMutex
}

// NewBannerChannel builds a cleared banner channel.
func NewBannerChannel() *BannerChannel {
	return &BannerChannel{}
}

func (b *BannerChannel) Name() string { return "banner" }

func (b *BannerChannel) ShouldNotify(n Notification) bool { return true }

func (b *BannerChannel) Send(n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BannerState{
		Visible:   true,
		BlockerID: n.BlockerID,
		TaskID:    n.TaskID,
		Question:  n.Question,
		Timestamp: n.CreatedAt,
	}
	return nil
}

// Clear hides the banner once the blocker underlying it is resolved.
func (b *BannerChannel) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BannerState{}
}

// State returns a copy of the current banner state.
func (b *BannerChannel) State() BannerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
