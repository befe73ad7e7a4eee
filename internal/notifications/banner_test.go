package notifications

import (
	"testing"
	"time"
)

func TestNewBannerChannelStartsHidden(t *testing.T) {
	b := NewBannerChannel()
	if b.State().Visible {
		t.Error("expected new banner to be hidden")
	}
}

func TestBannerChannelSendSetsVisibleState(t *testing.T) {
	b := NewBannerChannel()
	n := Notification{BlockerID: 7, TaskID: 3, Question: "which auth provider?"}

	if err := b.Send(n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	state := b.State()
	if !state.Visible {
		t.Error("expected banner to be visible after Send")
	}
	if state.BlockerID != 7 || state.TaskID != 3 {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.Question != n.Question {
		t.Errorf("expected question %q, got %q", n.Question, state.Question)
	}
}

func TestBannerChannelClearHidesState(t *testing.T) {
	b := NewBannerChannel()
	if err := b.Send(Notification{BlockerID: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Clear()

	if b.State().Visible {
		t.Error("expected banner to be hidden after Clear")
	}
}

func TestBannerChannelAlwaysShouldNotify(t *testing.T) {
	b := NewBannerChannel()
	if !b.ShouldNotify(Notification{}) {
		t.Fatal("expected banner channel to always accept notifications")
	}
}

func TestBannerChannelTimestamp(t *testing.T) {
	b := NewBannerChannel()
	before := time.Now()
	if err := b.Send(Notification{CreatedAt: before}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !b.State().Timestamp.Equal(before) {
		t.Error("expected banner timestamp to match the notification's CreatedAt")
	}
}

func TestBannerChannelThreadSafety(t *testing.T) {
	b := NewBannerChannel()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				if n%2 == 0 {
					b.Send(Notification{BlockerID: int64(j)})
				} else {
					b.Clear()
				}
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				b.State()
			}
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		<-done
	}
}
