package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastChannel shows a Windows toast notification for a blocker; on any
// other platform IsSupported (and therefore ShouldNotify) is false, so
// Send is never called.
type ToastChannel struct {
	appID        string
	dashboardURL string
}

// NewToastChannel builds a desktop toast channel.
func NewToastChannel(appID, dashboardURL string) *ToastChannel {
	if appID == "" {
		appID = "CodeFRAME"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastChannel{appID: appID, dashboardURL: dashboardURL}
}

func (t *ToastChannel) Name() string { return "toast" }

func (t *ToastChannel) ShouldNotify(n Notification) bool {
	return t.IsSupported()
}

// IsSupported reports whether toast notifications are available on this
// platform (Windows only, matching go-toast/toast's backing API).
func (t *ToastChannel) IsSupported() bool {
	return runtime.GOOS == "windows"
}

func (t *ToastChannel) Send(n Notification) error {
	if !t.IsSupported() {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   t.appID,
		Title:   formatSubject(n),
		Message: n.Question,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{
				Type:      "protocol",
				Label:     "View Now",
				Arguments: t.dashboardURL,
			},
		},
	}
	return notification.Push()
}
