package notifications

import (
	"runtime"
	"testing"
)

func TestNewToastChannelDefaultsAppID(t *testing.T) {
	tc := NewToastChannel("", "")
	if tc.appID != "CodeFRAME" {
		t.Errorf("expected default appID 'CodeFRAME', got %q", tc.appID)
	}
	if tc.dashboardURL != "http://localhost:8080" {
		t.Errorf("expected default dashboard URL, got %q", tc.dashboardURL)
	}
}

func TestNewToastChannelWithCustomAppID(t *testing.T) {
	tc := NewToastChannel("MyCustomApp", "http://example.com")
	if tc.appID != "MyCustomApp" {
		t.Errorf("expected appID 'MyCustomApp', got %q", tc.appID)
	}
}

func TestToastChannelIsSupportedMatchesWindows(t *testing.T) {
	tc := NewToastChannel("", "")
	supported := tc.IsSupported()

	if runtime.GOOS == "windows" {
		if !supported {
			t.Error("expected toast to be supported on Windows")
		}
	} else if supported {
		t.Error("expected toast to be unsupported on non-Windows platforms")
	}
}

func TestToastChannelSendErrorsOffWindows(t *testing.T) {
	tc := NewToastChannel("", "")
	err := tc.Send(Notification{Question: "pick a database"})

	if runtime.GOOS != "windows" && err == nil {
		t.Error("expected an error on a non-Windows platform")
	}
}

func TestToastChannelShouldNotifyMatchesIsSupported(t *testing.T) {
	tc := NewToastChannel("", "")
	if tc.ShouldNotify(Notification{}) != tc.IsSupported() {
		t.Error("expected ShouldNotify to mirror IsSupported")
	}
}
