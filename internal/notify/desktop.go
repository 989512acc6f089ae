package notify

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Permission is the state of the OS notification capability.
type Permission int

const (
	// PermissionUnsupported means the platform has no notification surface.
	PermissionUnsupported Permission = iota
	// PermissionDenied means notifications were disabled by the user.
	PermissionDenied
	// PermissionGranted means notifications may be shown.
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unsupported"
	}
}

// Notifier raises notifications outside the application window.
type Notifier interface {
	// RequestPermission resolves the capability. It never fails: a missing
	// surface is reported as PermissionUnsupported.
	RequestPermission(ctx context.Context) Permission

	// Notify shows a notification. Callers check the permission first.
	Notify(title, message string) error
}

// DesktopNotifier shows notifications through the desktop environment.
type DesktopNotifier struct {
	enabled   bool
	logger    *zap.SugaredLogger
	supported func() bool
	send      func(title, message string) error
}

// NewDesktopNotifier returns a notifier. When enabled is false every
// permission request resolves to PermissionDenied.
func NewDesktopNotifier(enabled bool, logger *zap.SugaredLogger) *DesktopNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DesktopNotifier{
		enabled:   enabled,
		logger:    logger,
		supported: desktopSupported,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// RequestPermission implements Notifier.
func (d *DesktopNotifier) RequestPermission(_ context.Context) Permission {
	if !d.supported() {
		d.logger.Infow("desktop notifications unsupported", "os", runtime.GOOS)
		return PermissionUnsupported
	}
	if !d.enabled {
		return PermissionDenied
	}
	return PermissionGranted
}

// Notify implements Notifier.
func (d *DesktopNotifier) Notify(title, message string) error {
	return d.send(title, message)
}

// desktopSupported reports whether a notification daemon is reachable.
func desktopSupported() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "netbsd", "openbsd":
		if os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" {
			return true
		}
		_, err := exec.LookPath("notify-send")
		return err == nil
	default:
		return false
	}
}

// FocusTracker records whether the application is in the foreground.
// A tracker that never receives a focus event reports hidden.
type FocusTracker struct {
	mu      sync.RWMutex
	focused bool
}

// NewFocusTracker returns a tracker in the hidden state.
func NewFocusTracker() *FocusTracker {
	return &FocusTracker{}
}

// SetFocused updates the focus state.
func (f *FocusTracker) SetFocused(focused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = focused
}

// Hidden reports whether the application is not in the foreground.
func (f *FocusTracker) Hidden() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.focused
}
