package notification

import (
	"fmt"
	"os/exec"
	"strings"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
)

// Notification represents a macOS notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(appName string) *NotificationManager {
	return &NotificationManager{
		appName: appName,
	}
}

// Send sends a notification to the user via macOS notification center.
// The message is dismissible and never blocks the caller's flow.
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		escape(notification.Message),
		escape(notification.Title),
	)

	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// escape quotes a string for embedding in an AppleScript literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeInfo,
	})
}

// SendWarning sends a warning notification
func (nm *NotificationManager) SendWarning(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeWarning,
	})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{
		Title:   title,
		Message: message,
		Type:    TypeError,
	})
}

// SaveFailed reports a failed loop save. No retry is attempted.
func (nm *NotificationManager) SaveFailed(reason string) error {
	message := "Could not save the loop"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// LoadFailed reports an unreadable or missing loop file.
func (nm *NotificationManager) LoadFailed(reason string) error {
	message := "Could not load the loop"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// ExportFailed reports a failed export.
func (nm *NotificationManager) ExportFailed(reason string) error {
	message := "Could not export the loop"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// RecordingFailed reports that the capture could not be started.
func (nm *NotificationManager) RecordingFailed(reason string) error {
	message := "Recording failed"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// DeviceNotFound reports that the audio input device could not be opened.
func (nm *NotificationManager) DeviceNotFound() error {
	return nm.SendError(
		nm.appName,
		"No audio input device available. Reconnect the device and try again.",
	)
}

// ControllerConnected reports a MIDI controller hot-plug.
func (nm *NotificationManager) ControllerConnected(name string) error {
	return nm.SendInfo(nm.appName, fmt.Sprintf("MIDI controller connected: %s", name))
}

// ControllerLost reports that the MIDI controller went away.
func (nm *NotificationManager) ControllerLost(name string) error {
	return nm.SendWarning(nm.appName, fmt.Sprintf("MIDI controller disconnected: %s", name))
}
