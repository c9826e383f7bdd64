// Package notify carries short user-facing notifications ("Board saved",
// "Failed to save settings") from the engine to whoever shows them: the
// renderer bridge, the log, or a test recorder.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier delivers notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// New builds a notification stamped with the current time.
func New(level Level, title, format string, args ...any) Notification {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Notification{Level: level, Title: title, Message: msg, Time: time.Now()}
}

// Log writes notifications to a logger.
type Log struct {
	Logger *log.Logger
}

func (l Log) Notify(n Notification) {
	if n.Message != "" {
		l.Logger.Printf("%s: %s: %s", n.Level, n.Title, n.Message)
		return
	}
	l.Logger.Printf("%s: %s", n.Level, n.Title)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(n)
		}
	}
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns the recorded notifications in arrival order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Titles returns the recorded titles in arrival order.
func (r *Recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	titles := make([]string, len(r.items))
	for i, n := range r.items {
		titles[i] = n.Title
	}
	return titles
}

// Reset forgets recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
