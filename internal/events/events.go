package events

import (
	"context"
	"fmt"
)

// Topic kinds. Full topics are "gapminder.session.<id>.<kind>".
const (
	KindFrame      = "frame"
	KindPopulation = "population"
	KindClosed     = "closed"
)

// Topic returns the subject a session's events of kind are published on.
func Topic(sessionID, kind string) string {
	return fmt.Sprintf("gapminder.session.%s.%s", sessionID, kind)
}

// SessionTopics returns the pattern matching every event of one session.
func SessionTopics(sessionID string) string {
	return fmt.Sprintf("gapminder.session.%s.>", sessionID)
}

// SessionClosed is published when a session ends.
type SessionClosed struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Multi fans every event out to several publishers. All publishers are
// tried; the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, event any) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
