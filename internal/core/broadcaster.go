package core

import (
	"time"

	"github.com/rs/zerolog"
)

// DeliveryRecorder observes fan-out results. Implemented by the metrics package.
type DeliveryRecorder interface {
	MessagePublished()
	DeliveryFailed()
}

// Broadcaster fans lines out to every live session.
type Broadcaster struct {
	registry *Registry
	log      *zerolog.Logger
	rec      DeliveryRecorder
}

// NewBroadcaster builds a broadcaster over registry. logger and rec may be nil.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger, rec DeliveryRecorder) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{registry: registry, log: logger, rec: rec}
}

// Publish delivers "<from>: <text>" to every live session except exclude
// (empty excludes no one) and returns how many recipients accepted the line.
//
// Recipients are taken from a registry snapshot, so no lock is held while
// lines are queued. A recipient that cannot accept the line is aborted; its
// own read loop observes the closed connection and removes the session.
func (b *Broadcaster) Publish(from, text, exclude string) int {
	line := Message{From: from, Text: text, CreatedAt: time.Now()}.Line()

	delivered := 0
	for _, s := range b.registry.Sessions() {
		if exclude != "" && s.Identity == exclude {
			continue
		}
		if err := s.Send(line); err != nil {
			b.log.Warn().Err(err).Str("session_id", s.ID).Str("user", s.Identity).Msg("delivery failed")
			if b.rec != nil {
				b.rec.DeliveryFailed()
			}
			s.Abort()
			continue
		}
		delivered++
	}

	if b.rec != nil {
		b.rec.MessagePublished()
	}
	return delivered
}
