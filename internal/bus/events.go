package bus

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultBufSize = 256

type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventVoice
	EventPresence
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventVoice:
		return "voice"
	case EventPresence:
		return "presence"
	}
	return "unknown"
}

type VoiceChange int

const (
	VoiceNone VoiceChange = iota
	VoiceJoin
	VoiceLeave
	VoiceSwitch
)

// ActivityEvent is a gateway event reduced to what the statistics need.
type ActivityEvent struct {
	Kind      EventKind
	GuildID   string
	UserID    string
	Voice     VoiceChange
	Activity  []string // presence activity names
	Timestamp time.Time
}

// Bus carries activity events from the gateway handlers to a single
// consumer. Publish never blocks the gateway.
type Bus struct {
	events  chan ActivityEvent
	dropped atomic.Int64
	log     *zap.Logger
}

func New(bufSize int, log *zap.Logger) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	return &Bus{
		events: make(chan ActivityEvent, bufSize),
		log:    log.Named("bus"),
	}
}

// Publish enqueues ev and reports false when the buffer is full.
func (b *Bus) Publish(ev ActivityEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
		return true
	default:
		n := b.dropped.Add(1)
		b.log.Warn("event dropped, consumer is behind",
			zap.Stringer("kind", ev.Kind),
			zap.String("user_id", ev.UserID),
			zap.Int64("dropped_total", n))
		return false
	}
}

func (b *Bus) Events() <-chan ActivityEvent { return b.events }

func (b *Bus) Dropped() int64 { return b.dropped.Load() }
