package types

import (
	"strings"
	"time"
)

// Container is a group or channel visible to the monitoring account.
type Container struct {
	ID        int64
	Title     string
	IsGroup   bool
	IsChannel bool
}

// Watched reports whether the container is scanned. One-to-one chats are not.
func (c Container) Watched() bool {
	return c.IsGroup || c.IsChannel
}

// Kind returns "channel" or "group".
func (c Container) Kind() string {
	if c.IsChannel {
		return "channel"
	}
	return "group"
}

// Message is a single item fetched from a container.
type Message struct {
	ID          int64
	ContainerID int64
	SenderID    int64
	Body        string
	Timestamp   time.Time
}

// Identity is the authenticated account.
type Identity struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// Sender holds the display fields of a message author.
type Sender struct {
	FirstName string
	LastName  string
	Username  string
}

// Name joins first and last name.
func (s Sender) Name() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Display renders "Name (@handle)", falling back to "unknown" when both are empty.
func (s Sender) Display() string {
	name := s.Name()
	switch {
	case s.Username != "" && name != "":
		return name + " (@" + s.Username + ")"
	case s.Username != "":
		return "@" + s.Username
	case name != "":
		return name
	}
	return "unknown"
}

// Stats are process-wide counters. They are reset on restart.
type Stats struct {
	Cycles    int
	Matches   int
	StartedAt time.Time
}

// Uptime returns the time elapsed since StartedAt.
func (s Stats) Uptime(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// State is everything a scan cycle reads and advances. It is passed into
// and returned from each cycle instead of living in shared fields.
type State struct {
	Watermark  time.Time
	LastStatus time.Time
	Stats      Stats
}

// NewState returns the state at process start: the watermark looks back by
// lookback so the first cycle sees a short window of recent history.
func NewState(start time.Time, lookback time.Duration) State {
	return State{
		Watermark:  start.Add(-lookback),
		LastStatus: start,
		Stats:      Stats{StartedAt: start},
	}
}

// Advance moves the watermark to t. The watermark never moves backward.
func (s State) Advance(t time.Time) State {
	if t.After(s.Watermark) {
		s.Watermark = t
	}
	return s
}

// StatusDue reports whether at least period has passed since the last status.
func (s State) StatusDue(now time.Time, period time.Duration) bool {
	return now.Sub(s.LastStatus) >= period
}

// EventKind classifies an outgoing notification.
type EventKind int

const (
	EventForward EventKind = iota
	EventStatus
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventForward:
		return "forward"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a notification decided by the scan or the scheduler, not yet sent.
type Event struct {
	Kind EventKind
	At   time.Time

	// forward
	Message   Message
	Container Container
	Keywords  []string

	// status
	Stats        Stats
	KeywordCount int

	// error
	Err string
}

// ForwardEvent builds a forward notification for a matched message.
func ForwardEvent(m Message, c Container, keywords []string) Event {
	return Event{Kind: EventForward, At: m.Timestamp, Message: m, Container: c, Keywords: keywords}
}

// StatusEvent builds a periodic status report.
func StatusEvent(now time.Time, stats Stats, keywordCount int) Event {
	return Event{Kind: EventStatus, At: now, Stats: stats, KeywordCount: keywordCount}
}

// ErrorEvent builds a cycle failure notice.
func ErrorEvent(now time.Time, err error) Event {
	return Event{Kind: EventError, At: now, Err: err.Error()}
}
