package reconciler

import (
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
)

// Raw status values carried by session status events.
const (
	RawStatusScheduled = "Scheduled"
	RawStatusActive    = "Active"
	RawStatusCompleted = "Completed"
	RawStatusCanceled  = "Canceled"
)

const (
	KindSessionStatus = "session_status"
	KindParticipation = "participation"
	KindMember        = "member"
	KindChannel       = "channel"
)

// Event is the closed set of notifications accepted by Dispatch.
type Event interface {
	EventKind() string
	// EventKey identifies the entity the event is about, for logs and replay.
	EventKey() string
	isEvent()
}

type SessionStatusEvent struct {
	PlatformID        string
	Name              string
	RawStatus         string
	StartAt           time.Time
	EndAt             *time.Time
	UserCount         int
	ChannelPlatformID string
	CreatorPlatformID string
	Description       string
	Image             string
}

func (SessionStatusEvent) EventKind() string  { return KindSessionStatus }
func (e SessionStatusEvent) EventKey() string { return e.PlatformID }
func (SessionStatusEvent) isEvent()           {}

// ParticipationHints carry optional data used only when rows have to be auto-created.
type ParticipationHints struct {
	DisplayName string
	Username    string
	IsBot       bool
	ChannelName string
	ChannelURL  string
	// ImplicitSession allows a Join on a channel without an open session to start one.
	ImplicitSession bool
}

type ParticipationEvent struct {
	Kind              repository.ParticipationKind
	UserPlatformID    string
	ChannelPlatformID string
	Hints             *ParticipationHints
	OccurredAt        time.Time
}

func (ParticipationEvent) EventKind() string { return KindParticipation }
func (e ParticipationEvent) EventKey() string {
	return e.UserPlatformID + "@" + e.ChannelPlatformID
}
func (ParticipationEvent) isEvent() {}

// MemberEvent is the canonical membership notification for a user.
type MemberEvent struct {
	PlatformID  string
	DisplayName string
	Username    string
	IsBot       bool
	JoinedAt    *time.Time
	Removed     bool
}

func (MemberEvent) EventKind() string  { return KindMember }
func (e MemberEvent) EventKey() string { return e.PlatformID }
func (MemberEvent) isEvent()           {}

type ChannelEvent struct {
	PlatformID string
	Name       string
	URL        string
}

func (ChannelEvent) EventKind() string  { return KindChannel }
func (e ChannelEvent) EventKey() string { return e.PlatformID }
func (ChannelEvent) isEvent()           {}

type Transition int

const (
	TransitionObserve Transition = iota
	TransitionStart
	TransitionEnd
)

func (t Transition) String() string {
	switch t {
	case TransitionStart:
		return "start"
	case TransitionEnd:
		return "end"
	default:
		return "observe"
	}
}

// Classify decides what a session status event means for the store.
// Completed or any end time is an end, Active without end time is a start,
// everything else is only observed.
func Classify(e SessionStatusEvent) Transition {
	if e.RawStatus == RawStatusCompleted || e.EndAt != nil {
		return TransitionEnd
	}
	if e.RawStatus == RawStatusActive {
		return TransitionStart
	}
	return TransitionObserve
}

type Outcome string

const (
	OutcomeStarted       Outcome = "started"
	OutcomeStartReplayed Outcome = "start_replayed"
	OutcomeEnded         Outcome = "ended"
	OutcomeEndReplayed   Outcome = "end_replayed"
	OutcomeObserved      Outcome = "observed"
	OutcomeRecorded      Outcome = "recorded"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeUpdated       Outcome = "updated"
	OutcomeFailed        Outcome = "failed"
)
