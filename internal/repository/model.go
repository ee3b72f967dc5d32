package repository

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCanceled  SessionStatus = "canceled"
)

type ParticipationKind string

const (
	ParticipationJoined ParticipationKind = "joined"
	ParticipationLeft   ParticipationKind = "left"
)

type User struct {
	ID          int64
	PlatformID  string
	DisplayName string
	Username    string
	IsBot       bool
	Status      UserStatus
	JoinedAt    *time.Time
	CreatedAt   time.Time
}

// IsPlaceholder reports whether the row was auto-created from a bare platform id.
func (u *User) IsPlaceholder() bool {
	return u.DisplayName == "" && u.Username == ""
}

type Channel struct {
	ID         int64
	PlatformID string
	Name       string
	URL        string
	CreatedAt  time.Time
}

func (c *Channel) IsPlaceholder() bool {
	return c.Name == "" && c.URL == ""
}

type Session struct {
	ID          int64
	PlatformID  string
	Name        string
	Status      SessionStatus
	StartAt     time.Time
	EndAt       *time.Time
	UserCount   int
	ChannelID   int64
	CreatorID   int64
	Description string
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Participation struct {
	ID         int64
	UserID     int64
	SessionID  int64
	Kind       ParticipationKind
	OccurredAt time.Time
	CreatedAt  time.Time
}
