package repository

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned (wrapped) by Create methods when another row already
// owns the platform id.
var ErrDuplicate = errors.New("duplicate platform id")

type CreateUserInput struct {
	PlatformID  string
	DisplayName string
	Username    string
	IsBot       bool
	Status      UserStatus
	JoinedAt    *time.Time
}

// UpdateUserInput leaves nil fields untouched.
type UpdateUserInput struct {
	DisplayName *string
	Username    *string
	IsBot       *bool
	Status      *UserStatus
	JoinedAt    *time.Time
}

type UserFilter struct {
	IDs         []int64
	PlatformIDs []string
	IsBot       *bool
}

type CreateChannelInput struct {
	PlatformID string
	Name       string
	URL        string
}

type UpdateChannelInput struct {
	Name *string
	URL  *string
}

type ChannelFilter struct {
	IDs         []int64
	PlatformIDs []string
}

type CreateSessionInput struct {
	PlatformID  string
	Name        string
	Status      SessionStatus
	StartAt     time.Time
	UserCount   int
	ChannelID   int64
	CreatorID   int64
	Description string
	Image       string
}

type UpdateSessionInput struct {
	Name      *string
	Status    *SessionStatus
	EndAt     *time.Time
	UserCount *int
}

type SessionFilter struct {
	ChannelID int64
	Statuses  []SessionStatus
}

type CreateParticipationInput struct {
	UserID     int64
	SessionID  int64
	Kind       ParticipationKind
	OccurredAt time.Time
}

type ParticipationFilter struct {
	SessionID int64
	UserID    int64
}

type UserRepository interface {
	FindUserByPlatformID(ctx context.Context, platformID string) (*User, error)
	CreateUser(ctx context.Context, input CreateUserInput) (*User, error)
	CreateUsers(ctx context.Context, inputs []CreateUserInput) (int, error)
	UpdateUser(ctx context.Context, id int64, input UpdateUserInput) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

type ChannelRepository interface {
	FindChannelByPlatformID(ctx context.Context, platformID string) (*Channel, error)
	CreateChannel(ctx context.Context, input CreateChannelInput) (*Channel, error)
	CreateChannels(ctx context.Context, inputs []CreateChannelInput) (int, error)
	UpdateChannel(ctx context.Context, id int64, input UpdateChannelInput) (*Channel, error)
	ListChannels(ctx context.Context, filter ChannelFilter) ([]Channel, error)
}

type SessionRepository interface {
	FindSessionByPlatformID(ctx context.Context, platformID string) (*Session, error)
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CreateSessions(ctx context.Context, inputs []CreateSessionInput) (int, error)
	UpdateSession(ctx context.Context, id int64, input UpdateSessionInput) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
}

type ParticipationRepository interface {
	CreateParticipation(ctx context.Context, input CreateParticipationInput) (*Participation, error)
	CreateParticipations(ctx context.Context, inputs []CreateParticipationInput) (int, error)
	ListParticipations(ctx context.Context, filter ParticipationFilter) ([]Participation, error)
}

type Repository interface {
	UserRepository
	ChannelRepository
	SessionRepository
	ParticipationRepository
	Ping(ctx context.Context) error
}
