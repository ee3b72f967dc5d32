package discord

import (
	"context"
	"time"
)

// ScheduledEventStatus mirrors the numeric status codes of Discord guild scheduled events.
type ScheduledEventStatus int

const (
	ScheduledEventStatusUnknown   ScheduledEventStatus = 0
	ScheduledEventStatusScheduled ScheduledEventStatus = 1
	ScheduledEventStatusActive    ScheduledEventStatus = 2
	ScheduledEventStatusCompleted ScheduledEventStatus = 3
	ScheduledEventStatusCanceled  ScheduledEventStatus = 4
)

// RawStatus is the canonical name for each code. Deleted events are reported as Canceled.
func (s ScheduledEventStatus) RawStatus() string {
	switch s {
	case ScheduledEventStatusScheduled:
		return "Scheduled"
	case ScheduledEventStatusActive:
		return "Active"
	case ScheduledEventStatusCompleted:
		return "Completed"
	case ScheduledEventStatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

type ScheduledEvent struct {
	ID             string
	GuildID        string
	ChannelID      string
	CreatorID      string
	Name           string
	Description    string
	Image          string
	Status         ScheduledEventStatus
	ScheduledStart time.Time
	ScheduledEnd   *time.Time
	UserCount      int
	Deleted        bool
	ReceivedAt     time.Time
}

type VoiceStateEvent struct {
	GuildID           string
	UserID            string
	UserIsBot         bool
	UserDisplayName   string
	Username          string
	BeforeChannelID   string
	AfterChannelID    string
	BeforeChannelURL  string
	AfterChannelURL   string
	BeforeChannelName string
	AfterChannelName  string
	OccurredAt        time.Time
}

type MemberEvent struct {
	GuildID     string
	UserID      string
	DisplayName string
	Username    string
	IsBot       bool
	JoinedAt    *time.Time
	Removed     bool
}

type ChannelEvent struct {
	GuildID   string
	ChannelID string
	Name      string
	URL       string
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	RegisterScheduledEventHandler(handler func(ScheduledEvent))
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterMemberHandler(handler func(MemberEvent))
	RegisterChannelHandler(handler func(ChannelEvent))
	GetBotUserID() (string, error)
	Run() error
}

// ChannelURL builds the canonical web URL of a guild channel.
func ChannelURL(guildID, channelID string) string {
	if guildID == "" || channelID == "" {
		return ""
	}
	return "https://discord.com/channels/" + guildID + "/" + channelID
}
