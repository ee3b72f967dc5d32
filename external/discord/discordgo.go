package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/eventsync/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	guildID   string
	botUserID string
	now       func() time.Time
}

// NewClient builds the gateway session without opening it, so handlers can be
// registered before the first event arrives.
func NewClient(token, guildID string) (discordpkg.Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildScheduledEvents,
	)
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	s.State.TrackChannels = true
	return &Client{
		session: s,
		guildID: guildID,
	}, nil
}

func (c *Client) timestamp() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	if err := c.session.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	slog.Info("discord gateway connected", "bot_user_id", userID, "guild_id", c.guildID)
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Shutdown lets the DI container close the gateway connection.
func (c *Client) Shutdown() error {
	return c.Close()
}

func (c *Client) RegisterScheduledEventHandler(handler func(discordpkg.ScheduledEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildScheduledEventCreate) {
		if ev == nil || ev.GuildScheduledEvent == nil {
			return
		}
		handler(c.scheduledEvent(ev.GuildScheduledEvent, false))
	})
	c.session.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildScheduledEventUpdate) {
		if ev == nil || ev.GuildScheduledEvent == nil {
			return
		}
		handler(c.scheduledEvent(ev.GuildScheduledEvent, false))
	})
	c.session.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildScheduledEventDelete) {
		if ev == nil || ev.GuildScheduledEvent == nil {
			return
		}
		handler(c.scheduledEvent(ev.GuildScheduledEvent, true))
	})
}

func (c *Client) scheduledEvent(ev *discordgo.GuildScheduledEvent, deleted bool) discordpkg.ScheduledEvent {
	creatorID := ev.CreatorID
	if creatorID == "" && ev.Creator != nil {
		creatorID = ev.Creator.ID
	}
	return discordpkg.ScheduledEvent{
		ID:             ev.ID,
		GuildID:        ev.GuildID,
		ChannelID:      ev.ChannelID,
		CreatorID:      creatorID,
		Name:           ev.Name,
		Description:    ev.Description,
		Image:          ev.Image,
		Status:         discordpkg.ScheduledEventStatus(ev.Status),
		ScheduledStart: ev.ScheduledStartTime,
		ScheduledEnd:   ev.ScheduledEndTime,
		UserCount:      ev.UserCount,
		Deleted:        deleted,
		ReceivedAt:     c.timestamp(),
	}
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if ev, ok := c.voiceStateEvent(vs); ok {
			handler(ev)
		}
	})
}

func (c *Client) voiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil {
		return discordpkg.VoiceStateEvent{}, false
	}
	beforeChannelID := ""
	if vs.BeforeUpdate != nil {
		beforeChannelID = vs.BeforeUpdate.ChannelID
	}
	afterChannelID := vs.ChannelID
	if beforeChannelID == afterChannelID {
		return discordpkg.VoiceStateEvent{}, false
	}
	if vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	displayName, username, isBot := c.resolveUser(vs.GuildID, vs.UserID, vs.Member)
	return discordpkg.VoiceStateEvent{
		GuildID:           vs.GuildID,
		UserID:            vs.UserID,
		UserIsBot:         isBot,
		UserDisplayName:   displayName,
		Username:          username,
		BeforeChannelID:   beforeChannelID,
		AfterChannelID:    afterChannelID,
		BeforeChannelName: c.channelName(beforeChannelID),
		AfterChannelName:  c.channelName(afterChannelID),
		BeforeChannelURL:  discordpkg.ChannelURL(vs.GuildID, beforeChannelID),
		AfterChannelURL:   discordpkg.ChannelURL(vs.GuildID, afterChannelID),
		OccurredAt:        c.timestamp(),
	}, true
}

func (c *Client) RegisterMemberHandler(handler func(discordpkg.MemberEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m == nil {
			return
		}
		if ev, ok := memberEvent(m.Member, false); ok {
			handler(ev)
		}
	})
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		if m == nil {
			return
		}
		if ev, ok := memberEvent(m.Member, false); ok {
			handler(ev)
		}
	})
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if m == nil {
			return
		}
		if ev, ok := memberEvent(m.Member, true); ok {
			handler(ev)
		}
	})
}

func memberEvent(m *discordgo.Member, removed bool) (discordpkg.MemberEvent, bool) {
	if m == nil || m.User == nil || m.User.ID == "" {
		return discordpkg.MemberEvent{}, false
	}
	ev := discordpkg.MemberEvent{
		GuildID:  m.GuildID,
		UserID:   m.User.ID,
		Username: m.User.Username,
		IsBot:    m.User.Bot,
		Removed:  removed,
	}
	if !removed {
		ev.DisplayName = memberDisplayName(m)
	}
	if !m.JoinedAt.IsZero() {
		joinedAt := m.JoinedAt.UTC()
		ev.JoinedAt = &joinedAt
	}
	return ev, true
}

func (c *Client) RegisterChannelHandler(handler func(discordpkg.ChannelEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ch *discordgo.ChannelCreate) {
		if ch == nil {
			return
		}
		if ev, ok := channelEvent(ch.Channel); ok {
			handler(ev)
		}
	})
	c.session.AddHandler(func(s *discordgo.Session, ch *discordgo.ChannelUpdate) {
		if ch == nil {
			return
		}
		if ev, ok := channelEvent(ch.Channel); ok {
			handler(ev)
		}
	})
}

// channelEvent only forwards channels that can host a voice session.
func channelEvent(ch *discordgo.Channel) (discordpkg.ChannelEvent, bool) {
	if ch == nil || ch.ID == "" {
		return discordpkg.ChannelEvent{}, false
	}
	if ch.Type != discordgo.ChannelTypeGuildVoice && ch.Type != discordgo.ChannelTypeGuildStageVoice {
		return discordpkg.ChannelEvent{}, false
	}
	return discordpkg.ChannelEvent{
		GuildID:   ch.GuildID,
		ChannelID: ch.ID,
		Name:      ch.Name,
		URL:       discordpkg.ChannelURL(ch.GuildID, ch.ID),
	}, true
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

// resolveUser returns display name, username and bot flag, preferring the member
// attached to the event, then the state cache, then the REST API.
func (c *Client) resolveUser(guildID, userID string, attached *discordgo.Member) (string, string, bool) {
	member := attached
	if member == nil || member.User == nil {
		member = c.resolveGuildMember(guildID, userID)
	}
	if member != nil && member.User != nil {
		return memberDisplayName(member), member.User.Username, member.User.Bot
	}
	if c.session == nil {
		return "", "", false
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID == userID {
		return c.session.State.User.GlobalName, c.session.State.User.Username, true
	}
	u, err := c.session.User(userID)
	if err != nil || u == nil {
		if err != nil && !isRESTNotFound(err) {
			slog.Warn("failed to resolve discord user", "user_id", userID, "error", err)
		}
		return "", "", false
	}
	return preferredDiscordName(u.GlobalName, u.Username, ""), u.Username, u.Bot
}

func (c *Client) resolveGuildMember(guildID, userID string) *discordgo.Member {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil {
			return member
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil
	}
	return member
}

func (c *Client) channelName(channelID string) string {
	if channelID == "" {
		return ""
	}
	if ch := c.resolveChannel(channelID); ch != nil {
		return ch.Name
	}
	slog.Warn("discord channel name could not be resolved", "channel_id", channelID)
	return ""
}

func (c *Client) resolveChannel(channelID string) *discordgo.Channel {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil && channel.Name != "" {
			return channel
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil || channel == nil {
		return nil
	}
	if channel.Name == "" {
		return nil
	}
	return channel
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	return preferredDiscordName(m.User.GlobalName, m.User.Username, "")
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

func (c *Client) Run() error {
	select {}
}
