package reconciler

import (
	"context"
	"time"

	"github.com/foxseedlab/eventsync/internal/discord"
	"github.com/foxseedlab/eventsync/internal/repository"
)

func (r *Reconciler) acceptsGuild(guildID string) bool {
	if r.opts.GuildID == "" || guildID == r.opts.GuildID {
		return true
	}
	r.logger.Debug("ignoring event for different guild", "event_guild_id", guildID, "configured_guild_id", r.opts.GuildID)
	return false
}

// SessionStatusFromScheduledEvent applies the canonical status mapping. Only a Completed
// event carries an end time: the planned end of a live or canceled event is not an actual end.
func SessionStatusFromScheduledEvent(ev discord.ScheduledEvent, now time.Time) SessionStatusEvent {
	status := ev.Status
	if ev.Deleted {
		status = discord.ScheduledEventStatusCanceled
	}
	out := SessionStatusEvent{
		PlatformID:        ev.ID,
		Name:              ev.Name,
		RawStatus:         status.RawStatus(),
		StartAt:           ev.ScheduledStart,
		UserCount:         ev.UserCount,
		ChannelPlatformID: ev.ChannelID,
		CreatorPlatformID: ev.CreatorID,
		Description:       ev.Description,
		Image:             ev.Image,
	}
	// An event can go live before its scheduled start; the actual start is when Active arrived.
	if status == discord.ScheduledEventStatusActive && !ev.ReceivedAt.IsZero() {
		out.StartAt = ev.ReceivedAt
	}
	if status == discord.ScheduledEventStatusCompleted {
		end := now
		if !ev.ReceivedAt.IsZero() {
			end = ev.ReceivedAt
		}
		if ev.ScheduledEnd != nil && !ev.ScheduledEnd.After(end) {
			end = *ev.ScheduledEnd
		}
		out.EndAt = &end
	}
	return out
}

func (r *Reconciler) HandleScheduledEvent(ev discord.ScheduledEvent) {
	if !r.acceptsGuild(ev.GuildID) {
		return
	}
	r.Dispatch(context.Background(), SessionStatusFromScheduledEvent(ev, r.clock.Now()))
}

// ParticipationFromVoiceState splits a voice state change into a Left event for the
// previous channel and a Joined event for the new one.
func ParticipationFromVoiceState(ev discord.VoiceStateEvent, implicit bool) []ParticipationEvent {
	if ev.BeforeChannelID == ev.AfterChannelID {
		return nil
	}
	var out []ParticipationEvent
	if ev.BeforeChannelID != "" {
		out = append(out, ParticipationEvent{
			Kind:              repository.ParticipationLeft,
			UserPlatformID:    ev.UserID,
			ChannelPlatformID: ev.BeforeChannelID,
			OccurredAt:        ev.OccurredAt,
			Hints: &ParticipationHints{
				DisplayName: ev.UserDisplayName,
				Username:    ev.Username,
				IsBot:       ev.UserIsBot,
				ChannelName: ev.BeforeChannelName,
				ChannelURL:  ev.BeforeChannelURL,
			},
		})
	}
	if ev.AfterChannelID != "" {
		out = append(out, ParticipationEvent{
			Kind:              repository.ParticipationJoined,
			UserPlatformID:    ev.UserID,
			ChannelPlatformID: ev.AfterChannelID,
			OccurredAt:        ev.OccurredAt,
			Hints: &ParticipationHints{
				DisplayName:     ev.UserDisplayName,
				Username:        ev.Username,
				IsBot:           ev.UserIsBot,
				ChannelName:     ev.AfterChannelName,
				ChannelURL:      ev.AfterChannelURL,
				ImplicitSession: implicit,
			},
		})
	}
	return out
}

func (r *Reconciler) HandleVoiceStateUpdate(ev discord.VoiceStateEvent) {
	if !r.acceptsGuild(ev.GuildID) {
		return
	}
	ctx := context.Background()
	for _, p := range ParticipationFromVoiceState(ev, r.opts.ImplicitVoiceSessions) {
		r.Dispatch(ctx, p)
	}
}

func (r *Reconciler) HandleMemberUpdate(ev discord.MemberEvent) {
	if !r.acceptsGuild(ev.GuildID) {
		return
	}
	r.Dispatch(context.Background(), MemberEvent{
		PlatformID:  ev.UserID,
		DisplayName: ev.DisplayName,
		Username:    ev.Username,
		IsBot:       ev.IsBot,
		JoinedAt:    ev.JoinedAt,
		Removed:     ev.Removed,
	})
}

func (r *Reconciler) HandleChannelUpdate(ev discord.ChannelEvent) {
	if !r.acceptsGuild(ev.GuildID) {
		return
	}
	url := ev.URL
	if url == "" {
		url = discord.ChannelURL(ev.GuildID, ev.ChannelID)
	}
	r.Dispatch(context.Background(), ChannelEvent{PlatformID: ev.ChannelID, Name: ev.Name, URL: url})
}
