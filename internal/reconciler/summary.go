package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/foxseedlab/eventsync/internal/tally"
	"github.com/foxseedlab/eventsync/internal/telemetry"
	"github.com/foxseedlab/eventsync/internal/webhook"
)

const webhookTimeout = 10 * time.Second

// summaryNotifier posts a participation summary for every session finalized for the first time.
type summaryNotifier struct {
	repo    repository.Repository
	sender  webhook.Sender
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func (n *summaryNotifier) SessionFinalized(ctx context.Context, s *repository.Session) {
	if n.sender == nil || s == nil || s.EndAt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()

	payload, err := n.buildPayload(ctx, s)
	if err != nil {
		n.metrics.WebhookFailures.Inc()
		n.logger.Error("failed to build session summary", "entity", "session", "error", err, "platform_id", s.PlatformID)
		return
	}
	if err := n.sender.SendSessionSummary(ctx, payload); err != nil {
		n.metrics.WebhookFailures.Inc()
		n.logger.Error("failed to send session summary webhook", "entity", "session", "error", err, "platform_id", s.PlatformID)
		return
	}
	n.logger.Info("session summary sent", "entity", "session", "platform_id", s.PlatformID, "participants", len(payload.Participants))
}

func (n *summaryNotifier) buildPayload(ctx context.Context, s *repository.Session) (webhook.SessionSummaryPayload, error) {
	payload := webhook.SessionSummaryPayload{
		SessionID:       s.PlatformID,
		SessionName:     s.Name,
		StartedAt:       s.StartAt,
		EndedAt:         *s.EndAt,
		DurationSeconds: int64(s.EndAt.Sub(s.StartAt).Seconds()),
		UserCount:       s.UserCount,
		Participants:    []webhook.ParticipantSummary{},
	}

	channels, err := n.repo.ListChannels(ctx, repository.ChannelFilter{IDs: []int64{s.ChannelID}})
	if err != nil {
		return payload, err
	}
	if len(channels) > 0 {
		payload.ChannelID = channels[0].PlatformID
		payload.ChannelName = channels[0].Name
	}

	records, err := n.repo.ListParticipations(ctx, repository.ParticipationFilter{SessionID: s.ID})
	if err != nil {
		return payload, err
	}
	presence := tally.Summarize(records, s.StartAt, *s.EndAt)
	if len(presence) == 0 {
		return payload, nil
	}

	ids := make([]int64, 0, len(presence))
	for _, p := range presence {
		ids = append(ids, p.UserID)
	}
	users, err := n.repo.ListUsers(ctx, repository.UserFilter{IDs: ids})
	if err != nil {
		return payload, err
	}
	byID := make(map[int64]repository.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, p := range presence {
		u := byID[p.UserID]
		payload.Participants = append(payload.Participants, webhook.ParticipantSummary{
			UserID:          u.PlatformID,
			DisplayName:     preferredName(u),
			Joins:           p.Joins,
			PresenceSeconds: int64(p.Duration.Seconds()),
		})
	}
	return payload, nil
}

func preferredName(u repository.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.PlatformID
}
