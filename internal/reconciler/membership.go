package reconciler

import (
	"context"

	"github.com/foxseedlab/eventsync/internal/repository"
)

// applyMember upserts the canonical user row. Unlike participation hints, membership data
// always overwrites what is stored.
func (r *Reconciler) applyMember(ctx context.Context, e MemberEvent) (Outcome, error) {
	status := repository.UserStatusActive
	if e.Removed {
		status = repository.UserStatusInactive
	}
	u, err := r.repo.FindUserByPlatformID(ctx, e.PlatformID)
	if err != nil {
		return OutcomeFailed, storeFailure("find user", err)
	}
	if u == nil {
		created, err := r.members.ensureUser(ctx, e.PlatformID, &userHints{
			DisplayName: e.DisplayName,
			Username:    e.Username,
			IsBot:       e.IsBot,
			JoinedAt:    e.JoinedAt,
		})
		if err != nil {
			return OutcomeFailed, err
		}
		u = created
	}

	update := repository.UpdateUserInput{Status: &status, JoinedAt: e.JoinedAt}
	if !e.Removed {
		update.IsBot = &e.IsBot
		if e.DisplayName != "" {
			update.DisplayName = &e.DisplayName
		}
		if e.Username != "" {
			update.Username = &e.Username
		}
	}
	if !userNeedsUpdate(u, update) {
		return OutcomeSkipped, nil
	}
	if _, err := r.repo.UpdateUser(ctx, u.ID, update); err != nil {
		return OutcomeFailed, storeFailure("update user", err)
	}
	r.logger.Info("user membership updated", "entity", "user", "platform_id", e.PlatformID, "user_id", u.ID, "status", status)
	return OutcomeUpdated, nil
}

func userNeedsUpdate(u *repository.User, in repository.UpdateUserInput) bool {
	switch {
	case in.Status != nil && *in.Status != u.Status:
		return true
	case in.IsBot != nil && *in.IsBot != u.IsBot:
		return true
	case in.DisplayName != nil && *in.DisplayName != u.DisplayName:
		return true
	case in.Username != nil && *in.Username != u.Username:
		return true
	case in.JoinedAt != nil && (u.JoinedAt == nil || !in.JoinedAt.Equal(*u.JoinedAt)):
		return true
	}
	return false
}

func (r *Reconciler) applyChannel(ctx context.Context, e ChannelEvent) (Outcome, error) {
	c, err := r.members.ensureChannel(ctx, e.PlatformID, &channelHints{Name: e.Name, URL: e.URL})
	if err != nil {
		return OutcomeFailed, err
	}
	update := repository.UpdateChannelInput{}
	if e.Name != "" && e.Name != c.Name {
		update.Name = &e.Name
	}
	if e.URL != "" && e.URL != c.URL {
		update.URL = &e.URL
	}
	if update.Name == nil && update.URL == nil {
		return OutcomeSkipped, nil
	}
	if _, err := r.repo.UpdateChannel(ctx, c.ID, update); err != nil {
		return OutcomeFailed, storeFailure("update channel", err)
	}
	r.logger.Info("channel updated", "entity", "channel", "platform_id", e.PlatformID, "channel_id", c.ID)
	return OutcomeUpdated, nil
}
