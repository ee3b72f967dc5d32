package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/foxseedlab/eventsync/internal/telemetry"
)

type userHints struct {
	DisplayName string
	Username    string
	IsBot       bool
	JoinedAt    *time.Time
}

func (h *userHints) hasNames() bool {
	return h != nil && (h.DisplayName != "" || h.Username != "")
}

type channelHints struct {
	Name string
	URL  string
}

func (h *channelHints) hasData() bool {
	return h != nil && (h.Name != "" || h.URL != "")
}

// vivifier resolves users and channels by platform id, creating placeholder rows
// for ids seen before their own membership or channel notification.
type vivifier struct {
	repo    repository.Repository
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func (v *vivifier) ensureUser(ctx context.Context, platformID string, hints *userHints) (*repository.User, error) {
	if platformID == "" {
		return nil, invalidState("user platform id is empty")
	}
	u, err := v.repo.FindUserByPlatformID(ctx, platformID)
	if err != nil {
		return nil, storeFailure("find user", err)
	}
	if u != nil {
		return v.enrichUser(ctx, u, hints)
	}

	input := repository.CreateUserInput{PlatformID: platformID, Status: repository.UserStatusActive}
	if hints != nil {
		input.DisplayName = hints.DisplayName
		input.Username = hints.Username
		input.IsBot = hints.IsBot
		input.JoinedAt = hints.JoinedAt
	}
	created, err := v.repo.CreateUser(ctx, input)
	if errors.Is(err, repository.ErrDuplicate) {
		v.logger.Debug("user created concurrently; re-fetching", "entity", "user", "platform_id", platformID)
		winner, ferr := v.repo.FindUserByPlatformID(ctx, platformID)
		if ferr != nil {
			return nil, storeFailure("re-fetch user", ferr)
		}
		if winner == nil {
			return nil, storeFailure("re-fetch user", fmt.Errorf("user %q vanished after duplicate create", platformID))
		}
		return v.enrichUser(ctx, winner, hints)
	}
	if err != nil {
		return nil, storeFailure("create user", err)
	}
	v.metrics.IncAutoCreated("user")
	v.logger.Info("auto-created user", "entity", "user", "platform_id", platformID, "user_id", created.ID, "placeholder", created.IsPlaceholder())
	return created, nil
}

// enrichUser fills in names on a placeholder row. Rows that already carry names are left alone.
func (v *vivifier) enrichUser(ctx context.Context, u *repository.User, hints *userHints) (*repository.User, error) {
	if !u.IsPlaceholder() || !hints.hasNames() {
		return u, nil
	}
	update := repository.UpdateUserInput{
		DisplayName: &hints.DisplayName,
		Username:    &hints.Username,
	}
	if hints.IsBot {
		update.IsBot = &hints.IsBot
	}
	updated, err := v.repo.UpdateUser(ctx, u.ID, update)
	if err != nil {
		return nil, storeFailure("enrich user", err)
	}
	if updated == nil {
		return u, nil
	}
	v.logger.Info("enriched placeholder user", "entity", "user", "platform_id", u.PlatformID, "user_id", u.ID)
	return updated, nil
}

func (v *vivifier) ensureChannel(ctx context.Context, platformID string, hints *channelHints) (*repository.Channel, error) {
	if platformID == "" {
		return nil, invalidState("channel platform id is empty")
	}
	c, err := v.repo.FindChannelByPlatformID(ctx, platformID)
	if err != nil {
		return nil, storeFailure("find channel", err)
	}
	if c != nil {
		return v.enrichChannel(ctx, c, hints)
	}

	input := repository.CreateChannelInput{PlatformID: platformID}
	if hints != nil {
		input.Name = hints.Name
		input.URL = hints.URL
	}
	created, err := v.repo.CreateChannel(ctx, input)
	if errors.Is(err, repository.ErrDuplicate) {
		v.logger.Debug("channel created concurrently; re-fetching", "entity", "channel", "platform_id", platformID)
		winner, ferr := v.repo.FindChannelByPlatformID(ctx, platformID)
		if ferr != nil {
			return nil, storeFailure("re-fetch channel", ferr)
		}
		if winner == nil {
			return nil, storeFailure("re-fetch channel", fmt.Errorf("channel %q vanished after duplicate create", platformID))
		}
		return v.enrichChannel(ctx, winner, hints)
	}
	if err != nil {
		return nil, storeFailure("create channel", err)
	}
	v.metrics.IncAutoCreated("channel")
	v.logger.Info("auto-created channel", "entity", "channel", "platform_id", platformID, "channel_id", created.ID, "placeholder", created.IsPlaceholder())
	return created, nil
}

func (v *vivifier) enrichChannel(ctx context.Context, c *repository.Channel, hints *channelHints) (*repository.Channel, error) {
	if !c.IsPlaceholder() || !hints.hasData() {
		return c, nil
	}
	updated, err := v.repo.UpdateChannel(ctx, c.ID, repository.UpdateChannelInput{Name: &hints.Name, URL: &hints.URL})
	if err != nil {
		return nil, storeFailure("enrich channel", err)
	}
	if updated == nil {
		return c, nil
	}
	v.logger.Info("enriched placeholder channel", "entity", "channel", "platform_id", c.PlatformID, "channel_id", c.ID)
	return updated, nil
}
