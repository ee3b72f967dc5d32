package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/eventsync/internal/clock"
	"github.com/foxseedlab/eventsync/internal/repository"
)

type StartInput struct {
	PlatformID        string
	Name              string
	StartAt           time.Time
	UserCount         int
	ChannelPlatformID string
	CreatorPlatformID string
	Description       string
	Image             string
	// Used only when the channel row has to be auto-created.
	ChannelName string
	ChannelURL  string
}

type StartResult struct {
	Session *repository.Session
	// Created is false when the session already existed (replayed or concurrent start).
	Created bool
}

type EndInput struct {
	PlatformID string
	EndAt      time.Time
	UserCount  int
}

type EndResult struct {
	Session          *repository.Session
	AlreadyFinalized bool
}

// FinalizeObserver is told about sessions that were finalized for the first time.
type FinalizeObserver interface {
	SessionFinalized(ctx context.Context, s *repository.Session)
}

// Lifecycle owns the Scheduled -> Active -> Completed/Canceled transitions of a session row.
type Lifecycle struct {
	vivifier
	clock    clock.Clock
	observer FinalizeObserver
}

func newLifecycle(v vivifier, clk clock.Clock) *Lifecycle {
	v.logger = v.logger.With("subsystem", "lifecycle")
	return &Lifecycle{vivifier: v, clock: clk}
}

// RegisterStart creates the session on first sight of its platform id and returns the
// existing row on every later call.
func (l *Lifecycle) RegisterStart(ctx context.Context, in StartInput) (StartResult, error) {
	if in.PlatformID == "" {
		return StartResult{}, invalidState("session platform id is empty")
	}
	existing, err := l.repo.FindSessionByPlatformID(ctx, in.PlatformID)
	if err != nil {
		return StartResult{}, storeFailure("find session", err)
	}
	if existing != nil {
		l.logger.Debug("session start replayed", "entity", "session", "platform_id", in.PlatformID, "session_id", existing.ID, "status", existing.Status)
		return StartResult{Session: existing}, nil
	}
	if in.CreatorPlatformID == "" {
		return StartResult{}, invalidState("session %q has no creator", in.PlatformID)
	}

	channel, err := l.ensureChannel(ctx, in.ChannelPlatformID, &channelHints{Name: in.ChannelName, URL: in.ChannelURL})
	if err != nil {
		return StartResult{}, fmt.Errorf("session %q: %w", in.PlatformID, err)
	}
	creator, err := l.ensureUser(ctx, in.CreatorPlatformID, nil)
	if err != nil {
		return StartResult{}, fmt.Errorf("session %q: %w", in.PlatformID, err)
	}

	startAt := in.StartAt
	if startAt.IsZero() {
		startAt = l.clock.Now()
	}
	created, err := l.repo.CreateSession(ctx, repository.CreateSessionInput{
		PlatformID:  in.PlatformID,
		Name:        in.Name,
		Status:      repository.SessionStatusActive,
		StartAt:     startAt,
		UserCount:   in.UserCount,
		ChannelID:   channel.ID,
		CreatorID:   creator.ID,
		Description: in.Description,
		Image:       in.Image,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		winner, ferr := l.repo.FindSessionByPlatformID(ctx, in.PlatformID)
		if ferr != nil {
			return StartResult{}, storeFailure("re-fetch session", ferr)
		}
		if winner == nil {
			return StartResult{}, storeFailure("re-fetch session", fmt.Errorf("session %q vanished after duplicate create", in.PlatformID))
		}
		l.logger.Info("session started concurrently elsewhere; using existing row", "entity", "session", "platform_id", in.PlatformID, "session_id", winner.ID)
		return StartResult{Session: winner}, nil
	}
	if err != nil {
		return StartResult{}, storeFailure("create session", err)
	}
	l.logger.Info("session started", "entity", "session", "platform_id", in.PlatformID, "session_id", created.ID, "channel_id", channel.ID, "start_at", startAt)
	return StartResult{Session: created, Created: true}, nil
}

// FinalizeEnd marks the session Completed. The end time is written once and never precedes
// the recorded start; later calls only refresh the participant count.
func (l *Lifecycle) FinalizeEnd(ctx context.Context, in EndInput) (EndResult, error) {
	if in.PlatformID == "" {
		return EndResult{}, invalidState("session platform id is empty")
	}
	if in.EndAt.IsZero() {
		return EndResult{}, invalidState("session %q: end time is missing", in.PlatformID)
	}
	s, err := l.repo.FindSessionByPlatformID(ctx, in.PlatformID)
	if err != nil {
		return EndResult{}, storeFailure("find session", err)
	}
	if s == nil {
		return EndResult{}, fmt.Errorf("%w: %q", ErrSessionNotFound, in.PlatformID)
	}
	if s.Status == repository.SessionStatusCanceled {
		return EndResult{}, invalidState("session %q is canceled", in.PlatformID)
	}

	alreadyFinalized := s.EndAt != nil
	endAt := in.EndAt
	if !alreadyFinalized && endAt.Before(s.StartAt) {
		l.logger.Warn("session end precedes recorded start; clamping to start", "entity", "session", "platform_id", in.PlatformID,
			"end_at", in.EndAt, "start_at", s.StartAt)
		endAt = s.StartAt
	}
	if alreadyFinalized && s.Status == repository.SessionStatusCompleted && s.UserCount == in.UserCount {
		l.logger.Debug("session end replayed", "entity", "session", "platform_id", in.PlatformID, "session_id", s.ID)
		return EndResult{Session: s, AlreadyFinalized: true}, nil
	}

	status := repository.SessionStatusCompleted
	userCount := in.UserCount
	update := repository.UpdateSessionInput{Status: &status, UserCount: &userCount}
	if !alreadyFinalized {
		update.EndAt = &endAt
	}
	updated, err := l.repo.UpdateSession(ctx, s.ID, update)
	if err != nil {
		return EndResult{}, storeFailure("update session", err)
	}
	if updated == nil {
		return EndResult{}, fmt.Errorf("%w: %q disappeared during update", ErrSessionNotFound, in.PlatformID)
	}

	if alreadyFinalized {
		l.logger.Info("session end replayed; participant count refreshed", "entity", "session", "platform_id", in.PlatformID, "session_id", s.ID, "user_count", userCount)
		return EndResult{Session: updated, AlreadyFinalized: true}, nil
	}
	l.logger.Info("session completed", "entity", "session", "platform_id", in.PlatformID, "session_id", s.ID, "end_at", endAt, "user_count", userCount)
	if l.observer != nil {
		l.observer.SessionFinalized(ctx, updated)
	}
	return EndResult{Session: updated}, nil
}

// Observe logs a status change the store does not model.
func (l *Lifecycle) Observe(e SessionStatusEvent) {
	l.logger.Info("session status change observed", "entity", "session", "platform_id", e.PlatformID, "raw_status", e.RawStatus, "name", e.Name)
}
