package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/eventsync/internal/clock"
	"github.com/foxseedlab/eventsync/internal/idgen"
	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/foxseedlab/eventsync/internal/tally"
)

// ImplicitSessionPrefix marks sessions synthesized from voice activity without a scheduled event.
const ImplicitSessionPrefix = "voice-"

var openStatuses = []repository.SessionStatus{repository.SessionStatusActive, repository.SessionStatusScheduled}

type RecordManyResult struct {
	Created int
	Failed  int
	Skipped int
}

// Ledger appends join/leave records against the session currently open in a channel.
type Ledger struct {
	vivifier
	lifecycle *Lifecycle
	clock     clock.Clock
	ids       idgen.Generator
}

func newLedger(v vivifier, lc *Lifecycle, clk clock.Clock, ids idgen.Generator) *Ledger {
	v.logger = v.logger.With("subsystem", "ledger")
	return &Ledger{vivifier: v, lifecycle: lc, clock: clk, ids: ids}
}

type resolvedParticipation struct {
	input   repository.CreateParticipationInput
	session *repository.Session
	// startedImplicit is set when resolving this event created the session.
	startedImplicit bool
}

// Record stores one participation event. Automated accounts yield ErrBotParticipant and no rows.
func (l *Ledger) Record(ctx context.Context, e ParticipationEvent) (*repository.Participation, error) {
	resolved, err := l.resolve(ctx, e)
	if err != nil {
		return nil, err
	}
	p, err := l.repo.CreateParticipation(ctx, resolved.input)
	if err != nil {
		if resolved.startedImplicit {
			l.closeIfIdle(ctx, resolved.session, resolved.input.OccurredAt)
		}
		return nil, storeFailure("create participation", err)
	}
	l.logger.Info("participation recorded", "entity", "participation", "kind", p.Kind, "user_platform_id", e.UserPlatformID,
		"channel_platform_id", e.ChannelPlatformID, "session_id", p.SessionID, "participation_id", p.ID)

	if p.Kind == repository.ParticipationLeft {
		l.closeIfIdle(ctx, resolved.session, p.OccurredAt)
	}
	return p, nil
}

// RecordMany applies Record's resolution rules per item and persists the survivors in one batch.
// Bot items are dropped before persistence and counted as skipped.
func (l *Ledger) RecordMany(ctx context.Context, events []ParticipationEvent) RecordManyResult {
	var res RecordManyResult
	inputs := make([]repository.CreateParticipationInput, 0, len(events))
	// Sessions to re-check once the batch is stored, with the time each should close at.
	idleCandidates := make(map[int64]*repository.Session)
	closeAt := make(map[int64]time.Time)
	for _, e := range events {
		resolved, err := l.resolve(ctx, e)
		if errors.Is(err, ErrBotParticipant) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failed++
			l.logger.Warn("participation dropped from batch", "entity", "participation", "error", err,
				"user_platform_id", e.UserPlatformID, "channel_platform_id", e.ChannelPlatformID)
			continue
		}
		inputs = append(inputs, resolved.input)
		id := resolved.session.ID
		if resolved.startedImplicit {
			idleCandidates[id] = resolved.session
		}
		if resolved.input.Kind == repository.ParticipationLeft {
			idleCandidates[id] = resolved.session
			if at := resolved.input.OccurredAt; at.After(closeAt[id]) {
				closeAt[id] = at
			}
		}
	}

	created, err := l.repo.CreateParticipations(ctx, inputs)
	res.Created = created
	res.Failed += len(inputs) - created
	if err != nil {
		l.logger.Error("participation batch partially failed", "entity", "participation", "error", err, "created", created, "submitted", len(inputs))
	}
	l.logger.Info("participation batch recorded", "entity", "participation", "created", res.Created, "failed", res.Failed, "skipped", res.Skipped)

	for id, s := range idleCandidates {
		l.closeIfIdle(ctx, s, closeAt[id])
	}
	return res
}

func (l *Ledger) resolve(ctx context.Context, e ParticipationEvent) (resolvedParticipation, error) {
	if e.Kind != repository.ParticipationJoined && e.Kind != repository.ParticipationLeft {
		return resolvedParticipation{}, invalidState("unknown participation kind %q", e.Kind)
	}
	if e.UserPlatformID == "" || e.ChannelPlatformID == "" {
		return resolvedParticipation{}, invalidState("participation requires user and channel platform ids")
	}

	existing, err := l.repo.FindUserByPlatformID(ctx, e.UserPlatformID)
	if err != nil {
		return resolvedParticipation{}, storeFailure("find user", err)
	}
	if (existing != nil && existing.IsBot) || (e.Hints != nil && e.Hints.IsBot) {
		return resolvedParticipation{}, fmt.Errorf("%w: %q", ErrBotParticipant, e.UserPlatformID)
	}

	var hints *userHints
	if e.Hints != nil {
		hints = &userHints{DisplayName: e.Hints.DisplayName, Username: e.Hints.Username}
	}
	var user *repository.User
	if existing != nil {
		user, err = l.enrichUser(ctx, existing, hints)
	} else {
		user, err = l.ensureUser(ctx, e.UserPlatformID, hints)
	}
	if err != nil {
		return resolvedParticipation{}, err
	}

	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = l.clock.Now()
	}
	session, started, err := l.currentSession(ctx, e, occurredAt)
	if err != nil {
		return resolvedParticipation{}, err
	}
	return resolvedParticipation{
		input: repository.CreateParticipationInput{
			UserID:     user.ID,
			SessionID:  session.ID,
			Kind:       e.Kind,
			OccurredAt: occurredAt,
		},
		session:         session,
		startedImplicit: started,
	}, nil
}

// currentSession returns the open session of the event's channel, starting an implicit one
// when the event allows it. started reports whether this call created the session.
func (l *Ledger) currentSession(ctx context.Context, e ParticipationEvent, at time.Time) (_ *repository.Session, started bool, _ error) {
	channel, err := l.repo.FindChannelByPlatformID(ctx, e.ChannelPlatformID)
	if err != nil {
		return nil, false, storeFailure("find channel", err)
	}
	var candidates []repository.Session
	if channel != nil {
		candidates, err = l.repo.ListSessions(ctx, repository.SessionFilter{ChannelID: channel.ID, Statuses: openStatuses})
		if err != nil {
			return nil, false, storeFailure("list sessions", err)
		}
	}

	switch len(candidates) {
	case 0:
		if !canStartImplicitly(e) {
			return nil, false, fmt.Errorf("%w: no open session in channel %q", ErrSessionNotFound, e.ChannelPlatformID)
		}
		return l.startImplicit(ctx, e, at)
	case 1:
		return &candidates[0], false, nil
	default:
		chosen := mostRecent(candidates)
		l.metrics.AmbiguousMatches.Inc()
		l.logger.Warn("ambiguous session match; using most recent", "entity", "session", "channel_platform_id", e.ChannelPlatformID,
			"candidates", len(candidates), "session_id", chosen.ID, "platform_id", chosen.PlatformID)
		return chosen, false, nil
	}
}

func canStartImplicitly(e ParticipationEvent) bool {
	return e.Kind == repository.ParticipationJoined && e.Hints != nil && e.Hints.ImplicitSession
}

// mostRecent picks the latest created session; equal timestamps fall back to the higher id.
func mostRecent(sessions []repository.Session) *repository.Session {
	best := &sessions[0]
	for i := 1; i < len(sessions); i++ {
		s := &sessions[i]
		if s.CreatedAt.After(best.CreatedAt) || (s.CreatedAt.Equal(best.CreatedAt) && s.ID > best.ID) {
			best = s
		}
	}
	return best
}

func (l *Ledger) startImplicit(ctx context.Context, e ParticipationEvent, at time.Time) (*repository.Session, bool, error) {
	platformID := ImplicitSessionPrefix + e.ChannelPlatformID + "-" + l.ids.NewID()
	name := e.Hints.ChannelName
	if name == "" {
		name = "voice activity"
	}
	res, err := l.lifecycle.RegisterStart(ctx, StartInput{
		PlatformID:        platformID,
		Name:              name,
		StartAt:           at,
		UserCount:         1,
		ChannelPlatformID: e.ChannelPlatformID,
		CreatorPlatformID: e.UserPlatformID,
		ChannelName:       e.Hints.ChannelName,
		ChannelURL:        e.Hints.ChannelURL,
	})
	if err != nil {
		return nil, false, err
	}
	if res.Created {
		l.metrics.IncAutoCreated("session")
		l.logger.Info("implicit session started from voice activity", "entity", "session", "platform_id", platformID,
			"session_id", res.Session.ID, "channel_platform_id", e.ChannelPlatformID)
	}
	return res.Session, res.Created, nil
}

// closeIfIdle finalizes an implicit session once nobody is present in it, including one whose
// first join was never stored. Failures are logged and never fail the caller.
func (l *Ledger) closeIfIdle(ctx context.Context, s *repository.Session, at time.Time) {
	if s == nil || !strings.HasPrefix(s.PlatformID, ImplicitSessionPrefix) {
		return
	}
	records, err := l.repo.ListParticipations(ctx, repository.ParticipationFilter{SessionID: s.ID})
	if err != nil {
		l.logger.Error("failed to list participations for idle check", "entity", "session", "error", err, "session_id", s.ID)
		return
	}
	if present := tally.Present(records); len(present) > 0 {
		return
	}
	if at.Before(s.StartAt) {
		at = s.StartAt
	}
	if _, err := l.lifecycle.FinalizeEnd(ctx, EndInput{
		PlatformID: s.PlatformID,
		EndAt:      at,
		UserCount:  tally.DistinctUsers(records),
	}); err != nil {
		l.logger.Error("failed to finalize idle implicit session", "entity", "session", "error", err, "platform_id", s.PlatformID)
		return
	}
	l.logger.Info("implicit session closed after last participant left", "entity", "session", "platform_id", s.PlatformID, "session_id", s.ID)
}
