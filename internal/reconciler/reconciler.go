// Package reconciler turns the chat platform's session, participation, membership and
// channel notifications into idempotent store mutations.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/eventsync/internal/clock"
	"github.com/foxseedlab/eventsync/internal/idgen"
	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/foxseedlab/eventsync/internal/telemetry"
	"github.com/foxseedlab/eventsync/internal/webhook"
)

type Options struct {
	// GuildID restricts the Discord feed bridge to one guild. Empty accepts all guilds.
	GuildID string
	// ImplicitVoiceSessions lets voice joins start a session when none is open in the channel.
	ImplicitVoiceSessions bool
}

type Deps struct {
	Repo    repository.Repository
	Webhook webhook.Sender
	Clock   clock.Clock
	IDs     idgen.Generator
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

type Reconciler struct {
	repo      repository.Repository
	lifecycle *Lifecycle
	ledger    *Ledger
	members   vivifier
	clock     clock.Clock
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	opts      Options
}

func New(deps Deps, opts Options) *Reconciler {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = idgen.UUID{}
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	base := vivifier{repo: deps.Repo, metrics: deps.Metrics, logger: deps.Logger}
	lc := newLifecycle(base, deps.Clock)
	if deps.Webhook != nil {
		lc.observer = &summaryNotifier{
			repo:    deps.Repo,
			sender:  deps.Webhook,
			metrics: deps.Metrics,
			logger:  deps.Logger.With("subsystem", "summary"),
		}
	}
	members := base
	members.logger = deps.Logger.With("subsystem", "membership")

	return &Reconciler{
		repo:      deps.Repo,
		lifecycle: lc,
		ledger:    newLedger(base, lc, deps.Clock, deps.IDs),
		members:   members,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("subsystem", "reconciler"),
		opts:      opts,
	}
}

func (r *Reconciler) Lifecycle() *Lifecycle { return r.lifecycle }
func (r *Reconciler) Ledger() *Ledger       { return r.ledger }

// Dispatch reconciles a single event. It never returns an error or panics: failures are
// logged with the event kind and key so the event can be replayed.
func (r *Reconciler) Dispatch(ctx context.Context, e Event) (out Outcome) {
	if e == nil {
		r.logger.Warn("nil event dispatched")
		return OutcomeFailed
	}
	kind, key := e.EventKind(), e.EventKey()
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while reconciling event", "event_kind", kind, "platform_id", key, "panic", fmt.Sprint(rec))
			out = OutcomeFailed
		}
		r.metrics.ObserveDispatch(kind, string(out), time.Since(started))
	}()

	var err error
	switch ev := e.(type) {
	case SessionStatusEvent:
		out, err = r.handleSessionStatus(ctx, ev)
	case ParticipationEvent:
		out, err = r.handleParticipation(ctx, ev)
	case MemberEvent:
		out, err = r.applyMember(ctx, ev)
	case ChannelEvent:
		out, err = r.applyChannel(ctx, ev)
	default:
		err = invalidState("unsupported event type %T", e)
		out = OutcomeFailed
	}
	if err != nil {
		r.logFailure(kind, key, err)
		return OutcomeFailed
	}
	return out
}

// DispatchMany dispatches events in order; one failing event does not stop the rest.
func (r *Reconciler) DispatchMany(ctx context.Context, events []Event) []Outcome {
	outcomes := make([]Outcome, 0, len(events))
	for _, e := range events {
		outcomes = append(outcomes, r.Dispatch(ctx, e))
	}
	return outcomes
}

func (r *Reconciler) logFailure(kind, key string, err error) {
	attrs := []any{"event_kind", kind, "platform_id", key, "error", err}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		r.logger.Warn("event references an unknown session", attrs...)
	case errors.Is(err, ErrInvalidState):
		r.logger.Warn("event rejected", attrs...)
	default:
		r.logger.Error("failed to reconcile event", attrs...)
	}
}

func (r *Reconciler) handleSessionStatus(ctx context.Context, e SessionStatusEvent) (Outcome, error) {
	switch Classify(e) {
	case TransitionStart:
		res, err := r.lifecycle.RegisterStart(ctx, StartInput{
			PlatformID:        e.PlatformID,
			Name:              e.Name,
			StartAt:           e.StartAt,
			UserCount:         e.UserCount,
			ChannelPlatformID: e.ChannelPlatformID,
			CreatorPlatformID: e.CreatorPlatformID,
			Description:       e.Description,
			Image:             e.Image,
		})
		if err != nil {
			return OutcomeFailed, err
		}
		if !res.Created {
			return OutcomeStartReplayed, nil
		}
		return OutcomeStarted, nil
	case TransitionEnd:
		endAt := r.clock.Now()
		if e.EndAt != nil {
			endAt = *e.EndAt
		}
		res, err := r.lifecycle.FinalizeEnd(ctx, EndInput{
			PlatformID: e.PlatformID,
			EndAt:      endAt,
			UserCount:  e.UserCount,
		})
		if err != nil {
			return OutcomeFailed, err
		}
		if res.AlreadyFinalized {
			return OutcomeEndReplayed, nil
		}
		return OutcomeEnded, nil
	default:
		r.lifecycle.Observe(e)
		return OutcomeObserved, nil
	}
}

func (r *Reconciler) handleParticipation(ctx context.Context, e ParticipationEvent) (Outcome, error) {
	_, err := r.ledger.Record(ctx, e)
	if errors.Is(err, ErrBotParticipant) {
		r.logger.Debug("ignoring participation of automated account", "event_kind", KindParticipation, "platform_id", e.UserPlatformID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRecorded, nil
}
