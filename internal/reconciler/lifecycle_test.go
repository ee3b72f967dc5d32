package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInput(platformID string) StartInput {
	return StartInput{
		PlatformID:        platformID,
		Name:              "weekly sync",
		StartAt:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UserCount:         1,
		ChannelPlatformID: "ch1",
		CreatorPlatformID: "u1",
	}
}

func TestRegisterStart_CreatesSessionWithPlaceholders(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()

	res, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, repository.SessionStatusActive, res.Session.Status)
	assert.Nil(t, res.Session.EndAt)

	creator := env.store.userByPlatformID("u1")
	require.NotNil(t, creator)
	assert.True(t, creator.IsPlaceholder())
	assert.Equal(t, creator.ID, res.Session.CreatorID)

	require.Len(t, env.store.channels, 1)
	assert.True(t, env.store.channels[0].IsPlaceholder())
	assert.Equal(t, env.store.channels[0].ID, res.Session.ChannelID)
}

func TestRegisterStart_IsIdempotent(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()

	first, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)
	writes := env.store.writeCount()

	replay := startInput("evt1")
	replay.Name = "renamed"
	second, err := env.rec.Lifecycle().RegisterStart(ctx, replay)

	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, "weekly sync", second.Session.Name)
	assert.Len(t, env.store.sessions, 1)
	assert.Equal(t, writes, env.store.writeCount(), "replayed start must not write")
}

func TestRegisterStart_DuplicateRaceReturnsWinner(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	var winnerID int64
	env.store.beforeCreateSession = func(in repository.CreateSessionInput) {
		env.store.beforeCreateSession = nil
		winner := env.store.seedSession(repository.Session{
			PlatformID: in.PlatformID,
			Status:     repository.SessionStatusActive,
			ChannelID:  in.ChannelID,
			CreatorID:  in.CreatorID,
			StartAt:    in.StartAt,
		})
		winnerID = winner.ID
	}

	res, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))

	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, winnerID, res.Session.ID)
	assert.Len(t, env.store.sessions, 1)
}

func TestRegisterStart_StoreFailure(t *testing.T) {
	env := newTestEnv(nil, Options{})
	env.store.failOn["CreateSession"] = errors.New("connection reset")

	_, err := env.rec.Lifecycle().RegisterStart(context.Background(), startInput("evt1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestRegisterStart_RequiresCreatorAndChannel(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()

	noCreator := startInput("evt1")
	noCreator.CreatorPlatformID = ""
	_, err := env.rec.Lifecycle().RegisterStart(ctx, noCreator)
	assert.ErrorIs(t, err, ErrInvalidState)

	noChannel := startInput("evt2")
	noChannel.ChannelPlatformID = ""
	_, err = env.rec.Lifecycle().RegisterStart(ctx, noChannel)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Empty(t, env.store.sessions)
}

func TestRegisterStart_DefaultsStartTimeToNow(t *testing.T) {
	env := newTestEnv(nil, Options{})
	in := startInput("evt1")
	in.StartAt = time.Time{}

	res, err := env.rec.Lifecycle().RegisterStart(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, testNow, res.Session.StartAt)
}

func TestFinalizeEnd_NotFound(t *testing.T) {
	env := newTestEnv(nil, Options{})

	_, err := env.rec.Lifecycle().FinalizeEnd(context.Background(), EndInput{
		PlatformID: "missing",
		EndAt:      testNow,
	})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFinalizeEnd_IsIdempotent(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	_, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	first, err := env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1", EndAt: end, UserCount: 2})
	require.NoError(t, err)
	assert.False(t, first.AlreadyFinalized)
	writes := env.store.writeCount()

	second, err := env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1", EndAt: end, UserCount: 2})
	require.NoError(t, err)
	assert.True(t, second.AlreadyFinalized)
	assert.Equal(t, writes, env.store.writeCount(), "identical replay must not write")

	stored := env.store.sessionByPlatformID("evt1")
	require.NotNil(t, stored.EndAt)
	assert.Equal(t, end, *stored.EndAt)
	assert.Equal(t, repository.SessionStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.UserCount)
}

func TestFinalizeEnd_KeepsFirstEndTimeButRefreshesCount(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	_, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	_, err = env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1", EndAt: end, UserCount: 2})
	require.NoError(t, err)
	res, err := env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1", EndAt: end.Add(time.Hour), UserCount: 5})

	require.NoError(t, err)
	assert.True(t, res.AlreadyFinalized)
	stored := env.store.sessionByPlatformID("evt1")
	assert.Equal(t, end, *stored.EndAt)
	assert.Equal(t, 5, stored.UserCount)
}

func TestFinalizeEnd_RejectsMalformedEndTime(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	_, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)

	_, err = env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1"})
	assert.ErrorIs(t, err, ErrInvalidState)

	stored := env.store.sessionByPlatformID("evt1")
	assert.Nil(t, stored.EndAt)
	assert.Equal(t, repository.SessionStatusActive, stored.Status)
}

func TestFinalizeEnd_ClampsEndBeforeStart(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	started, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)

	res, err := env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{
		PlatformID: "evt1",
		EndAt:      started.Session.StartAt.Add(-time.Hour),
		UserCount:  2,
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)

	stored := env.store.sessionByPlatformID("evt1")
	assert.Equal(t, repository.SessionStatusCompleted, stored.Status)
	require.NotNil(t, stored.EndAt)
	assert.Equal(t, started.Session.StartAt, *stored.EndAt)
}

func TestFinalizeEnd_CanceledSessionIsTerminal(t *testing.T) {
	env := newTestEnv(nil, Options{})
	env.store.seedSession(repository.Session{
		PlatformID: "evt1",
		Status:     repository.SessionStatusCanceled,
		StartAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	_, err := env.rec.Lifecycle().FinalizeEnd(context.Background(), EndInput{PlatformID: "evt1", EndAt: testNow})

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, repository.SessionStatusCanceled, env.store.sessionByPlatformID("evt1").Status)
}

func TestFinalizeEnd_StoreFailure(t *testing.T) {
	env := newTestEnv(nil, Options{})
	ctx := context.Background()
	_, err := env.rec.Lifecycle().RegisterStart(ctx, startInput("evt1"))
	require.NoError(t, err)
	env.store.failOn["UpdateSession"] = errors.New("disk full")

	_, err = env.rec.Lifecycle().FinalizeEnd(ctx, EndInput{PlatformID: "evt1", EndAt: testNow, UserCount: 1})

	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestClassify(t *testing.T) {
	end := timePtr(testNow)
	tests := []struct {
		name  string
		event SessionStatusEvent
		want  Transition
	}{
		{name: "active without end starts", event: SessionStatusEvent{RawStatus: RawStatusActive}, want: TransitionStart},
		{name: "completed ends", event: SessionStatusEvent{RawStatus: RawStatusCompleted}, want: TransitionEnd},
		{name: "active with end ends", event: SessionStatusEvent{RawStatus: RawStatusActive, EndAt: end}, want: TransitionEnd},
		{name: "scheduled with end ends", event: SessionStatusEvent{RawStatus: RawStatusScheduled, EndAt: end}, want: TransitionEnd},
		{name: "scheduled is observed", event: SessionStatusEvent{RawStatus: RawStatusScheduled}, want: TransitionObserve},
		{name: "canceled is observed", event: SessionStatusEvent{RawStatus: RawStatusCanceled}, want: TransitionObserve},
		{name: "unknown is observed", event: SessionStatusEvent{RawStatus: "1"}, want: TransitionObserve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.event))
		})
	}
}
