package reconciler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
)

// fakeStore is an in-memory repository.Repository with the same uniqueness and
// end-time rules as the Postgres implementation.
type fakeStore struct {
	mu             sync.Mutex
	base           time.Time
	tick           int
	nextID         int64
	users          []repository.User
	channels       []repository.Channel
	sessions       []repository.Session
	participations []repository.Participation
	writes         int

	failOn  map[string]error
	panicOn string
	// beforeCreateSession runs without the lock held, before the insert is applied.
	beforeCreateSession func(in repository.CreateSessionInput)
	// batchLimit caps how many rows CreateParticipations stores before failing.
	batchLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		base:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failOn: map[string]error{},
	}
}

func (s *fakeStore) check(method string) error {
	if s.panicOn == method {
		panic("fake store panic in " + method)
	}
	return s.failOn[method]
}

func (s *fakeStore) stamp() (int64, time.Time) {
	s.nextID++
	s.tick++
	return s.nextID, s.base.Add(time.Duration(s.tick) * time.Second)
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) Ping(_ context.Context) error { return s.check("Ping") }

func (s *fakeStore) FindUserByPlatformID(_ context.Context, platformID string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("FindUserByPlatformID"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.PlatformID == platformID {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) createUserLocked(in repository.CreateUserInput) (*repository.User, error) {
	for _, u := range s.users {
		if u.PlatformID == in.PlatformID {
			return nil, fmt.Errorf("user %q: %w", in.PlatformID, repository.ErrDuplicate)
		}
	}
	id, at := s.stamp()
	status := in.Status
	if status == "" {
		status = repository.UserStatusActive
	}
	u := repository.User{
		ID: id, PlatformID: in.PlatformID, DisplayName: in.DisplayName, Username: in.Username,
		IsBot: in.IsBot, Status: status, JoinedAt: in.JoinedAt, CreatedAt: at,
	}
	s.users = append(s.users, u)
	s.writes++
	return &u, nil
}

func (s *fakeStore) CreateUser(_ context.Context, in repository.CreateUserInput) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateUser"); err != nil {
		return nil, err
	}
	return s.createUserLocked(in)
}

func (s *fakeStore) CreateUsers(_ context.Context, inputs []repository.CreateUserInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateUsers"); err != nil {
		return 0, err
	}
	n := 0
	for _, in := range inputs {
		if _, err := s.createUserLocked(in); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpdateUser(_ context.Context, id int64, in repository.UpdateUserInput) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("UpdateUser"); err != nil {
		return nil, err
	}
	for i := range s.users {
		u := &s.users[i]
		if u.ID != id {
			continue
		}
		if in.DisplayName != nil {
			u.DisplayName = *in.DisplayName
		}
		if in.Username != nil {
			u.Username = *in.Username
		}
		if in.IsBot != nil {
			u.IsBot = *in.IsBot
		}
		if in.Status != nil {
			u.Status = *in.Status
		}
		if in.JoinedAt != nil {
			joined := *in.JoinedAt
			u.JoinedAt = &joined
		}
		s.writes++
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (s *fakeStore) ListUsers(_ context.Context, f repository.UserFilter) ([]repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListUsers"); err != nil {
		return nil, err
	}
	var out []repository.User
	for _, u := range s.users {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, u.ID) {
			continue
		}
		if len(f.PlatformIDs) > 0 && !slices.Contains(f.PlatformIDs, u.PlatformID) {
			continue
		}
		if f.IsBot != nil && u.IsBot != *f.IsBot {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeStore) FindChannelByPlatformID(_ context.Context, platformID string) (*repository.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("FindChannelByPlatformID"); err != nil {
		return nil, err
	}
	for _, c := range s.channels {
		if c.PlatformID == platformID {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) createChannelLocked(in repository.CreateChannelInput) (*repository.Channel, error) {
	for _, c := range s.channels {
		if c.PlatformID == in.PlatformID {
			return nil, fmt.Errorf("channel %q: %w", in.PlatformID, repository.ErrDuplicate)
		}
	}
	id, at := s.stamp()
	c := repository.Channel{ID: id, PlatformID: in.PlatformID, Name: in.Name, URL: in.URL, CreatedAt: at}
	s.channels = append(s.channels, c)
	s.writes++
	return &c, nil
}

func (s *fakeStore) CreateChannel(_ context.Context, in repository.CreateChannelInput) (*repository.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateChannel"); err != nil {
		return nil, err
	}
	return s.createChannelLocked(in)
}

func (s *fakeStore) CreateChannels(_ context.Context, inputs []repository.CreateChannelInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateChannels"); err != nil {
		return 0, err
	}
	n := 0
	for _, in := range inputs {
		if _, err := s.createChannelLocked(in); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpdateChannel(_ context.Context, id int64, in repository.UpdateChannelInput) (*repository.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("UpdateChannel"); err != nil {
		return nil, err
	}
	for i := range s.channels {
		c := &s.channels[i]
		if c.ID != id {
			continue
		}
		if in.Name != nil {
			c.Name = *in.Name
		}
		if in.URL != nil {
			c.URL = *in.URL
		}
		s.writes++
		out := *c
		return &out, nil
	}
	return nil, nil
}

func (s *fakeStore) ListChannels(_ context.Context, f repository.ChannelFilter) ([]repository.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListChannels"); err != nil {
		return nil, err
	}
	var out []repository.Channel
	for _, c := range s.channels {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, c.ID) {
			continue
		}
		if len(f.PlatformIDs) > 0 && !slices.Contains(f.PlatformIDs, c.PlatformID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) FindSessionByPlatformID(_ context.Context, platformID string) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("FindSessionByPlatformID"); err != nil {
		return nil, err
	}
	for _, sess := range s.sessions {
		if sess.PlatformID == platformID {
			return &sess, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) createSessionLocked(in repository.CreateSessionInput) (*repository.Session, error) {
	for _, sess := range s.sessions {
		if sess.PlatformID == in.PlatformID {
			return nil, fmt.Errorf("session %q: %w", in.PlatformID, repository.ErrDuplicate)
		}
	}
	id, at := s.stamp()
	sess := repository.Session{
		ID: id, PlatformID: in.PlatformID, Name: in.Name, Status: in.Status, StartAt: in.StartAt,
		UserCount: in.UserCount, ChannelID: in.ChannelID, CreatorID: in.CreatorID,
		Description: in.Description, Image: in.Image, CreatedAt: at, UpdatedAt: at,
	}
	s.sessions = append(s.sessions, sess)
	s.writes++
	return &sess, nil
}

func (s *fakeStore) CreateSession(_ context.Context, in repository.CreateSessionInput) (*repository.Session, error) {
	if s.beforeCreateSession != nil {
		s.beforeCreateSession(in)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateSession"); err != nil {
		return nil, err
	}
	return s.createSessionLocked(in)
}

func (s *fakeStore) CreateSessions(_ context.Context, inputs []repository.CreateSessionInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateSessions"); err != nil {
		return 0, err
	}
	n := 0
	for _, in := range inputs {
		if _, err := s.createSessionLocked(in); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpdateSession(_ context.Context, id int64, in repository.UpdateSessionInput) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("UpdateSession"); err != nil {
		return nil, err
	}
	for i := range s.sessions {
		sess := &s.sessions[i]
		if sess.ID != id {
			continue
		}
		if in.Name != nil {
			sess.Name = *in.Name
		}
		if in.Status != nil {
			sess.Status = *in.Status
		}
		if in.EndAt != nil && sess.EndAt == nil {
			end := *in.EndAt
			sess.EndAt = &end
		}
		if in.UserCount != nil {
			sess.UserCount = *in.UserCount
		}
		s.writes++
		out := *sess
		return &out, nil
	}
	return nil, nil
}

func (s *fakeStore) ListSessions(_ context.Context, f repository.SessionFilter) ([]repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListSessions"); err != nil {
		return nil, err
	}
	var out []repository.Session
	for _, sess := range s.sessions {
		if f.ChannelID != 0 && sess.ChannelID != f.ChannelID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sess.Status) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *fakeStore) createParticipationLocked(in repository.CreateParticipationInput) *repository.Participation {
	id, at := s.stamp()
	p := repository.Participation{ID: id, UserID: in.UserID, SessionID: in.SessionID, Kind: in.Kind, OccurredAt: in.OccurredAt, CreatedAt: at}
	s.participations = append(s.participations, p)
	s.writes++
	return &p
}

func (s *fakeStore) CreateParticipation(_ context.Context, in repository.CreateParticipationInput) (*repository.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateParticipation"); err != nil {
		return nil, err
	}
	return s.createParticipationLocked(in), nil
}

func (s *fakeStore) CreateParticipations(_ context.Context, inputs []repository.CreateParticipationInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateParticipations"); err != nil {
		return 0, err
	}
	n := 0
	for _, in := range inputs {
		if s.batchLimit > 0 && n >= s.batchLimit {
			return n, fmt.Errorf("batch aborted after %d rows", n)
		}
		s.createParticipationLocked(in)
		n++
	}
	return n, nil
}

func (s *fakeStore) ListParticipations(_ context.Context, f repository.ParticipationFilter) ([]repository.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListParticipations"); err != nil {
		return nil, err
	}
	var out []repository.Participation
	for _, p := range s.participations {
		if f.SessionID != 0 && p.SessionID != f.SessionID {
			continue
		}
		if f.UserID != 0 && p.UserID != f.UserID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// seedSession inserts a session row as-is, keeping the caller's CreatedAt.
func (s *fakeStore) seedSession(sess repository.Session) repository.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sess.ID = s.nextID
	s.sessions = append(s.sessions, sess)
	return sess
}

func (s *fakeStore) userByPlatformID(platformID string) *repository.User {
	u, _ := s.FindUserByPlatformID(context.Background(), platformID)
	return u
}

func (s *fakeStore) sessionByPlatformID(platformID string) *repository.Session {
	sess, _ := s.FindSessionByPlatformID(context.Background(), platformID)
	return sess
}
