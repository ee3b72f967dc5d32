package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/foxseedlab/eventsync/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const (
	userColumns          = `id, platform_id, display_name, username, is_bot, status, joined_at, created_at`
	channelColumns       = `id, platform_id, name, url, created_at`
	sessionColumns       = `id, platform_id, name, status, start_at, end_at, user_count, channel_id, creator_id, description, image, created_at, updated_at`
	participationColumns = `id, user_id, session_id, kind, occurred_at, created_at`
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Shutdown is called by the injector when the process stops.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func wrapCreateErr(entity, platformID string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %q: %w", entity, platformID, repository.ErrDuplicate)
	}
	return err
}

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.PlatformID, &u.DisplayName, &u.Username, &u.IsBot, &u.Status, &u.JoinedAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanChannel(row pgx.Row) (*repository.Channel, error) {
	var c repository.Channel
	if err := row.Scan(&c.ID, &c.PlatformID, &c.Name, &c.URL, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(&s.ID, &s.PlatformID, &s.Name, &s.Status, &s.StartAt, &s.EndAt, &s.UserCount,
		&s.ChannelID, &s.CreatorID, &s.Description, &s.Image, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanParticipation(row pgx.Row) (*repository.Participation, error) {
	var p repository.Participation
	if err := row.Scan(&p.ID, &p.UserID, &p.SessionID, &p.Kind, &p.OccurredAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// noRowsAsNil maps pgx.ErrNoRows to a nil entity.
func noRowsAsNil[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var list []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// sendBatch runs the queued statements one by one on a single connection, each in its
// own implicit transaction, so a failing row does not undo the rows before or after it.
// The returned count is the number of rows actually inserted.
func (r *PostgresRepository) sendBatch(ctx context.Context, batch *pgx.Batch) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	created := 0
	var errs []error
	for _, q := range batch.QueuedQueries {
		tag, err := conn.Exec(ctx, q.SQL, q.Arguments...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created += int(tag.RowsAffected())
	}
	return created, errors.Join(errs...)
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func stringSlice[T ~string](vs []T) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, string(v))
	}
	return out
}

func (r *PostgresRepository) FindUserByPlatformID(ctx context.Context, platformID string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE platform_id = $1`, platformID)
	return noRowsAsNil(scanUser(row))
}

func (r *PostgresRepository) CreateUser(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (platform_id, display_name, username, is_bot, status, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		input.PlatformID, input.DisplayName, input.Username, input.IsBot, string(userStatusOrDefault(input.Status)), input.JoinedAt)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrapCreateErr("user", input.PlatformID, err)
	}
	return u, nil
}

func userStatusOrDefault(s repository.UserStatus) repository.UserStatus {
	if s == "" {
		return repository.UserStatusActive
	}
	return s
}

func (r *PostgresRepository) CreateUsers(ctx context.Context, inputs []repository.CreateUserInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, in := range inputs {
		batch.Queue(`INSERT INTO users (platform_id, display_name, username, is_bot, status, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (platform_id) DO NOTHING`,
			in.PlatformID, in.DisplayName, in.Username, in.IsBot, string(userStatusOrDefault(in.Status)), in.JoinedAt)
	}
	return r.sendBatch(ctx, batch)
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, id int64, input repository.UpdateUserInput) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET
			display_name = COALESCE($2, display_name),
			username = COALESCE($3, username),
			is_bot = COALESCE($4, is_bot),
			status = COALESCE($5, status),
			joined_at = COALESCE($6, joined_at)
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, input.DisplayName, input.Username, input.IsBot, stringPtr(input.Status), input.JoinedAt)
	return noRowsAsNil(scanUser(row))
}

func (r *PostgresRepository) ListUsers(ctx context.Context, filter repository.UserFilter) ([]repository.User, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(filter.PlatformIDs) > 0 {
		args = append(args, filter.PlatformIDs)
		conds = append(conds, fmt.Sprintf("platform_id = ANY($%d)", len(args)))
	}
	if filter.IsBot != nil {
		args = append(args, *filter.IsBot)
		conds = append(conds, fmt.Sprintf("is_bot = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users`+whereClause(conds)+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (r *PostgresRepository) FindChannelByPlatformID(ctx context.Context, platformID string) (*repository.Channel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE platform_id = $1`, platformID)
	return noRowsAsNil(scanChannel(row))
}

func (r *PostgresRepository) CreateChannel(ctx context.Context, input repository.CreateChannelInput) (*repository.Channel, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO channels (platform_id, name, url) VALUES ($1, $2, $3) RETURNING `+channelColumns,
		input.PlatformID, input.Name, input.URL)
	c, err := scanChannel(row)
	if err != nil {
		return nil, wrapCreateErr("channel", input.PlatformID, err)
	}
	return c, nil
}

func (r *PostgresRepository) CreateChannels(ctx context.Context, inputs []repository.CreateChannelInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, in := range inputs {
		batch.Queue(`INSERT INTO channels (platform_id, name, url) VALUES ($1, $2, $3) ON CONFLICT (platform_id) DO NOTHING`,
			in.PlatformID, in.Name, in.URL)
	}
	return r.sendBatch(ctx, batch)
}

func (r *PostgresRepository) UpdateChannel(ctx context.Context, id int64, input repository.UpdateChannelInput) (*repository.Channel, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE channels SET name = COALESCE($2, name), url = COALESCE($3, url)
		 WHERE id = $1 RETURNING `+channelColumns,
		id, input.Name, input.URL)
	return noRowsAsNil(scanChannel(row))
}

func (r *PostgresRepository) ListChannels(ctx context.Context, filter repository.ChannelFilter) ([]repository.Channel, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(filter.PlatformIDs) > 0 {
		args = append(args, filter.PlatformIDs)
		conds = append(conds, fmt.Sprintf("platform_id = ANY($%d)", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels`+whereClause(conds)+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanChannel)
}

func (r *PostgresRepository) FindSessionByPlatformID(ctx context.Context, platformID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE platform_id = $1`, platformID)
	return noRowsAsNil(scanSession(row))
}

const insertSessionSQL = `INSERT INTO sessions (platform_id, name, status, start_at, user_count, channel_id, creator_id, description, image)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func sessionArgs(in repository.CreateSessionInput) []any {
	return []any{in.PlatformID, in.Name, string(in.Status), in.StartAt, in.UserCount, in.ChannelID, in.CreatorID, in.Description, in.Image}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, insertSessionSQL+` RETURNING `+sessionColumns, sessionArgs(input)...)
	s, err := scanSession(row)
	if err != nil {
		return nil, wrapCreateErr("session", input.PlatformID, err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateSessions(ctx context.Context, inputs []repository.CreateSessionInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, in := range inputs {
		batch.Queue(insertSessionSQL+` ON CONFLICT (platform_id) DO NOTHING`, sessionArgs(in)...)
	}
	return r.sendBatch(ctx, batch)
}

// UpdateSession never clears or overwrites an end_at that is already set.
func (r *PostgresRepository) UpdateSession(ctx context.Context, id int64, input repository.UpdateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE sessions SET
			name = COALESCE($2, name),
			status = COALESCE($3, status),
			end_at = COALESCE(end_at, $4),
			user_count = COALESCE($5, user_count),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		id, input.Name, stringPtr(input.Status), input.EndAt, input.UserCount)
	return noRowsAsNil(scanSession(row))
}

func (r *PostgresRepository) ListSessions(ctx context.Context, filter repository.SessionFilter) ([]repository.Session, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ChannelID != 0 {
		args = append(args, filter.ChannelID)
		conds = append(conds, fmt.Sprintf("channel_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, stringSlice(filter.Statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions`+whereClause(conds)+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSession)
}

const insertParticipationSQL = `INSERT INTO participations (user_id, session_id, kind, occurred_at) VALUES ($1, $2, $3, $4)`

func (r *PostgresRepository) CreateParticipation(ctx context.Context, input repository.CreateParticipationInput) (*repository.Participation, error) {
	row := r.pool.QueryRow(ctx, insertParticipationSQL+` RETURNING `+participationColumns,
		input.UserID, input.SessionID, string(input.Kind), input.OccurredAt)
	return scanParticipation(row)
}

func (r *PostgresRepository) CreateParticipations(ctx context.Context, inputs []repository.CreateParticipationInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, in := range inputs {
		batch.Queue(insertParticipationSQL, in.UserID, in.SessionID, string(in.Kind), in.OccurredAt)
	}
	return r.sendBatch(ctx, batch)
}

func (r *PostgresRepository) ListParticipations(ctx context.Context, filter repository.ParticipationFilter) ([]repository.Participation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SessionID != 0 {
		args = append(args, filter.SessionID)
		conds = append(conds, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+participationColumns+` FROM participations`+whereClause(conds)+` ORDER BY occurred_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanParticipation)
}
