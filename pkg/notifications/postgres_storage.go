package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/smartnotify/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by PostgresStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage persists notifications in PostgreSQL.
// Apply Migrations with pg.Migrate before use.
type PostgresStorage struct {
	db DB
}

// NewPostgresStorage creates a storage backed by db.
func NewPostgresStorage(db DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const notificationColumns = `id, recipient_user_id, type, title, message, priority_level, priority_score,
	delivery_channels, context_data, ai_processed, is_digest, digest_of, digest_id, metadata, status,
	scheduled_for, sent_at, read_at, clicked_at, delivery_results, created_at`

func (s *PostgresStorage) Insert(ctx context.Context, n Notification) error {
	contextData, err := marshalObject(n.Context)
	if err != nil {
		return errors.Join(ErrInvalidContextData, err)
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	results, err := marshalObject(n.DeliveryResults)
	if err != nil {
		return fmt.Errorf("encode delivery results: %w", err)
	}

	var digestID *string
	if n.DigestID != "" {
		digestID = &n.DigestID
	}
	digestOf := n.DigestOf
	if digestOf == nil {
		digestOf = []string{}
	}

	_, err = s.db.Exec(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(n.Priority), n.Score,
		channelsToStrings(n.Channels), contextData, n.AIProcessed, n.IsDigest, digestOf, digestID, metadata,
		string(n.Status), n.ScheduledFor, n.SentAt, n.ReadAt, n.ClickedAt, results, n.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(ErrInvalidNotification, err)
		}
		return err
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return n, nil
}

func (s *PostgresStorage) Update(ctx context.Context, id string, patch Patch) (*Notification, error) {
	results, err := marshalObject(patch.DeliveryResults)
	if err != nil {
		return nil, fmt.Errorf("encode delivery results: %w", err)
	}
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}

	row := s.db.QueryRow(ctx, `UPDATE notifications SET
			status = COALESCE($2, status),
			sent_at = COALESCE($3, sent_at),
			read_at = COALESCE($4, read_at),
			clicked_at = COALESCE($5, clicked_at),
			scheduled_for = COALESCE($6, scheduled_for),
			digest_id = COALESCE($7, digest_id),
			delivery_results = delivery_results || $8::jsonb
		WHERE id = $1
		RETURNING `+notificationColumns,
		id, status, patch.SentAt, patch.ReadAt, patch.ClickedAt, patch.ScheduledFor, patch.DigestID, results,
	)
	n, err := scanNotification(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *PostgresStorage) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications
		WHERE recipient_user_id = $1 AND created_at >= $2 AND NOT is_digest`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, errors.Join(ErrFailedToQuery, err)
	}
	return count, nil
}

func (s *PostgresStorage) Interactions(ctx context.Context, since time.Time) ([]Interaction, error) {
	rows, err := s.db.Query(ctx, `SELECT recipient_user_id, type, priority_level, created_at, sent_at, read_at, clicked_at
		FROM notifications
		WHERE created_at >= $1 AND NOT is_digest AND sent_at IS NOT NULL
		ORDER BY created_at`,
		since,
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			i        Interaction
			priority string
		)
		if err := rows.Scan(&i.UserID, &i.Type, &priority, &i.CreatedAt, &i.SentAt, &i.ReadAt, &i.ClickedAt); err != nil {
			return nil, errors.Join(ErrFailedToQuery, err)
		}
		i.Priority = Priority(priority)
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return out, nil
}

func (s *PostgresStorage) ListScheduled(ctx context.Context) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'scheduled' AND scheduled_for IS NOT NULL
		ORDER BY scheduled_for`)
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToQuery, err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return out, nil
}

func (s *PostgresStorage) ListPending(ctx context.Context) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND NOT is_digest AND digest_id IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToQuery, err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n           Notification
		priority    string
		status      string
		channels    []string
		digestID    *string
		contextData []byte
		metadata    []byte
		results     []byte
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &priority, &n.Score,
		&channels, &contextData, &n.AIProcessed, &n.IsDigest, &n.DigestOf, &digestID, &metadata, &status,
		&n.ScheduledFor, &n.SentAt, &n.ReadAt, &n.ClickedAt, &results, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Priority = Priority(priority)
	n.Status = Status(status)
	n.Channels = make([]Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = Channel(c)
	}
	if digestID != nil {
		n.DigestID = *digestID
	}
	if len(n.DigestOf) == 0 {
		n.DigestOf = nil
	}
	if err := unmarshalObject(contextData, &n.Context); err != nil {
		return nil, fmt.Errorf("decode context data: %w", err)
	}
	if len(n.Context) == 0 {
		n.Context = nil
	}
	if err := unmarshalObject(metadata, &n.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	n.DeliveryResults = map[Channel]DeliveryResult{}
	if err := unmarshalObject(results, &n.DeliveryResults); err != nil {
		return nil, fmt.Errorf("decode delivery results: %w", err)
	}
	return &n, nil
}

// marshalObject encodes v as a JSON object, turning nil maps into {}.
func marshalObject[M ~map[K]V, K comparable, V any](v M) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalObject(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func channelsToStrings(chs []Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return out
}
