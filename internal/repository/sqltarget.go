package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openagora/agora/pkg/errors"
)

// dbtx is the statement surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLTargetStore is a TargetMutator backed by the platform's content tables.
// Each instance serves one target type; rows hold the moderation-relevant
// slice of the content (visibility, soft-delete flag, container, author).
// Statements run on the pool, or on a caller's transaction after BindTx.
type SQLTargetStore struct {
	*BaseRepository
	targetType TargetType
	tx         *sql.Tx
}

// NewSQLTargetStore creates a store for one target type.
func NewSQLTargetStore(db *sql.DB, log *zap.Logger, t TargetType) *SQLTargetStore {
	return &SQLTargetStore{
		BaseRepository: NewBaseRepository(db, log),
		targetType:     t,
	}
}

var (
	_ TargetMutator = (*SQLTargetStore)(nil)
	_ TxBinder      = (*SQLTargetStore)(nil)
)

// BindTx returns a copy whose statements run on the given transaction, so
// target mutations commit or roll back with it.
func (s *SQLTargetStore) BindTx(tx *sql.Tx) TargetMutator {
	bound := *s
	bound.tx = tx
	return &bound
}

func (s *SQLTargetStore) runner() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.GetDB()
}

// Load fetches a target. Soft-deleted rows come back with Deleted set.
func (s *SQLTargetStore) Load(ctx context.Context, id int64) (*Target, error) {
	row := s.runner().QueryRowContext(ctx,
		`SELECT id, container_id, author_id, hidden, deleted, payload
		 FROM targets WHERE target_type = $1 AND id = $2`,
		string(s.targetType), id)
	t := &Target{Type: s.targetType}
	var payload []byte
	if err := row.Scan(&t.ID, &t.ContainerID, &t.AuthorID, &t.Hidden, &t.Deleted, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	data, err := FromJSONB(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode target payload: %w", err)
	}
	t.Data = data
	return t, nil
}

func (s *SQLTargetStore) setFlag(ctx context.Context, id int64, column string, value bool) error {
	res, err := s.runner().ExecContext(ctx,
		// column comes from a fixed caller-side set, never from input
		fmt.Sprintf(`UPDATE targets SET %s = $1, updated_at = now() WHERE target_type = $2 AND id = $3`, column),
		value, string(s.targetType), id)
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrTargetNotFound
	}
	return nil
}

// Hide makes the target invisible to regular readers.
func (s *SQLTargetStore) Hide(ctx context.Context, id int64) error {
	return s.setFlag(ctx, id, "hidden", true)
}

// Restore reverses Hide.
func (s *SQLTargetStore) Restore(ctx context.Context, id int64) error {
	return s.setFlag(ctx, id, "hidden", false)
}

// Delete soft-deletes the target.
func (s *SQLTargetStore) Delete(ctx context.Context, id int64) error {
	return s.setFlag(ctx, id, "deleted", true)
}

// SuspendAuthor suspends the target's author until the given time.
func (s *SQLTargetStore) SuspendAuthor(ctx context.Context, id int64, until time.Time) error {
	_, err := s.runner().ExecContext(ctx,
		`UPDATE target_authors SET suspended_until = $1
		 WHERE id = (SELECT author_id FROM targets WHERE target_type = $2 AND id = $3)`,
		until, string(s.targetType), id)
	if err != nil {
		return fmt.Errorf("failed to suspend author: %w", err)
	}
	return nil
}

// CreateFromDraft materializes a queued draft into a real target row.
func (s *SQLTargetStore) CreateFromDraft(ctx context.Context, payload map[string]interface{}) (*Target, error) {
	data, err := ToJSONB(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft payload: %w", err)
	}
	var containerID int64
	if v, ok := payload["container_id"].(float64); ok {
		containerID = int64(v)
	}
	authorID, _ := payload["author_id"].(string)
	t := &Target{Type: s.targetType, ContainerID: containerID, AuthorID: authorID, Data: payload}
	err = s.runner().QueryRowContext(ctx,
		`INSERT INTO targets (target_type, container_id, author_id, hidden, deleted, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, false, false, $4, now(), now())
		 RETURNING id`,
		string(s.targetType), containerID, authorID, data).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create target from draft: %w", err)
	}
	return t, nil
}

// MirrorScore writes the aggregate review score onto the target's container.
func (s *SQLTargetStore) MirrorScore(ctx context.Context, id int64, score float64) error {
	_, err := s.runner().ExecContext(ctx,
		`UPDATE target_containers SET review_score = $1, updated_at = now()
		 WHERE id = (SELECT container_id FROM targets WHERE target_type = $2 AND id = $3)`,
		score, string(s.targetType), id)
	if err != nil {
		return fmt.Errorf("failed to mirror score: %w", err)
	}
	return nil
}
