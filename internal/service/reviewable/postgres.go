package reviewable

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/pkg/errors"
)

const reviewableColumns = `id, target_type, target_id, variant, status, version, score,
	reviewable_by_group_id, category_id, payload, created_by, created_at, updated_at`

// PostgresStore is the production Store backed by Postgres. Every mutation
// runs in a single transaction; the optimistic version check and the score
// invariant both live in SQL, so concurrent writers serialize at the
// version-bump statement without any in-process locking.
type PostgresStore struct {
	*repository.BaseRepository
	targets *repository.TargetRegistry
	log     *zap.Logger
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB, log *zap.Logger, targets *repository.TargetRegistry) *PostgresStore {
	return &PostgresStore{
		BaseRepository: repository.NewBaseRepository(db, log),
		targets:        targets,
		log:            log,
	}
}

var _ Store = (*PostgresStore)(nil)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReviewable(row rowScanner) (*Reviewable, error) {
	item := &Reviewable{}
	var payload []byte
	var groupID, categoryID sql.NullInt64
	err := row.Scan(
		&item.ID, &item.TargetType, &item.TargetID, &item.Variant, &item.Status,
		&item.Version, &item.Score, &groupID, &categoryID, &payload,
		&item.CreatedByID, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		item.ReviewableByGroupID = &groupID.Int64
	}
	if categoryID.Valid {
		item.CategoryID = &categoryID.Int64
	}
	item.Payload, err = repository.FromJSONB(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return item, nil
}

// Create inserts a pending item, or reactivates the existing row for the same
// target. A single upsert keeps the one-row-per-target invariant under
// concurrent flaggers; xmax distinguishes a fresh insert from a reopen.
func (s *PostgresStore) Create(ctx context.Context, item *Reviewable) (*Reviewable, bool, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = s.RollbackTx(ctx, tx) }()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	payload, err := repository.ToJSONB(item.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode payload: %w", err)
	}

	var reopened bool
	row := tx.QueryRowContext(ctx,
		`INSERT INTO reviewables
		   (id, target_type, target_id, variant, status, version, score,
		    reviewable_by_group_id, category_id, payload, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', 0, 0, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (target_type, target_id) DO UPDATE
		   SET status = 'pending', version = reviewables.version + 1, updated_at = now()
		 RETURNING `+reviewableColumns+`, (xmax <> 0) AS reopened`,
		item.ID, string(item.TargetType), item.TargetID, string(item.Variant),
		nullableInt64(item.ReviewableByGroupID), nullableInt64(item.CategoryID),
		payload, item.CreatedByID)

	out := &Reviewable{}
	var pl []byte
	var groupID, categoryID sql.NullInt64
	err = row.Scan(
		&out.ID, &out.TargetType, &out.TargetID, &out.Variant, &out.Status,
		&out.Version, &out.Score, &groupID, &categoryID, &pl,
		&out.CreatedByID, &out.CreatedAt, &out.UpdatedAt, &reopened,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create reviewable: %w", err)
	}
	if groupID.Valid {
		out.ReviewableByGroupID = &groupID.Int64
	}
	if categoryID.Valid {
		out.CategoryID = &categoryID.Int64
	}
	if out.Payload, err = repository.FromJSONB(pl); err != nil {
		return nil, false, fmt.Errorf("failed to decode payload: %w", err)
	}

	historyType := HistoryCreated
	if reopened {
		historyType = HistoryTransitioned
	}
	if err := s.appendHistory(ctx, tx, out.ID, historyType, StatusPending, item.CreatedByID, nil); err != nil {
		return nil, false, err
	}

	if err := s.CommitTx(ctx, tx); err != nil {
		return nil, false, err
	}
	return out, reopened, nil
}

// Get fetches one item by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Reviewable, error) {
	row := s.GetDB().QueryRowContext(ctx,
		`SELECT `+reviewableColumns+` FROM reviewables WHERE id = $1`, id)
	item, err := scanReviewable(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reviewable: %w", err)
	}
	return item, nil
}

// GetByTarget fetches the item for a target, if any.
func (s *PostgresStore) GetByTarget(ctx context.Context, targetType repository.TargetType, targetID int64) (*Reviewable, error) {
	row := s.GetDB().QueryRowContext(ctx,
		`SELECT `+reviewableColumns+` FROM reviewables WHERE target_type = $1 AND target_id = $2`,
		string(targetType), targetID)
	item, err := scanReviewable(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reviewable by target: %w", err)
	}
	return item, nil
}

// List returns items matching the query plus the total match count.
func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]*Reviewable, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Status != nil {
		where = append(where, "status = "+arg(string(*q.Status)))
	}
	if q.TargetType != nil {
		where = append(where, "target_type = "+arg(string(*q.TargetType)))
	}
	if q.MinScore != nil {
		where = append(where, "score >= "+arg(*q.MinScore))
	}
	if q.Scope != nil && !q.Scope.All {
		if len(q.Scope.GroupIDs) == 0 {
			return nil, 0, nil
		}
		where = append(where, "reviewable_by_group_id = ANY("+arg(pq.Array(q.Scope.GroupIDs))+")")
	}
	if q.Scope != nil && len(q.Scope.CategoryIDs) > 0 {
		where = append(where, "(category_id IS NULL OR category_id = ANY("+arg(pq.Array(q.Scope.CategoryIDs))+"))")
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.GetDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviewables WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviewables: %w", err)
	}

	// Pending queues surface the highest-scored items first; resolved
	// listings are a plain chronology.
	order := "created_at DESC"
	if q.Status != nil && *q.Status == StatusPending {
		order = "score DESC, created_at DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.GetDB().QueryContext(ctx,
		`SELECT `+reviewableColumns+` FROM reviewables WHERE `+whereClause+
			` ORDER BY `+order+` LIMIT `+arg(limit)+` OFFSET `+arg(q.Offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviewables: %w", err)
	}
	defer rows.Close()

	var items []*Reviewable
	for rows.Next() {
		item, err := scanReviewable(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan reviewable: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AddScore inserts a pending contribution and bumps the aggregate by its
// weight in one transaction. Concurrent AddScore calls on the same item do
// not conflict; each is an independent insert plus an atomic increment.
func (s *PostgresStore) AddScore(ctx context.Context, c *ScoreContribution) (*Reviewable, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.RollbackTx(ctx, tx) }()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviewable_scores
		   (id, reviewable_id, actor_id, kind, weight, resolution, took_action, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, now())`,
		c.ID, c.ReviewableID, c.ActorID, c.Kind, c.Weight, c.TookAction)
	if err != nil {
		// The partial unique index caps each actor at one unresolved
		// contribution; a concurrent duplicate degrades to a no-op.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return s.Get(ctx, c.ReviewableID)
		}
		return nil, fmt.Errorf("failed to insert contribution: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE reviewables SET score = score + $1, updated_at = now()
		 WHERE id = $2
		 RETURNING `+reviewableColumns,
		c.Weight, c.ReviewableID)
	item, err := scanReviewable(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment score: %w", err)
	}

	if err := s.CommitTx(ctx, tx); err != nil {
		return nil, err
	}

	s.mirrorScore(ctx, item)
	return item, nil
}

// PerformAtomic implements the version-gated perform protocol documented on
// the Store interface.
func (s *PostgresStore) PerformAtomic(ctx context.Context, id uuid.UUID, performedBy string, suppliedVersion *int64, fn PerformFunc) (*Reviewable, *PerformResult, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = s.RollbackTx(ctx, tx) }()

	// The bump is the sole admission control: exactly one concurrent writer
	// sees its version match, everyone else fails fast.
	var newVersion int64
	err = tx.QueryRowContext(ctx,
		`UPDATE reviewables SET version = version + 1, updated_at = now()
		 WHERE id = $1 AND ($2::bigint IS NULL OR version = $2)
		 RETURNING version`,
		id, suppliedVersion).Scan(&newVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			var exists bool
			if checkErr := s.GetDB().QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM reviewables WHERE id = $1)`, id).Scan(&exists); checkErr == nil && !exists {
				return nil, nil, errors.ErrNotFound
			}
			return nil, nil, errors.ErrUpdateConflict
		}
		return nil, nil, fmt.Errorf("failed to bump version: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+reviewableColumns+` FROM reviewables WHERE id = $1`, id)
	item, err := scanReviewable(row)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reviewable in transaction: %w", err)
	}

	// Target mutations made by fn run on this same transaction, so a failed
	// perform takes its side effects down with it.
	var boundTargets *repository.TargetRegistry
	if s.targets != nil {
		boundTargets = s.targets.BindTx(tx)
	}
	result, err := fn(ctx, item, boundTargets)
	if err != nil {
		return nil, nil, err
	}
	if result == nil {
		result = &PerformResult{}
	}

	if result.NewStatus != nil {
		if !result.NewStatus.Valid() {
			return nil, nil, fmt.Errorf("%w: unknown status %q", errors.ErrValidation, *result.NewStatus)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE reviewables SET status = $1, updated_at = now() WHERE id = $2`,
			string(*result.NewStatus), id); err != nil {
			return nil, nil, fmt.Errorf("failed to transition status: %w", err)
		}
		item.Status = *result.NewStatus
		if err := s.appendHistory(ctx, tx, id, HistoryTransitioned, *result.NewStatus, performedBy, nil); err != nil {
			return nil, nil, err
		}
	}

	if result.EditDelta != nil {
		if item.Payload == nil {
			item.Payload = map[string]interface{}{}
		}
		for k, v := range result.EditDelta {
			item.Payload[k] = v
		}
		payload, err := repository.ToJSONB(item.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE reviewables SET payload = $1, updated_at = now() WHERE id = $2`,
			payload, id); err != nil {
			return nil, nil, fmt.Errorf("failed to edit payload: %w", err)
		}
		if err := s.appendHistory(ctx, tx, id, HistoryEdited, item.Status, performedBy, result.EditDelta); err != nil {
			return nil, nil, err
		}
	}

	if result.Resolution != nil {
		query := `UPDATE reviewable_scores SET resolution = $1
			 WHERE reviewable_id = $2 AND resolution = 'pending'`
		args := []interface{}{string(result.Resolution.Status), id}
		if len(result.Resolution.ActorIDs) > 0 {
			query += ` AND actor_id = ANY($3)`
			args = append(args, pq.Array(result.Resolution.ActorIDs))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve contributions: %w", err)
		}
	}

	if result.RecomputeScore {
		// Always re-derive from the ledger; never trust an in-memory value.
		// A concurrent AddScore may have landed since this item was read.
		err = tx.QueryRowContext(ctx,
			`UPDATE reviewables SET score = (
			    SELECT COALESCE(SUM(weight), 0) FROM reviewable_scores
			    WHERE reviewable_id = $1 AND resolution = 'pending')
			 WHERE id = $1
			 RETURNING score`,
			id).Scan(&item.Score)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to recompute score: %w", err)
		}
	}

	if err := s.CommitTx(ctx, tx); err != nil {
		return nil, nil, err
	}

	item.Version = newVersion
	if result.RecomputeScore {
		s.mirrorScore(ctx, item)
	}
	return item, result, nil
}

// History returns the item's history entries, oldest first.
func (s *PostgresStore) History(ctx context.Context, id uuid.UUID) ([]*HistoryEntry, error) {
	rows, err := s.GetDB().QueryContext(ctx,
		`SELECT id, reviewable_id, type, status, performed_by, edit_delta, created_at
		 FROM reviewable_histories WHERE reviewable_id = $1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var delta []byte
		if err := rows.Scan(&e.ID, &e.ReviewableID, &e.Type, &e.Status, &e.PerformedByID, &delta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if len(delta) > 0 {
			if e.EditDelta, err = repository.FromJSONB(delta); err != nil {
				return nil, fmt.Errorf("failed to decode edit delta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Contributions returns the item's score ledger, oldest first.
func (s *PostgresStore) Contributions(ctx context.Context, id uuid.UUID) ([]*ScoreContribution, error) {
	rows, err := s.GetDB().QueryContext(ctx,
		`SELECT id, reviewable_id, actor_id, kind, weight, resolution, took_action, created_at
		 FROM reviewable_scores WHERE reviewable_id = $1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*ScoreContribution
	for rows.Next() {
		c := &ScoreContribution{}
		if err := rows.Scan(&c.ID, &c.ReviewableID, &c.ActorID, &c.Kind, &c.Weight, &c.Resolution, &c.TookAction, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// Recount rewrites the aggregate from the ledger and returns it.
func (s *PostgresStore) Recount(ctx context.Context, id uuid.UUID) (float64, error) {
	var score float64
	err := s.GetDB().QueryRowContext(ctx,
		`UPDATE reviewables SET score = (
		    SELECT COALESCE(SUM(weight), 0) FROM reviewable_scores
		    WHERE reviewable_id = $1 AND resolution = 'pending')
		 WHERE id = $1
		 RETURNING score`,
		id).Scan(&score)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to recount score: %w", err)
	}
	return score, nil
}

// RecentIDs lists items touched since the given time.
func (s *PostgresStore) RecentIDs(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.GetDB().QueryContext(ctx,
		`SELECT id FROM reviewables WHERE updated_at >= $1 ORDER BY updated_at DESC LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reviewables: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PendingCount returns the number of pending items.
func (s *PostgresStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.GetDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviewables WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reviewables: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) appendHistory(ctx context.Context, tx *sql.Tx, id uuid.UUID, historyType HistoryType, status Status, performedBy string, delta map[string]interface{}) error {
	var deltaJSON interface{}
	if delta != nil {
		b, err := repository.ToJSONB(delta)
		if err != nil {
			return fmt.Errorf("failed to encode edit delta: %w", err)
		}
		deltaJSON = b
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reviewable_histories (id, reviewable_id, type, status, performed_by, edit_delta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.New(), id, string(historyType), string(status), performedBy, deltaJSON)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// mirrorScore propagates the aggregate onto the target's container. The
// container belongs to an external subsystem, so failures are logged and
// tolerated rather than rolled into the engine's unit of work.
func (s *PostgresStore) mirrorScore(ctx context.Context, item *Reviewable) {
	if s.targets == nil {
		return
	}
	m, ok := s.targets.For(item.TargetType)
	if !ok {
		return
	}
	if err := m.MirrorScore(ctx, item.TargetID, item.Score); err != nil {
		if s.log != nil {
			s.log.Warn("failed to mirror score onto target container",
				zap.String("reviewable_id", item.ID.String()),
				zap.String("target_type", string(item.TargetType)),
				zap.Int64("target_id", item.TargetID),
				zap.Error(err),
			)
		}
	}
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
