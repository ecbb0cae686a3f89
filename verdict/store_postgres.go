package verdict

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes one row per batch and one row per record.
//
// The pool is owned by the caller; the store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// PostgresOption configures a [PostgresStore].
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the verdict tables (default "presence").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("verdict: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("verdict: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a [PostgresStore].
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "presence",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("verdict: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) ident(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// EnsureSchema creates the schema and tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	batches := s.ident("verdict_batches")
	records := s.ident("verdict_records")
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  anchor_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  finalized_at TIMESTAMPTZ NOT NULL,
  similarity_threshold DOUBLE PRECISION NOT NULL,
  max_displacement_radius DOUBLE PRECISION NOT NULL,
  physics_shield_enabled BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS verdict_batches_anchor_idx ON %s (anchor_id, finalized_at DESC);
CREATE TABLE IF NOT EXISTS %s (
  batch_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  participant_id TEXT NOT NULL,
  similarity_score DOUBLE PRECISION NOT NULL,
  displacement DOUBLE PRECISION NOT NULL,
  common_dimensions INTEGER NOT NULL,
  overlap_ratio DOUBLE PRECISION NOT NULL,
  liveness_confirmed BOOLEAN NOT NULL,
  flags TEXT[] NOT NULL,
  status TEXT NOT NULL,
  reason TEXT NOT NULL,
  override_status TEXT NULL,
  override_reviewer TEXT NULL,
  override_note TEXT NULL,
  override_at TIMESTAMPTZ NULL,
  PRIMARY KEY (batch_id, participant_id)
);`,
		pgx.Identifier{s.schema}.Sanitize(), batches, batches, records, batches)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// SaveVerdicts inserts the batch and all of its records in one transaction.
func (s *PostgresStore) SaveVerdicts(ctx context.Context, b *Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.ident("verdict_batches")+` (
		     id, anchor_id, session_id, finalized_at,
		     similarity_threshold, max_displacement_radius, physics_shield_enabled
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.AnchorID, b.SessionID, b.FinalizedAt.UTC(),
		b.Settings.SimilarityThreshold, b.Settings.MaxDisplacementRadius, b.Settings.PhysicsShieldEnabled,
	)
	if err != nil {
		return err
	}

	records := s.ident("verdict_records")
	batch := &pgx.Batch{}
	for i, r := range b.Records {
		flags := r.Flags
		if flags == nil {
			flags = []string{}
		}
		batch.Queue(
			`INSERT INTO `+records+` (
			     batch_id, position, participant_id, similarity_score, displacement,
			     common_dimensions, overlap_ratio, liveness_confirmed, flags, status, reason
			   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			b.ID, i, r.ParticipantID, r.SimilarityScore, r.Displacement,
			r.CommonDimensions, r.OverlapRatio, r.LivenessConfirmed, flags, string(r.Status), r.Reason,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Get loads one batch with its records in enrollment order.
func (s *PostgresStore) Get(ctx context.Context, batchID string) (*Batch, error) {
	b := &Batch{ID: batchID}
	err := s.pool.QueryRow(ctx,
		`SELECT anchor_id, session_id, finalized_at,
		        similarity_threshold, max_displacement_radius, physics_shield_enabled
		   FROM `+s.ident("verdict_batches")+` WHERE id = $1`,
		batchID,
	).Scan(
		&b.AnchorID, &b.SessionID, &b.FinalizedAt,
		&b.Settings.SimilarityThreshold, &b.Settings.MaxDisplacementRadius, &b.Settings.PhysicsShieldEnabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	b.FinalizedAt = b.FinalizedAt.UTC()

	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, similarity_score, displacement, common_dimensions,
		        overlap_ratio, liveness_confirmed, flags, status, reason,
		        override_status, override_reviewer, override_note, override_at
		   FROM `+s.ident("verdict_records")+`
		  WHERE batch_id = $1
		  ORDER BY position`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r        Record
			status   string
			oStatus  *string
			reviewer *string
			note     *string
			oAt      *time.Time
		)
		if err := rows.Scan(
			&r.ParticipantID, &r.SimilarityScore, &r.Displacement, &r.CommonDimensions,
			&r.OverlapRatio, &r.LivenessConfirmed, &r.Flags, &status, &r.Reason,
			&oStatus, &reviewer, &note, &oAt,
		); err != nil {
			return nil, err
		}
		if len(r.Flags) == 0 {
			r.Flags = nil
		}
		r.Status = Status(status)
		if oStatus != nil {
			o := &Override{Status: Status(*oStatus)}
			if reviewer != nil {
				o.Reviewer = *reviewer
			}
			if note != nil {
				o.Note = *note
			}
			if oAt != nil {
				o.UpdatedAt = oAt.UTC()
			}
			r.Override = o
		}
		b.Records = append(b.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// ListByAnchor returns batch ids for the anchor, newest first. limit <= 0 means all.
func (s *PostgresStore) ListByAnchor(ctx context.Context, anchorID string, limit int) ([]string, error) {
	query := `SELECT id FROM ` + s.ident("verdict_batches") + `
	  WHERE anchor_id = $1
	  ORDER BY finalized_at DESC, id DESC`
	args := []any{anchorID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Override records a reviewer decision beside the stored record.
func (s *PostgresStore) Override(ctx context.Context, batchID, participantID string, o Override) error {
	o, err := normalizeOverride(o, s.now())
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.ident("verdict_records")+`
		    SET override_status = $3, override_reviewer = $4, override_note = $5, override_at = $6
		  WHERE batch_id = $1 AND participant_id = $2`,
		batchID, participantID, string(o.Status), o.Reviewer, o.Note, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.ident("verdict_batches")+` WHERE id = $1)`,
		batchID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBatchNotFound
	}
	return ErrRecordNotFound
}
