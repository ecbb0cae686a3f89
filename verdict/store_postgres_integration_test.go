package verdict

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PRESENCE_DATABASE_URL.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PRESENCE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PRESENCE_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("integration test skipped: Postgres unreachable: %v", err)
	}
	return pool
}

func mustNewPostgresStore(t *testing.T, pool *pgxpool.Pool) *PostgresStore {
	t.Helper()

	id, err := NewBatchID(time.Now())
	if err != nil {
		t.Fatalf("schema id: %v", err)
	}
	schema := "presence_it_" + strings.ToLower(id)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()
	store := mustNewPostgresStore(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	in := testBatch()
	in.Records[1].Override = nil
	if err := store.SaveVerdicts(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := store.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out.Records) != 2 || out.Records[0].ParticipantID != "alice" || out.Records[1].ParticipantID != "bob" {
		t.Fatalf("expected records in enrollment order, got %+v", out.Records)
	}
	if !out.Records[1].HasFlag(FlagEnvironmentMismatch) {
		t.Fatalf("flags not stored: %v", out.Records[1].Flags)
	}

	if err := store.Override(ctx, in.ID, "bob", Override{Status: StatusPresent, Reviewer: "ta"}); err != nil {
		t.Fatalf("override: %v", err)
	}
	out, err = store.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get after override: %v", err)
	}
	if out.Records[1].Status != StatusAbsent || out.Records[1].EffectiveStatus() != StatusPresent {
		t.Fatalf("unexpected record after override: %+v", out.Records[1])
	}

	ids, err := store.ListByAnchor(ctx, in.AnchorID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != in.ID {
		t.Fatalf("unexpected ids %v", ids)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if err := store.Override(ctx, "missing", "bob", Override{Status: StatusPresent, Reviewer: "ta"}); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if err := store.Override(ctx, in.ID, "nobody", Override{Status: StatusPresent, Reviewer: "ta"}); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestWithSchemaRejectsBadIdentifier(t *testing.T) {
	st := &PostgresStore{}
	if err := WithSchema("bad;drop")(st); err == nil {
		t.Fatalf("expected invalid identifier error")
	}
	if err := WithSchema("  ")(st); err == nil {
		t.Fatalf("expected empty schema error")
	}
	if err := WithSchema("presence_2")(st); err != nil || st.schema != "presence_2" {
		t.Fatalf("expected schema accepted, got %v", err)
	}
}
