package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duskboard/sync/pkg/clock"
	"github.com/duskboard/sync/pkg/event"
)

func openTestDB(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db)
	if err := s.CreateTables(context.Background()); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return s
}

func TestSQLStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	r := chatRecord(t, 1, 1, "hello", nil)
	if err := s.Append(ctx, r); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].EventID != r.EventID {
		t.Fatalf("expected round-tripped record, got %+v", got)
	}
	body, ok := got[0].Body.(event.ChatMessageBody)
	if !ok || body.Content != "hello" {
		t.Fatalf("expected chat body with content hello, got %+v", got[0].Body)
	}
}

func TestSQLStoreAppendDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	r := chatRecord(t, 1, 1, "hello", nil)
	if err := s.Append(ctx, r); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append(ctx, r); err != ErrDuplicateEvent {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestSQLStoreHeadsAndEdges(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	r1 := chatRecord(t, 1, 1, "first", nil)
	if err := s.Append(ctx, r1); err != nil {
		t.Fatalf("append r1: %v", err)
	}
	r2 := chatRecord(t, 1, 2, "second", []string{r1.EventID})
	if err := s.Append(ctx, r2); err != nil {
		t.Fatalf("append r2: %v", err)
	}

	heads, err := s.Heads(ctx, 1)
	if err != nil {
		t.Fatalf("heads: %v", err)
	}
	if len(heads) != 1 || heads[0] != r2.EventID {
		t.Fatalf("expected only r2 as head, got %v", heads)
	}
}

func TestSQLStoreListMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	r1 := chatRecord(t, 1, 1, "a", nil)
	r2 := chatRecord(t, 1, 2, "b", nil)
	if err := s.Append(ctx, r1); err != nil {
		t.Fatalf("append r1: %v", err)
	}
	if err := s.Append(ctx, r2); err != nil {
		t.Fatalf("append r2: %v", err)
	}

	missing, err := s.ListMissing(ctx, 1, []string{r1.EventID})
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(missing) != 1 || missing[0].EventID != r2.EventID {
		t.Fatalf("expected only r2 missing, got %v", missing)
	}
}

func TestSQLStoreMaxLamportEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	max, err := s.MaxLamport(ctx)
	if err != nil {
		t.Fatalf("max lamport: %v", err)
	}
	if max != 0 {
		t.Fatalf("expected 0 for an empty store, got %d", max)
	}
}

func TestSQLStorePreservesFlagUpdateNullValue(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	r := event.Record{
		SessionID:    1,
		LamportClock: 1,
		Timestamp:    time.Now().UTC(),
		VectorClock:  clock.New().Increment("PEERAAAAAA"),
		Body: event.FlagUpdateBody{
			Key:       "world",
			Value:     nil,
			Version:   1,
			UpdatedAt: time.Now().UTC(),
			ChangeID:  "cid-1",
		},
	}
	sealed, err := r.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := s.Append(ctx, sealed); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
	body, ok := got[0].Body.(event.FlagUpdateBody)
	if !ok {
		t.Fatalf("expected FlagUpdateBody, got %T", got[0].Body)
	}
	if body.Value != nil {
		t.Fatalf("expected nil value to survive round trip, got %q", *body.Value)
	}
}
