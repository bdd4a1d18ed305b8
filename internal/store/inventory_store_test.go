package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestInventoryStoreRemoveInsufficient(t *testing.T) {
	calls := 0
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			calls++
			if !strings.Contains(query, "quantity >= $4") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 0}, nil
		},
	}
	ok, err := NewInventoryStore(stubDB{}).Remove(context.Background(), execer, "g1", "u1", 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no decrement")
	}
	if calls != 1 {
		t.Fatalf("expected cleanup to be skipped, got %d calls", calls)
	}
}

func TestInventoryStoreRemoveDropsEmptyRow(t *testing.T) {
	var queries []string
	execer := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			queries = append(queries, query)
			return stubResult{rows: 1}, nil
		},
	}
	ok, err := NewInventoryStore(stubDB{}).Remove(context.Background(), execer, "g1", "u1", 3, 2)
	if err != nil || !ok {
		t.Fatalf("unexpected result: %v %v", ok, err)
	}
	if len(queries) != 2 || !strings.Contains(queries[1], "DELETE FROM inventories") {
		t.Fatalf("unexpected queries: %#v", queries)
	}
}

func TestInventoryStoreQuantityForUpdateMissing(t *testing.T) {
	tx := stubGetter{
		getFn: func(context.Context, any, string, ...any) error { return sql.ErrNoRows },
	}
	qty, err := NewInventoryStore(stubDB{}).QuantityForUpdate(context.Background(), tx, "g1", "u1", 1)
	if err != nil || qty != 0 {
		t.Fatalf("unexpected result: %d %v", qty, err)
	}
}

func TestInventoryStoreAdd(t *testing.T) {
	tx := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "INSERT INTO inventories") || args[3] != int64(4) {
				t.Fatalf("unexpected call: %s %#v", query, args)
			}
			*dest.(*int64) = 9
			return nil
		},
	}
	total, err := NewInventoryStore(stubDB{}).Add(context.Background(), tx, "g1", "u1", 2, 4)
	if err != nil || total != 9 {
		t.Fatalf("unexpected result: %d %v", total, err)
	}
}
