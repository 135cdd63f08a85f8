package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sw33tLie/shopsight/pkg/insight"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "snapshots.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	st := &insight.Store{
		URL:  "https://acme.example",
		Name: "Acme Outfitters",
		Products: []insight.Product{
			{URL: "https://acme.example/products/tee", Name: "Tee", Price: &insight.Price{Amount: 25, Currency: "USD"}},
		},
		Sources: map[string]insight.FetchStatus{
			"home": {Outcome: insight.FetchSucceeded, Attempts: 1, HTTPStatus: 200},
		},
	}

	id, err := db.SaveSnapshot(ctx, st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a row id")
	}

	snap, err := db.LatestSnapshot(ctx, st.URL)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap.ID != id || snap.StoreURL != st.URL {
		t.Fatalf("snapshot metadata: %#v", snap)
	}

	var got insight.Store
	if err := json.Unmarshal(snap.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Name != st.Name || len(got.Products) != 1 || got.Products[0].Price.Amount != 25 {
		t.Fatalf("round trip lost data: %#v", got)
	}
	if got.Sources["home"].Outcome != insight.FetchSucceeded {
		t.Fatalf("sources lost: %#v", got.Sources)
	}
}

func TestLatestSnapshot_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LatestSnapshot(context.Background(), "https://never-seen.example")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSnapshots_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"First", "Second", "Third"} {
		if _, err := db.SaveSnapshot(ctx, &insight.Store{URL: "https://acme.example", Name: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	// A different store must not leak into the listing.
	if _, err := db.SaveSnapshot(ctx, &insight.Store{URL: "https://other.example", Name: "Other"}); err != nil {
		t.Fatalf("save other: %v", err)
	}

	snaps, err := db.ListSnapshots(ctx, "https://acme.example", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(snaps))
	}
	if snaps[0].ID <= snaps[1].ID {
		t.Fatalf("expected newest first, got ids %d, %d", snaps[0].ID, snaps[1].ID)
	}

	var newest insight.Store
	if err := json.Unmarshal(snaps[0].Payload, &newest); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if newest.Name != "Third" {
		t.Fatalf("newest snapshot: got %q", newest.Name)
	}
}

func TestNilDBClose(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
