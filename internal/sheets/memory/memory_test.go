package memory

import (
	"context"
	"testing"

	"invoicer/internal/core"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := New()
	_ = l.UpsertDocument(ctx, core.Document{ID: "b", Number: "INV-0002"})
	_ = l.UpsertDocument(ctx, core.Document{ID: "a", Number: "INV-0001"})
	_ = l.RemoveDocument(ctx, "acme", "a")
	_ = l.RemoveDocument(ctx, "acme", "ghost")

	if ids := l.IDs(); len(ids) != 2 || ids[0] != "a" {
		t.Errorf("IDs = %v", ids)
	}
	if _, ok, removed := l.Row("a"); !ok || !removed {
		t.Error("a should be present and removed")
	}
	if _, ok, _ := l.Row("ghost"); ok {
		t.Error("removing an unknown id must not create a row")
	}

	_ = l.UpsertDocument(ctx, core.Document{ID: "a", Number: "INV-0001"})
	if _, _, removed := l.Row("a"); removed {
		t.Error("upsert should revive a removed row")
	}
}
