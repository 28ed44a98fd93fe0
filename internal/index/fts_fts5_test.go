//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/skeletab/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM tables_fts`).Scan(&count); err != nil {
		t.Fatalf("tables_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := TableRow{Identity: acme1, GridPath: "a", Status: models.StatusInProgress, Fingerprint: "f1"}
	if err := db.UpsertTable(row, "Instrumented regression of wages on schooling"); err != nil {
		t.Fatalf("UpsertTable: %v", err)
	}

	results, err := db.Search("schooling", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Identity != acme1 {
		t.Errorf("identity = %+v", results[0].Identity)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertTable(TableRow{Identity: acme1, GridPath: "a", Fingerprint: "g"}, "vanishing content")
	_ = db.DeleteTable(acme1)

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted table still in FTS index: %+v", results)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertTable(TableRow{Identity: acme1, GridPath: "a", Fingerprint: "1"}, "original text")
	_ = db.UpsertTable(TableRow{Identity: acme1, GridPath: "a", Fingerprint: "2"}, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}
