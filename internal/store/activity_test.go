package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestActivityFlow(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	base := time.Now()

	if err := s.RecordActivity(ctx, ActivityEntry{
		CaseID:    "1",
		Action:    "case_transferred",
		Actor:     "ana",
		Details:   map[string]interface{}{"section": "analise"},
		Timestamp: base,
	}); err != nil {
		t.Fatalf("RecordActivity error: %v", err)
	}
	if err := s.RecordActivity(ctx, ActivityEntry{
		Action:    "notification",
		Actor:     "Sistema",
		Details:   map[string]interface{}{"message": "Login realizado com sucesso!"},
		Timestamp: base.Add(time.Second),
	}); err != nil {
		t.Fatalf("RecordActivity error: %v", err)
	}

	all, err := s.ListActivity(ctx, 0)
	if err != nil {
		t.Fatalf("ListActivity error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Action != "notification" {
		t.Fatalf("expected newest entry first, got %q", all[0].Action)
	}
	if all[0].ID == "" {
		t.Fatalf("expected generated id")
	}

	forCase, err := s.ListCaseActivity(ctx, "1", 10)
	if err != nil {
		t.Fatalf("ListCaseActivity error: %v", err)
	}
	if len(forCase) != 1 {
		t.Fatalf("expected 1 case entry, got %d", len(forCase))
	}
	if forCase[0].Details["section"] != "analise" {
		t.Fatalf("unexpected details: %+v", forCase[0].Details)
	}

	limited, err := s.ListActivity(ctx, 1)
	if err != nil {
		t.Fatalf("ListActivity(1) error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
