package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/praxis/pkg/models"
)

func TestFileConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	configs := store.Configs()

	cfg := testConfig("a1", time.Now().UTC())
	if err := configs.Save(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := configs.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AgentUUID != "a1" || loaded.Title != cfg.Title {
		t.Errorf("loaded = %+v", loaded)
	}

	if ok, err := configs.SetTitle(ctx, "a1", "renamed"); err != nil || !ok {
		t.Fatalf("set title: %v %v", ok, err)
	}
	loaded, err = configs.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Title != "renamed" {
		t.Errorf("title = %q", loaded.Title)
	}

	if ok, err := configs.Delete(ctx, "a1"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := configs.Load(ctx, "a1"); err != ErrNotFound {
		t.Errorf("load after delete = %v", err)
	}
}

func TestFileConfigListOrder(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	configs := store.Configs()

	base := time.Now().UTC()
	for i, uuid := range []string{"old", "new"} {
		if err := configs.Save(ctx, testConfig(uuid, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	page, total, err := configs.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || page[0].AgentUUID != "new" {
		t.Errorf("total=%d first=%q", total, page[0].AgentUUID)
	}
}

func TestFileConversationSeqSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Conversations().Save(ctx, &models.ConversationRecord{AgentUUID: "a1"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// A fresh handle over the same directory continues the sequence.
	reopened, err := NewFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	record := &models.ConversationRecord{AgentUUID: "a1"}
	if err := reopened.Conversations().Save(ctx, record); err != nil {
		t.Fatalf("save after reopen: %v", err)
	}
	if record.Seq != 3 {
		t.Errorf("seq after reopen = %d, want 3", record.Seq)
	}

	page, err := reopened.Conversations().LoadPage(ctx, "a1", 0, 0)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 3 || page[0].Seq != 3 {
		t.Errorf("page = %+v", page)
	}
}

func TestFileConversationCursor(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := store.Conversations().Save(ctx, &models.ConversationRecord{AgentUUID: "a1"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	first, hasMore, err := store.Conversations().LoadCursor(ctx, "a1", 0, 3)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if len(first) != 3 || first[0].Seq != 4 || !hasMore {
		t.Errorf("first page = %+v hasMore=%v", first, hasMore)
	}
	rest, hasMore, err := store.Conversations().LoadCursor(ctx, "a1", first[2].Seq, 3)
	if err != nil {
		t.Fatalf("cursor 2: %v", err)
	}
	if len(rest) != 1 || rest[0].Seq != 1 || hasMore {
		t.Errorf("rest = %+v hasMore=%v", rest, hasMore)
	}
}

func TestFileRunLogs(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	events := []models.RunLogEvent{{TS: time.Now().UTC(), Type: models.RunLogRetry, DelaySeconds: 5.5}}
	if err := store.RunLogs().Save(ctx, "a1", "run-1", events); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.RunLogs().Load(ctx, "a1", "run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].DelaySeconds != 5.5 {
		t.Errorf("loaded = %+v", loaded)
	}
	if _, err := store.RunLogs().Load(ctx, "a1", "gone"); err != ErrNotFound {
		t.Errorf("missing = %v", err)
	}
}

func TestFileNoPartialWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Configs().Save(ctx, testConfig("a1", time.Now().UTC())); err != nil {
		t.Fatalf("save: %v", err)
	}

	// No temp files left behind after a successful write.
	entries, err := os.ReadDir(filepath.Join(dir, "configs"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "a1.json" {
			t.Errorf("unexpected file %q", entry.Name())
		}
	}
}

func TestFileSanitizesIdentifiers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	cfg := testConfig("../escape", time.Now().UTC())
	if err := store.Configs().Save(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.json")); err == nil {
		t.Error("identifier escaped the configs directory")
	}
}
