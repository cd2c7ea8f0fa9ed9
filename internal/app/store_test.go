package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/cache"
	"ananse-reader/internal/infra/config"
)

func TestOpenStoreSQLiteIsMigrated(t *testing.T) {
	cfg := config.AppConfig{DBDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "app.db")}
	ctx := context.Background()

	store, closeStore, err := OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	c, err := store.CreateChapter(ctx, domain.ChapterInput{Slug: "one", Title: "One", Content: "text", Order: 1, Status: domain.ChapterStatusDraft, ReadTime: 1})
	if err != nil {
		t.Fatalf("create chapter: %v", err)
	}
	closeStore()

	store, closeStore, err = OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer closeStore()
	got, err := store.GetChapterByID(ctx, c.ID)
	if err != nil || got.Slug != "one" {
		t.Fatalf("chapter not persisted across reopen: %+v %v", got, err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, _, err := OpenStore(context.Background(), config.AppConfig{DBDriver: "mongo"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}

func TestNewCacheFallsBackToMemory(t *testing.T) {
	cfg := config.AppConfig{}
	cfg.Cache.TTL = time.Minute
	c, closeCache := NewCache(context.Background(), cfg, zerolog.Nop())
	defer closeCache()
	if _, ok := c.(*cache.MemoryCache); !ok {
		t.Fatalf("expected in-process cache, got %T", c)
	}
}
