package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testLoader(waitTimeoutSec int) *Loader {
	cfg := config.DefaultConfig()
	cfg.Loader.WaitTimeout = waitTimeoutSec
	cfg.Loader.PollInterval = 20 * time.Millisecond
	return New(cfg, testLogger())
}

// --- Wait Tests ---

func TestWaitForFileAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.json")

	// Empty file first: the wait must hold until there is content.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(80 * time.Millisecond)
		os.WriteFile(path, []byte(`[]`), 0o644)
	}()

	l := testLoader(5)
	if err := l.WaitForFile(context.Background(), path); err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}
}

func TestWaitForFileTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.json")

	l := testLoader(0)
	err := l.WaitForFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestWaitForFileCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := testLoader(60)
	if err := l.WaitForFile(ctx, path); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

// --- Read Tests ---

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "films.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFilmsArray(t *testing.T) {
	path := writeExport(t, `[
		{"url": "https://example.com/film/a/1", "title": "A", "year": 2001},
		42,
		{"url": "https://example.com/film/b/2", "title": "B"}
	]`)

	films, undecodable, err := ReadFilms(path)
	if err != nil {
		t.Fatalf("ReadFilms: %v", err)
	}
	if len(films) != 2 {
		t.Fatalf("got %d films, want 2", len(films))
	}
	if undecodable != 1 {
		t.Errorf("undecodable = %d, want 1", undecodable)
	}
	if films[0].Title != "A" || films[0].Year == nil || *films[0].Year != 2001 {
		t.Errorf("first film = %+v", films[0])
	}
}

func TestReadFilmsObjectMap(t *testing.T) {
	path := writeExport(t, `{
		"a": {"url": "https://example.com/film/a/1", "title": "A"},
		"b": {"url": "https://example.com/film/b/2", "title": "B"}
	}`)

	films, _, err := ReadFilms(path)
	if err != nil {
		t.Fatalf("ReadFilms: %v", err)
	}
	if len(films) != 2 {
		t.Fatalf("got %d films, want the map values", len(films))
	}
}

func TestReadFilmsLineDelimited(t *testing.T) {
	path := writeExport(t, `{"url": "https://example.com/film/a/1", "title": "A"}

{"url": "https://example.com/film/b/2", "title": "B", "year": 1962}
`)

	films, undecodable, err := ReadFilms(path)
	if err != nil {
		t.Fatalf("ReadFilms: %v", err)
	}
	if len(films) != 2 {
		t.Fatalf("got %d films, want 2", len(films))
	}
	if undecodable != 0 {
		t.Errorf("undecodable = %d, want 0", undecodable)
	}
	if films[1].Year == nil || *films[1].Year != 1962 {
		t.Errorf("second film = %+v", films[1])
	}
}

func TestReadFilmsRejectsGarbage(t *testing.T) {
	path := writeExport(t, `this is not json`)
	if _, _, err := ReadFilms(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestReadFilmsMissingFile(t *testing.T) {
	if _, _, err := ReadFilms(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected a read error")
	}
}

// --- Normalize Tests ---

func TestNormalize(t *testing.T) {
	stamped := types.NewFilm("https://example.com/film/old/1")
	stamped.ScrapedAt = 1700000000

	films := []*types.Film{
		types.NewFilm("  https://example.com/film/padded/2  "),
		types.NewFilm(""),
		types.NewFilm("   "),
		stamped,
	}

	kept, skipped := normalize(films)

	if len(kept) != 2 {
		t.Fatalf("kept %d films, want 2", len(kept))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if kept[0].URL != "https://example.com/film/padded/2" {
		t.Errorf("url not trimmed: %q", kept[0].URL)
	}
	if kept[0].ScrapedAt == 0 {
		t.Error("missing scrape timestamp should be stamped")
	}
	if kept[1].ScrapedAt != 1700000000 {
		t.Errorf("existing timestamp overwritten: %d", kept[1].ScrapedAt)
	}
}
