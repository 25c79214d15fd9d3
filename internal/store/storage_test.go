package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cinefinder/cinefinder/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func sampleFilms() []*types.Film {
	dune := types.NewFilm("https://www.senscritique.com/film/dune/123")
	dune.Title = "Dune"
	dune.FullTitle = "Dune (2021)"
	dune.SetYear(2021)
	dune.Genres = []string{"Science-fiction", "Drame"}
	dune.Directors = []string{"Denis Villeneuve"}
	dune.SetRating(7.8)
	dune.ScrapedAt = 1700000000

	alien := types.NewFilm("https://www.senscritique.com/film/alien/456")
	alien.Title = "Alien"
	alien.ScrapedAt = 1700000001

	return []*types.Film{dune, alien}
}

// memStorage records batches in memory for fan-out and batcher tests.
type memStorage struct {
	name      string
	batches   [][]*types.Film
	failStore bool
	closed    bool
}

func (m *memStorage) Store(films []*types.Film) error {
	if m.failStore {
		return fmt.Errorf("store failed")
	}
	m.batches = append(m.batches, films)
	return nil
}

func (m *memStorage) Close() error {
	m.closed = true
	return nil
}

func (m *memStorage) Name() string { return m.name }

// --- JSON Storage Tests ---

func TestJSONStorageWritesArrayOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.json")
	s, err := NewJSONStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewJSONStorage: %v", err)
	}

	if err := s.Store(sampleFilms()); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist before Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var films []*types.Film
	if err := json.Unmarshal(data, &films); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(films) != 2 {
		t.Fatalf("got %d films, want 2", len(films))
	}
	if films[0].Title != "Dune" || films[0].Year == nil || *films[0].Year != 2021 {
		t.Errorf("first film = %+v, want Dune (2021)", films[0])
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestJSONStorageEmptyExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.json")
	s, err := NewJSONStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewJSONStorage: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var films []*types.Film
	if err := json.Unmarshal(data, &films); err != nil {
		t.Fatalf("empty export should still be an array: %v", err)
	}
	if len(films) != 0 {
		t.Errorf("got %d films, want 0", len(films))
	}
}

// --- JSONL Storage Tests ---

func TestJSONLStorageStreams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.jsonl")
	s, err := NewJSONLStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewJSONLStorage: %v", err)
	}

	films := sampleFilms()
	if err := s.Store(films[:1]); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Store(films[1:]); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var film types.Film
		if err := json.Unmarshal([]byte(line), &film); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if film.URL == "" {
			t.Errorf("line %d missing url", i)
		}
	}
}

// --- CSV Storage Tests ---

func TestCSVStorageHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.csv")
	s, err := NewCSVStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewCSVStorage: %v", err)
	}
	if err := s.Store(sampleFilms()); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	header := rows[0]
	if header[0] != "actors" {
		t.Errorf("header[0] = %q, want sorted columns starting with actors", header[0])
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, name := range []string{"url", "title", "genres", "rating"} {
		if _, ok := col[name]; !ok {
			t.Fatalf("header missing %q: %v", name, header)
		}
	}

	if got := rows[1][col["genres"]]; got != "Science-fiction; Drame" {
		t.Errorf("genres cell = %q", got)
	}
	if got := rows[2][col["rating"]]; got != "" {
		t.Errorf("absent rating cell = %q, want empty", got)
	}
	if got := rows[2][col["url"]]; !strings.Contains(got, "/film/alien/") {
		t.Errorf("url cell = %q", got)
	}
}

// --- Batcher Tests ---

func TestBatcherFlushesAtSize(t *testing.T) {
	dst := &memStorage{name: "mem"}
	b := NewBatcher(dst, 2)

	films := sampleFilms()
	for i := 0; i < 5; i++ {
		if err := b.Add(films[i%2]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if len(dst.batches) != 2 {
		t.Fatalf("got %d batches before close, want 2", len(dst.batches))
	}
	for i, batch := range dst.batches {
		if len(batch) != 2 {
			t.Errorf("batch %d size = %d, want 2", i, len(batch))
		}
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(dst.batches) != 3 || len(dst.batches[2]) != 1 {
		t.Errorf("close should flush the 1-film remainder, got %d batches", len(dst.batches))
	}
	if !dst.closed {
		t.Error("close should propagate to the sink")
	}
}

func TestBatcherSkipsEmptyFlush(t *testing.T) {
	dst := &memStorage{name: "mem"}
	b := NewBatcher(dst, 10)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(dst.batches) != 0 {
		t.Errorf("empty flush wrote %d batches", len(dst.batches))
	}
}

// --- Multi Storage Tests ---

func TestMultiStorageFanOut(t *testing.T) {
	a := &memStorage{name: "a"}
	b := &memStorage{name: "b"}
	multi := NewMultiStorage([]Storage{a, b}, testLogger())

	if err := multi.Store(sampleFilms()); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(a.batches) != 1 || len(b.batches) != 1 {
		t.Errorf("batches = (%d, %d), want both sinks written", len(a.batches), len(b.batches))
	}

	if err := multi.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("close should reach every sink")
	}
}

func TestMultiStorageReportsFirstError(t *testing.T) {
	bad := &memStorage{name: "bad", failStore: true}
	good := &memStorage{name: "good"}
	multi := NewMultiStorage([]Storage{bad, good}, testLogger())

	err := multi.Store(sampleFilms())
	if err == nil {
		t.Fatal("expected an error from the failing sink")
	}
	if len(good.batches) != 1 {
		t.Error("healthy sink should still receive the batch")
	}
}

// --- Path Tests ---

func TestOutputPathFor(t *testing.T) {
	tests := []struct {
		path string
		ext  string
		want string
	}{
		{"data/films.json", "json", "data/films.json"},
		{"data/films.json", "csv", "data/films.csv"},
		{"data/films.json", "jsonl", "data/films.jsonl"},
		{"export/out.custom", "json", "export/out.json"},
		{"", "jsonl", filepath.Join("data", "films.jsonl")},
	}
	for _, tt := range tests {
		if got := outputPathFor(tt.path, tt.ext); got != tt.want {
			t.Errorf("outputPathFor(%q, %q) = %q, want %q", tt.path, tt.ext, got, tt.want)
		}
	}
}

// --- Catalog Helper Tests ---

func TestBucketLabel(t *testing.T) {
	tests := []struct {
		id   any
		want string
	}{
		{int32(0), "0-2"},
		{int32(2), "2-4"},
		{float64(4), "4-6"},
		{int32(6), "6-8"},
		{int64(8), "8-10"},
		{"other", "other"},
	}
	for _, tt := range tests {
		if got := bucketLabel(tt.id); got != tt.want {
			t.Errorf("bucketLabel(%v) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
