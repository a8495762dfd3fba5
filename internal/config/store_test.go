package config

import (
	"os"
	"path/filepath"
	"testing"

	"video-transcriber/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Language != "auto" {
		t.Fatalf("language = %q, want auto", cfg.Language)
	}
	if cfg.Endpoint != DefaultEndpoint {
		t.Fatalf("endpoint = %q, want %q", cfg.Endpoint, DefaultEndpoint)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.SaveDir == "" {
		t.Fatal("expected non-empty save dir")
	}
	if cfg.RequestTimeout() <= 0 {
		t.Fatal("expected positive request timeout")
	}
}

// TestNormalizeFillsBlankFields checks trimming and default backfill.
func TestNormalizeFillsBlankFields(t *testing.T) {
	got := Normalize(domain.Settings{
		Endpoint: "  https://example.test/v1/audio/transcriptions ",
		Model:    " ",
		SaveDir:  " /out ",
	})

	if got.Endpoint != "https://example.test/v1/audio/transcriptions" {
		t.Fatalf("endpoint = %q", got.Endpoint)
	}
	if got.Model != DefaultModel {
		t.Fatalf("model = %q, want %q", got.Model, DefaultModel)
	}
	if got.SaveDir != "/out" {
		t.Fatalf("save dir = %q, want /out", got.SaveDir)
	}
	if got.Language != "auto" {
		t.Fatalf("language = %q, want auto", got.Language)
	}
	if got.RequestTimeoutSeconds != DefaultRequestTimeoutSeconds {
		t.Fatalf("timeout = %d", got.RequestTimeoutSeconds)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Model != DefaultModel {
		t.Fatalf("model = %q, want %q", got.Model, DefaultModel)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		Endpoint:              "https://example.test/v1/audio/transcriptions",
		Model:                 "whisper-large",
		Language:              "en",
		SaveDir:               "/out",
		RequestTimeoutSeconds: 30,
		LogFile:               "/logs/diag.log",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadPartialFileBackfills checks older settings files still load.
func TestJSONStoreLoadPartialFileBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"language":"de"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Language != "de" {
		t.Fatalf("language = %q, want de", got.Language)
	}
	if got.Endpoint != DefaultEndpoint {
		t.Fatalf("endpoint = %q, want default", got.Endpoint)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestJSONStoreLoadEmptyFileReturnsDefaults covers a file truncated mid-edit.
func TestJSONStoreLoadEmptyFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveLeavesNoTempFiles checks the atomic replace cleans up.
func TestJSONStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "settings.json"))

	for i := 0; i < 3; i++ {
		if err := store.Save(DefaultSettings()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "settings.json" {
		t.Fatalf("entries = %v, want only settings.json", entries)
	}
}
