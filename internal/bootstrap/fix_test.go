package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"video-transcriber/internal/domain"
	"video-transcriber/internal/logging"
	"video-transcriber/internal/media"
)

// scriptedRunner records commands and fails the ones listed.
type scriptedRunner struct {
	calls []string
	fail  map[string]bool
}

// Run records the command line.
func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (media.CommandResult, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	if r.fail[line] {
		return media.CommandResult{Stderr: "permission denied", ExitCode: 1}, errors.New("exit status 1")
	}
	return media.CommandResult{}, nil
}

func lookPathIn(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

// TestToolInstallerFallsBackToSudo checks Linux elevation order.
func TestToolInstallerFallsBackToSudo(t *testing.T) {
	runner := &scriptedRunner{fail: map[string]bool{
		"apt-get update": true,
	}}
	installer := toolInstaller{
		runner:   runner,
		lookPath: lookPathIn("apt-get", "sudo", "ffmpeg", "ffprobe"),
		goos:     "linux",
		log:      logging.Discard(),
	}

	err := installer.install(context.Background(), ffmpegInstallPlans("linux"), "ffmpeg", "ffprobe")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{
		"apt-get update",
		"sudo -n apt-get update",
		"apt-get install -y ffmpeg",
	}
	if strings.Join(runner.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("calls = %q, want %q", runner.calls, want)
	}
}

// TestToolInstallerTriesNextManager checks plan fallback and error reporting.
func TestToolInstallerTriesNextManager(t *testing.T) {
	runner := &scriptedRunner{fail: map[string]bool{
		"brew install ffmpeg": true,
	}}
	installer := toolInstaller{
		runner:   runner,
		lookPath: lookPathIn("brew"),
		goos:     "darwin",
		log:      logging.Discard(),
	}

	err := installer.install(context.Background(), ffmpegInstallPlans("darwin"), "ffmpeg")
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("error = %v, want stderr detail", err)
	}

	installer.lookPath = lookPathIn()
	err = installer.install(context.Background(), ffmpegInstallPlans("darwin"), "ffmpeg")
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("error = %v, want missing manager", err)
	}
}

// TestToolInstallerVerifiesTools checks that a silent install is still caught.
func TestToolInstallerVerifiesTools(t *testing.T) {
	installer := toolInstaller{
		runner:   &scriptedRunner{},
		lookPath: lookPathIn("winget", "ffmpeg"),
		goos:     "windows",
		log:      logging.Discard(),
	}

	err := installer.install(context.Background(), ffmpegInstallPlans("windows"), "ffmpeg", "ffprobe")
	if err == nil || !strings.Contains(err.Error(), "ffprobe") {
		t.Fatalf("error = %v, want missing ffprobe", err)
	}
}

// TestFixSettings covers the settings-backed remediations.
func TestFixSettings(t *testing.T) {
	saveDir := filepath.Join(t.TempDir(), "nested", "transcripts")

	fixed, changed, err := fixSettings("save_dir", domain.Settings{SaveDir: saveDir})
	if err != nil || changed {
		t.Fatalf("save_dir fix: changed=%v err=%v", changed, err)
	}
	if info, err := os.Stat(saveDir); err != nil || !info.IsDir() {
		t.Fatalf("save dir not created: %v", err)
	}
	if fixed.SaveDir != saveDir {
		t.Fatalf("SaveDir = %s", fixed.SaveDir)
	}

	fixed, changed, err = fixSettings("language", domain.Settings{Language: "klingon!"})
	if err != nil || !changed || fixed.Language != "auto" {
		t.Fatalf("language fix = %+v changed=%v err=%v", fixed, changed, err)
	}

	fixed, changed, err = fixSettings("endpoint", domain.Settings{Endpoint: "::"})
	if err != nil || !changed || !strings.HasPrefix(fixed.Endpoint, "https://") {
		t.Fatalf("endpoint fix = %+v changed=%v err=%v", fixed, changed, err)
	}

	if _, _, err := fixSettings("unknown", domain.Settings{}); err == nil {
		t.Fatal("expected unsupported item error")
	}
}

// TestEnsureLocalBinOnPATH checks the tool dir is prepended once.
func TestEnsureLocalBinOnPATH(t *testing.T) {
	appDir := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureLocalBinOnPATH(appDir); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := ensureLocalBinOnPATH(appDir); err != nil {
		t.Fatalf("second call: %v", err)
	}

	entries := filepath.SplitList(os.Getenv("PATH"))
	if len(entries) != 2 || entries[0] != filepath.Join(appDir, "bin") {
		t.Fatalf("PATH = %v", entries)
	}
}

// noisyRunner fails every command with the same stderr.
type noisyRunner struct {
	stderr string
}

// Run always fails.
func (r noisyRunner) Run(ctx context.Context, name string, args ...string) (media.CommandResult, error) {
	return media.CommandResult{Stderr: r.stderr, ExitCode: 100}, errors.New("exit status 100")
}

// TestRunElevatedTruncatesStderrOnRuneBoundary checks long localized
// package-manager output stays valid UTF-8 in the error.
func TestRunElevatedTruncatesStderrOnRuneBoundary(t *testing.T) {
	stderr := "x" + strings.Repeat("ошибка ", 200)
	installer := toolInstaller{
		runner:   noisyRunner{stderr: stderr},
		lookPath: lookPathIn(),
		goos:     "linux",
		log:      logging.Discard(),
	}

	err := installer.runElevated(context.Background(), []string{"apt-get", "update"})
	if err == nil {
		t.Fatal("expected failure")
	}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("error is not valid UTF-8: %q", msg)
	}
	if !strings.Contains(msg, "...)") {
		t.Fatalf("expected truncated detail, got %q", msg)
	}

	if got := truncateRunes("короткий", 500); got != "короткий" {
		t.Fatalf("short detail changed: %q", got)
	}
	if got := truncateRunes("ёжик", 2); got != "ёж..." {
		t.Fatalf("truncateRunes = %q", got)
	}
}
