package diagnostics

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"video-transcriber/internal/config"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/transcript"
)

// Checker validates external tools, the API credential and writable paths.
type Checker struct {
	lookPath   func(string) (string, error)
	credential func() (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		credential: config.LoadCredential,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	credential func() (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		credential: credential,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkCredential(),
		checkEndpoint(settings.Endpoint),
		checkLanguage(settings.Language),
		c.checkSaveDir(settings.SaveDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install FFmpeg and ensure the binary is available on PATH before starting a transcription.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkCredential reports whether an API key is reachable. The key itself
// never appears in the report.
func (c *Checker) checkCredential() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_key",
		Name: "API key",
	}

	key, err := c.credential()
	if err != nil || strings.TrimSpace(key) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No transcription API key configured."
		item.Hint = fmt.Sprintf(
			"Set %s (or %s) in the environment or in %s.",
			config.EnvAPIKey, config.EnvOpenAIAPIKey, strings.Join(config.EnvFiles(), ", "),
		)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key found."
	return item
}

// checkEndpoint requires an absolute http(s) URL.
func checkEndpoint(endpoint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "endpoint",
		Name: "Transcription endpoint",
	}

	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid endpoint: %q", endpoint)
		item.Hint = "Use an absolute URL such as " + config.DefaultEndpoint + "."
		return item
	}
	if u.Scheme == "http" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Endpoint is not encrypted: %s", u.Redacted())
		item.Hint = "The API key is sent in clear text over http."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = u.Redacted()
	return item
}

// checkLanguage warns about hints the service would reject.
func checkLanguage(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "language",
		Name: "Language hint",
	}

	code, err := transcript.ParseHint(raw)
	switch {
	case err != nil:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = err.Error()
		item.Hint = `Use an ISO-639-1 code such as "en" or "auto" for detection.`
	case code == "":
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Automatic language detection."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Language hint: " + code
	}
	return item
}

// checkSaveDir validates the default save directory and write access.
func (c *Checker) checkSaveDir(saveDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "save_dir",
		Name: "Save directory",
	}

	if strings.TrimSpace(saveDir) == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Save directory is empty."
		item.Hint = "Transcripts can still be saved anywhere through the save dialog."
		return item
	}

	if err := c.mkdirAll(saveDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create save directory: %s", saveDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(saveDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Save directory is not writable: %s", saveDir)
		item.Hint = "Choose a writable directory for transcript files."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", saveDir)
	return item
}
