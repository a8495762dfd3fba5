package config

import (
	"os"
	"path/filepath"
	"strings"

	"video-transcriber/internal/domain"
)

const (
	// DefaultEndpoint is the OpenAI-compatible transcription endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	// DefaultModel is the transcription model identifier sent with every request.
	DefaultModel = "whisper-1"
	// DefaultRequestTimeoutSeconds bounds one upload plus transcription.
	DefaultRequestTimeoutSeconds = 600

	appDirName = ".video-transcriber"
)

// AppDir returns the per-user directory holding settings, .env and logs.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, appDirName)
}

// DefaultSettingsPath is where the desktop app and CLI look for settings.
func DefaultSettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		Endpoint:              DefaultEndpoint,
		Model:                 DefaultModel,
		Language:              "auto",
		SaveDir:               filepath.Join(homeDir, "Documents", "Transcripts"),
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		LogFile:               filepath.Join(AppDir(), "diagnostic.log"),
	}
}

// Normalize trims user input and fills empty fields from defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.Endpoint = strings.TrimSpace(settings.Endpoint)
	settings.Model = strings.TrimSpace(settings.Model)
	settings.Language = strings.TrimSpace(settings.Language)
	settings.SaveDir = strings.TrimSpace(settings.SaveDir)
	settings.LogFile = strings.TrimSpace(settings.LogFile)

	if settings.Endpoint == "" {
		settings.Endpoint = defaults.Endpoint
	}
	if settings.Model == "" {
		settings.Model = defaults.Model
	}
	if settings.Language == "" {
		settings.Language = defaults.Language
	}
	if settings.SaveDir == "" {
		settings.SaveDir = defaults.SaveDir
	}
	if settings.RequestTimeoutSeconds <= 0 {
		settings.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if settings.LogFile == "" {
		settings.LogFile = defaults.LogFile
	}
	return settings
}
