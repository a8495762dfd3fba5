package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables consulted for the API credential, in priority order.
const (
	EnvAPIKey       = "TRANSCRIBER_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvFile points at an extra .env file loaded before the defaults.
	EnvFile = "TRANSCRIBER_ENV"
)

// ErrMissingCredential is returned when no API key is configured anywhere.
var ErrMissingCredential = errors.New("transcription API key is not configured")

// EnvFiles lists the .env files LoadCredential reads, first match wins
// per variable since godotenv never overrides an existing value.
func EnvFiles() []string {
	files := make([]string, 0, 3)
	if p := strings.TrimSpace(os.Getenv(EnvFile)); p != "" {
		files = append(files, p)
	}
	files = append(files, filepath.Join(AppDir(), ".env"), ".env")
	return files
}

// LoadCredential loads .env files into the process environment and returns
// the API key. Missing files are skipped.
func LoadCredential() (string, error) {
	for _, path := range EnvFiles() {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", err
		}
	}

	for _, name := range []string{EnvAPIKey, EnvOpenAIAPIKey} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, nil
		}
	}
	return "", ErrMissingCredential
}
