package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Settings are the user-adjustable server settings, persisted as JSON in the
// data directory and editable through the API while the server runs.
type Settings struct {
	// APIKey guards every API route. Generated on first start.
	APIKey string `json:"apiKey"`
	// BaseURL is the externally visible address used when building proxy
	// download links.
	BaseURL string `json:"baseUrl"`
	// BlackholeDir, when set, enables saving .torrent files into a watch
	// directory instead of handing them to the browser.
	BlackholeDir string `json:"blackholeDir"`
}

const settingsFile = "server.json"

// SettingsService owns the mutable settings with concurrent readers.
type SettingsService struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewSettingsService loads the settings file, creating one with a fresh API
// key on first start.
func NewSettingsService(dataDir string, defaultBaseURL string, logger zerolog.Logger) (*SettingsService, error) {
	s := &SettingsService{
		path:   filepath.Join(dataDir, settingsFile),
		logger: logger.With().Str("component", "settings").Logger(),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.settings = Settings{
			APIKey:  strings.ReplaceAll(uuid.NewString(), "-", ""),
			BaseURL: defaultBaseURL,
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
		s.logger.Info().Msg("Generated new server settings")
	case err != nil:
		return nil, fmt.Errorf("read server settings: %w", err)
	default:
		if err := json.Unmarshal(data, &s.settings); err != nil {
			return nil, fmt.Errorf("parse server settings: %w", err)
		}
		if s.settings.BaseURL == "" {
			s.settings.BaseURL = defaultBaseURL
		}
	}

	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsService) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates and persists new settings. The API key is not editable
// through this path.
func (s *SettingsService) Update(next Settings) error {
	if next.BlackholeDir != "" {
		info, err := os.Stat(next.BlackholeDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("blackhole directory %q does not exist", next.BlackholeDir)
		}
	}
	if next.BaseURL == "" {
		return errors.New("base URL must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next.APIKey = s.settings.APIKey
	s.settings = next
	return s.persist()
}

// APIKey returns the key API clients must present.
func (s *SettingsService) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.APIKey
}

// BaseURL implements the link rewrite config contract.
func (s *SettingsService) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimRight(s.settings.BaseURL, "/")
}

// BlackholeDir implements the link rewrite config contract.
func (s *SettingsService) BlackholeDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.BlackholeDir
}

// persist writes the settings file. Callers hold the lock.
func (s *SettingsService) persist() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write server settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write server settings: %w", err)
	}
	return nil
}
