package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
)

const (
	MinFontSize     = 50
	MaxFontSize     = 200
	DefaultFontSize = 100
)

// Preferences are display settings kept on the reader's machine only.
type Preferences struct {
	Theme    Theme `json:"theme"`
	FontSize int   `json:"fontSize"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, FontSize: DefaultFontSize}
}

func ParseTheme(raw string) (Theme, error) {
	switch t := Theme(raw); t {
	case ThemeLight, ThemeDark, ThemeSepia:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q", raw)
	}
}

func (p Preferences) Validate() error {
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		return err
	}
	if p.FontSize < MinFontSize || p.FontSize > MaxFontSize {
		return fmt.Errorf("font size must be between %d and %d", MinFontSize, MaxFontSize)
	}
	return nil
}

// PreferencesStore reads and writes Preferences as a JSON file.
type PreferencesStore struct {
	path string
}

func NewPreferencesStore(path string) *PreferencesStore {
	return &PreferencesStore{path: path}
}

// DefaultPreferencesPath is the per-user location of the preferences file.
func DefaultPreferencesPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ananse-reader", "preferences.json"), nil
}

// Load returns defaults when the file is missing. Invalid fields fall back to
// their defaults and the problem is reported.
func (s *PreferencesStore) Load() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return DefaultPreferences(), fmt.Errorf("read preferences: %w", err)
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultPreferences(), fmt.Errorf("parse preferences: %w", err)
	}
	defaults := DefaultPreferences()
	var problems []error
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		if p.Theme != "" {
			problems = append(problems, err)
		}
		p.Theme = defaults.Theme
	}
	if p.FontSize == 0 {
		p.FontSize = defaults.FontSize
	} else if p.FontSize < MinFontSize || p.FontSize > MaxFontSize {
		problems = append(problems, fmt.Errorf("font size %d out of range", p.FontSize))
		p.FontSize = defaults.FontSize
	}
	return p, errors.Join(problems...)
}

// Save validates p and replaces the file atomically.
func (s *PreferencesStore) Save(p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".preferences-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
