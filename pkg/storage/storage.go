// Package storage persists the device configuration as a JSON file.
// Writes are atomic: the file is written to a temp file in the same
// directory, synced, then renamed over the original, so a power cut
// mid-save never leaves a torn config behind.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quickshifter-go/pkg/engine"
)

// Limits carried over from the device: up to ten named cut maps, map
// names capped at 32 bytes.
const (
	MaxMaps    = 10
	MaxNameLen = 32
)

// Common errors
var (
	ErrNoMaps          = errors.New("storage: config must contain at least one cut map")
	ErrTooManyMaps     = errors.New("storage: too many cut maps")
	ErrNameTooLong     = errors.New("storage: cut map name too long")
	ErrInvalidMapIndex = errors.New("storage: active map index out of range")
)

// CutMap is one named cut-time map.
type CutMap struct {
	Name       string                         `json:"name"`
	CutTimeMap [engine.NumBuckets]uint16 `json:"cutTimeMs"`
}

// MapSet is the quickshifter configuration: the shared threshold and
// debounce plus the named cut maps and the index of the active one.
type MapSet struct {
	MinRPMThreshold uint16   `json:"minRpmThreshold"`
	DebounceTimeMs  uint16   `json:"debounceTimeMs"`
	ActiveMap       int      `json:"activeMap"`
	Maps            []CutMap `json:"maps"`
}

// Validate checks the bounds the core deliberately does not enforce.
func (m *MapSet) Validate() error {
	if len(m.Maps) == 0 {
		return ErrNoMaps
	}
	if len(m.Maps) > MaxMaps {
		return fmt.Errorf("%w: %d > %d", ErrTooManyMaps, len(m.Maps), MaxMaps)
	}
	for i, cm := range m.Maps {
		if len(cm.Name) > MaxNameLen {
			return fmt.Errorf("%w: map %d", ErrNameTooLong, i)
		}
	}
	if m.ActiveMap < 0 || m.ActiveMap >= len(m.Maps) {
		return fmt.Errorf("%w: %d", ErrInvalidMapIndex, m.ActiveMap)
	}
	return nil
}

// ServerConfig holds the HTTP/telemetry settings.
type ServerConfig struct {
	Addr              string `json:"addr"`
	TelemetryPeriodMs uint16 `json:"telemetryPeriodMs"`
}

// TelemetryPeriod returns the websocket broadcast interval.
func (c ServerConfig) TelemetryPeriod() time.Duration {
	return time.Duration(c.TelemetryPeriodMs) * time.Millisecond
}

// SystemConfig is the complete persisted configuration.
type SystemConfig struct {
	QuickShift MapSet       `json:"quickshift"`
	Server     ServerConfig `json:"server"`
}

// DefaultSystemConfig returns the factory configuration: one map named
// "Default" with 80 ms in every bucket, 3000 RPM threshold, 50 ms
// debounce, telemetry every 100 ms.
func DefaultSystemConfig() SystemConfig {
	var cuts [engine.NumBuckets]uint16
	for i := range cuts {
		cuts[i] = 80
	}
	return SystemConfig{
		QuickShift: MapSet{
			MinRPMThreshold: 3000,
			DebounceTimeMs:  50,
			ActiveMap:       0,
			Maps: []CutMap{
				{Name: "Default", CutTimeMap: cuts},
			},
		},
		Server: ServerConfig{
			Addr:              ":8080",
			TelemetryPeriodMs: 100,
		},
	}
}

// Store owns the configuration file.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  SystemConfig
}

// Open loads the configuration at path. A missing file yields the
// defaults with no error; an unreadable or corrupt file yields the
// defaults and the error, so the caller can log and keep running.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		cfg:  DefaultSystemConfig(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("storage: read %s: %w", path, err)
	}

	var cfg SystemConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return s, fmt.Errorf("storage: parse %s: %w", path, err)
	}
	if err := cfg.QuickShift.Validate(); err != nil {
		return s, fmt.Errorf("storage: %s: %w", path, err)
	}
	s.cfg = cfg
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// System returns a copy of the full configuration.
func (s *Store) System() SystemConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() SystemConfig {
	out := s.cfg
	out.QuickShift.Maps = make([]CutMap, len(s.cfg.QuickShift.Maps))
	copy(out.QuickShift.Maps, s.cfg.QuickShift.Maps)
	return out
}

// ActiveEngineConfig flattens the active cut map into an engine
// configuration snapshot.
func (s *Store) ActiveEngineConfig() engine.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs := s.cfg.QuickShift
	cfg := engine.Config{
		MinRPMThreshold: qs.MinRPMThreshold,
		DebounceTimeMs:  qs.DebounceTimeMs,
	}
	if qs.ActiveMap >= 0 && qs.ActiveMap < len(qs.Maps) {
		cfg.CutTimeMap = qs.Maps[qs.ActiveMap].CutTimeMap
	} else {
		cfg.CutTimeMap = engine.DefaultConfig().CutTimeMap
	}
	return cfg
}

// ReplaceQuickShift validates and persists a new map set.
func (s *Store) ReplaceQuickShift(ms MapSet) error {
	if err := ms.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg.QuickShift
	s.cfg.QuickShift = ms
	if err := s.saveLocked(); err != nil {
		s.cfg.QuickShift = prev
		return err
	}
	return nil
}

// SetActiveMap switches the active cut map and persists the change.
func (s *Store) SetActiveMap(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.cfg.QuickShift.Maps) {
		return fmt.Errorf("%w: %d", ErrInvalidMapIndex, index)
	}
	prev := s.cfg.QuickShift.ActiveMap
	s.cfg.QuickShift.ActiveMap = index
	if err := s.saveLocked(); err != nil {
		s.cfg.QuickShift.ActiveMap = prev
		return err
	}
	return nil
}

// ReplaceServer persists new server settings.
func (s *Store) ReplaceServer(sc ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg.Server
	s.cfg.Server = sc
	if err := s.saveLocked(); err != nil {
		s.cfg.Server = prev
		return err
	}
	return nil
}

// Save writes the current configuration to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(&s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".qsconfig-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: rename temp file: %w", err)
	}
	return nil
}
