// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and validates escrowd settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bitfsorg/milestone-escrow/identity"
)

// Store backends.
const (
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// DefaultProgramID names the program when no id is configured.
var DefaultProgramID = identity.LabelAddress("milestone-escrow")

// Config holds the daemon settings.
type Config struct {
	DataDir       string
	ListenAddr    string
	MetricsAddr   string // empty serves /metrics on ListenAddr only
	ProgramID     string
	IssuerAddress string // empty disables issuance
	LogLevel      string
	LogFile       string
	StoreBackend  string
	RequestWindow time.Duration
}

// fileConfig is the on-disk key mapping.
type fileConfig struct {
	DataDir       string `toml:"datadir"`
	ListenAddr    string `toml:"listen"`
	MetricsAddr   string `toml:"metrics_listen"`
	ProgramID     string `toml:"program_id"`
	IssuerAddress string `toml:"issuer"`
	LogLevel      string `toml:"loglevel"`
	LogFile       string `toml:"logfile"`
	StoreBackend  string `toml:"store"`
	RequestWindow string `toml:"request_window"`
}

// DefaultDataDir returns ~/.escrow, or .escrow if the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".escrow"
	}
	return filepath.Join(home, ".escrow")
}

// DefaultConfig returns the settings used for keys absent from the file.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		ListenAddr:    ":8080",
		ProgramID:     DefaultProgramID.String(),
		LogLevel:      "info",
		StoreBackend:  BackendBolt,
		RequestWindow: 5 * time.Minute,
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// StorePath returns the bolt database location inside cfg.DataDir.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "escrow.db")
}

// Program returns the parsed program id.
func (c Config) Program() (identity.Address, error) {
	addr, err := identity.ParseAddress(c.ProgramID)
	if err != nil || addr.IsZero() {
		return identity.Zero, fmt.Errorf("%w: %q", ErrInvalidProgramID, c.ProgramID)
	}
	return addr, nil
}

// Issuer returns the parsed issuer address and whether issuance is enabled.
func (c Config) Issuer() (identity.Address, bool, error) {
	if c.IssuerAddress == "" {
		return identity.Zero, false, nil
	}
	addr, err := identity.ParseAddress(c.IssuerAddress)
	if err != nil || addr.IsZero() {
		return identity.Zero, false, fmt.Errorf("%w: %q", ErrInvalidIssuer, c.IssuerAddress)
	}
	return addr, true, nil
}

// LoadConfig reads path and overlays the keys it defines on DefaultConfig.
// Unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfigFile, err)
	}

	if meta.IsDefined("datadir") {
		cfg.DataDir = strings.TrimSpace(raw.DataDir)
	}
	if meta.IsDefined("listen") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("metrics_listen") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("program_id") {
		cfg.ProgramID = strings.TrimSpace(raw.ProgramID)
	}
	if meta.IsDefined("issuer") {
		cfg.IssuerAddress = strings.TrimSpace(raw.IssuerAddress)
	}
	if meta.IsDefined("loglevel") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("logfile") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("store") {
		cfg.StoreBackend = strings.TrimSpace(raw.StoreBackend)
	}
	if meta.IsDefined("request_window") {
		window, err := time.ParseDuration(strings.TrimSpace(raw.RequestWindow))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidRequestWindow, err)
		}
		cfg.RequestWindow = window
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as TOML, creating the parent directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("config: create file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# Escrow Configuration\n\n"); err != nil {
		return fmt.Errorf("config: write header: %w", err)
	}
	raw := fileConfig{
		DataDir:       cfg.DataDir,
		ListenAddr:    cfg.ListenAddr,
		MetricsAddr:   cfg.MetricsAddr,
		ProgramID:     cfg.ProgramID,
		IssuerAddress: cfg.IssuerAddress,
		LogLevel:      cfg.LogLevel,
		LogFile:       cfg.LogFile,
		StoreBackend:  cfg.StoreBackend,
		RequestWindow: cfg.RequestWindow.String(),
	}
	if err := toml.NewEncoder(f).Encode(raw); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return f.Close()
}
