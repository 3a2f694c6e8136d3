// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidListenAddr indicates the listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidMetricsAddr indicates the metrics listen address is malformed.
	ErrInvalidMetricsAddr = errors.New("config: invalid metrics address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidStoreBackend indicates the store backend is not recognized.
	ErrInvalidStoreBackend = errors.New("config: invalid store backend (must be \"bolt\" or \"memory\")")

	// ErrInvalidProgramID indicates the program id is not a 40-char hex address.
	ErrInvalidProgramID = errors.New("config: invalid program id")

	// ErrInvalidIssuer indicates the issuer is set but not a valid address.
	ErrInvalidIssuer = errors.New("config: invalid issuer address")

	// ErrInvalidRequestWindow indicates the signed request window is not a positive duration.
	ErrInvalidRequestWindow = errors.New("config: invalid request window")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigFile indicates the configuration file is not valid TOML.
	ErrInvalidConfigFile = errors.New("config: invalid configuration file")
)
