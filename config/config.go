// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the settings of a database comparison.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the values of a Config.
const (
	// EnvMaxAssignmentsKey overrides Diff.MaxAssignments.
	EnvMaxAssignmentsKey = "HPCDB_MAX_ASSIGNMENTS"
	// EnvPrecisionKey overrides Accuracy.Precision.
	EnvPrecisionKey = "HPCDB_PRECISION"
	// EnvGraceKey overrides Accuracy.Grace.
	EnvGraceKey = "HPCDB_GRACE"
	// EnvWorstKey overrides Accuracy.Worst.
	EnvWorstKey = "HPCDB_WORST"
	// EnvLogLevelKey overrides LogLevel.
	EnvLogLevelKey = "HPCDB_LOG_LEVEL"
)

// Config holds the settings of a comparison.
type Config struct {
	// LogLevel is the minimum level logged ("debug", "info", "warn",
	// "error"). Empty means info.
	LogLevel string         `yaml:"log_level"`
	Diff     DiffConfig     `yaml:"diff"`
	Accuracy AccuracyConfig `yaml:"accuracy"`
}

// DiffConfig configures the structural comparison.
type DiffConfig struct {
	// MaxAssignments bounds the assignments tried for a group of siblings
	// with equal keys.
	MaxAssignments int `yaml:"max_assignments"`
}

// AccuracyConfig configures the numeric comparison.
type AccuracyConfig struct {
	// Precision is the number of mantissa bits values are compared at.
	Precision int `yaml:"precision"`
	// Grace is the tolerated difference in units in the last place.
	Grace int `yaml:"grace"`
	// Worst is the number of failures reported, all of them if negative.
	Worst int `yaml:"worst"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Diff:     DiffConfig{MaxAssignments: 64},
		Accuracy: AccuracyConfig{Precision: 53, Grace: 1, Worst: 10},
	}
}

var errInvalid = errors.New("invalid configuration")

// Validate returns an error describing every invalid value of c.
func (c Config) Validate() error {
	var err error
	if c.Diff.MaxAssignments < 1 {
		err = errors.Join(err, fmt.Errorf("%w: diff.max_assignments %d is not positive", errInvalid, c.Diff.MaxAssignments))
	}
	if c.Accuracy.Precision < 1 || c.Accuracy.Precision > 53 {
		err = errors.Join(err, fmt.Errorf("%w: accuracy.precision %d not in [1, 53]", errInvalid, c.Accuracy.Precision))
	}
	if c.Accuracy.Grace < 0 {
		err = errors.Join(err, fmt.Errorf("%w: accuracy.grace %d is negative", errInvalid, c.Accuracy.Grace))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		err = errors.Join(err, fmt.Errorf("%w: log_level %q", errInvalid, c.LogLevel))
	}
	return err
}

// Load reads a YAML document from r over the defaults. Unknown keys are
// rejected.
func Load(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	return c, c.Validate()
}

// LoadFile reads the YAML configuration file at path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv returns c with the values of the set HPCDB_* environment
// variables, looked up with lookupEnv.
func (c Config) ApplyEnv(lookupEnv func(string) (string, bool)) (Config, error) {
	var err error
	setInt := func(key string, dst *int) {
		v, ok := lookupEnv(key)
		if !ok {
			return
		}
		n, e := strconv.Atoi(v)
		if e != nil {
			err = errors.Join(err, fmt.Errorf("invalid %s value: %s: %w", key, v, e))
			return
		}
		*dst = n
	}
	setInt(EnvMaxAssignmentsKey, &c.Diff.MaxAssignments)
	setInt(EnvPrecisionKey, &c.Accuracy.Precision)
	setInt(EnvGraceKey, &c.Accuracy.Grace)
	setInt(EnvWorstKey, &c.Accuracy.Worst)
	if v, ok := lookupEnv(EnvLogLevelKey); ok {
		c.LogLevel = v
	}
	if err != nil {
		return c, err
	}
	return c, c.Validate()
}
