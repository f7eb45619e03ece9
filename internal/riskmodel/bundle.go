// Package riskmodel runs the hybrid discontinuation risk models.
package riskmodel

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Artifact file names inside a model bundle directory.
const (
	PrimaryModelFile  = "xgb_high_recall.onnx"
	OverrideModelFile = "dt_high_recall.onnx"
	HybridConfigFile  = "hybrid_v3_config.json"
)

// Hybrid rule defaults, used when the bundle carries no config file.
const (
	DefaultThreshold        = 0.15
	DefaultConfidenceMargin = 0.2
	DefaultModelVersion     = "v3"
)

// HybridConfig holds the decision constants for the hybrid rule.
type HybridConfig struct {
	ModelVersion     string  `json:"model_version"`
	Threshold        float64 `json:"threshold_v3"`
	ConfidenceMargin float64 `json:"conf_margin_v3"`
}

// DefaultHybridConfig returns the built-in decision constants.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		ModelVersion:     DefaultModelVersion,
		Threshold:        DefaultThreshold,
		ConfidenceMargin: DefaultConfidenceMargin,
	}
}

// Validate rejects thresholds outside (0, 1) and negative or non-finite margins.
func (c HybridConfig) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold %v outside (0, 1)", c.Threshold)
	}
	if math.IsNaN(c.ConfidenceMargin) || math.IsInf(c.ConfidenceMargin, 0) || c.ConfidenceMargin < 0 {
		return fmt.Errorf("confidence margin %v must be a non-negative number", c.ConfidenceMargin)
	}
	return nil
}

// Bundle locates the artifacts of one model version.
type Bundle struct {
	PrimaryPath  string
	OverridePath string
	ConfigPath   string
}

// BundleFromDir returns the standard layout under dir.
func BundleFromDir(dir string) Bundle {
	return Bundle{
		PrimaryPath:  filepath.Join(dir, PrimaryModelFile),
		OverridePath: filepath.Join(dir, OverrideModelFile),
		ConfigPath:   filepath.Join(dir, HybridConfigFile),
	}
}

// LoadHybridConfig reads the decision constants. A missing file yields the
// defaults; a present but malformed file is an error. Fields absent from the
// file keep their default values.
func LoadHybridConfig(path string) (HybridConfig, error) {
	cfg := DefaultHybridConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read hybrid config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse hybrid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("hybrid config %s: %w", path, err)
	}
	return cfg, nil
}
