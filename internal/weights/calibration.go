package weights

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string `json:"version"` // Config version for future compatibility
	Tables  Tables `json:"tables"`  // Weight table overrides
}

// LoadCalibration loads weight tables from a JSON calibration file.
// Partial configurations are merged with defaults, so a file may override
// a single weight in a single table. On any error the defaults are
// returned alongside the error so callers can degrade gracefully.
func LoadCalibration(filePath string) (*Tables, error) {
	if filePath == "" {
		return DefaultTables(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultTables(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultTables(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultTables()
	merged := MergeCalibration(defaults, &config.Tables)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override tables into base tables. Only non-zero
// values from the override are applied, allowing partial overrides in the
// calibration file.
func MergeCalibration(base *Tables, override *Tables) *Tables {
	if base == nil {
		return DefaultTables()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base
	result.Base = mergeTable(base.Base, override.Base)
	result.Small = mergeTable(base.Small, override.Small)
	result.Medium = mergeTable(base.Medium, override.Medium)
	result.Large = mergeTable(base.Large, override.Large)
	result.Massive = mergeTable(base.Massive, override.Massive)
	return &result
}

// mergeTable applies non-zero override weights on top of a base table.
func mergeTable(base Table, override Table) Table {
	result := base
	if override.Message != 0 {
		result.Message = override.Message
	}
	if override.Share != 0 {
		result.Share = override.Share
	}
	if override.Bookmark != 0 {
		result.Bookmark = override.Bookmark
	}
	if override.Repost != 0 {
		result.Repost = override.Repost
	}
	return result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Tables, loaded *Tables) {
	var overrides []string

	tables := []struct {
		name string
		def  Table
		got  Table
	}{
		{"base", defaults.Base, loaded.Base},
		{"small", defaults.Small, loaded.Small},
		{"medium", defaults.Medium, loaded.Medium},
		{"large", defaults.Large, loaded.Large},
		{"massive", defaults.Massive, loaded.Massive},
	}

	for _, t := range tables {
		if t.got.Message != t.def.Message {
			overrides = append(overrides, fmt.Sprintf("%s.message: %.2f -> %.2f",
				t.name, t.def.Message, t.got.Message))
		}
		if t.got.Share != t.def.Share {
			overrides = append(overrides, fmt.Sprintf("%s.share: %.2f -> %.2f",
				t.name, t.def.Share, t.got.Share))
		}
		if t.got.Bookmark != t.def.Bookmark {
			overrides = append(overrides, fmt.Sprintf("%s.bookmark: %.2f -> %.2f",
				t.name, t.def.Bookmark, t.got.Bookmark))
		}
		if t.got.Repost != t.def.Repost {
			overrides = append(overrides, fmt.Sprintf("%s.repost: %.2f -> %.2f",
				t.name, t.def.Repost, t.got.Repost))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded weight calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded weight calibration (using all defaults)")
	}
}
