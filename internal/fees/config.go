package fees

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a tier table.
type File struct {
	MinDaysLate *int       `yaml:"min_days_late"`
	Tiers       []TierSpec `yaml:"tiers"`
}

// LoadYAML reads a tier table. When the document omits min_days_late, minDaysLate is used.
func LoadYAML(r io.Reader, minDaysLate int) (Schedule, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Schedule{}, fmt.Errorf("failed to decode fee schedule: %w", err)
	}

	if f.MinDaysLate != nil {
		minDaysLate = *f.MinDaysLate
	}
	return NewSchedule(minDaysLate, f.Tiers)
}

// Load builds the schedule used at startup: the tier table from path if set,
// the standard tiers otherwise.
func Load(path string, minDaysLate int) (Schedule, error) {
	if path == "" {
		return NewSchedule(minDaysLate, StandardTiers())
	}

	file, err := os.Open(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to open fee schedule: %w", err)
	}
	defer file.Close()

	return LoadYAML(file, minDaysLate)
}
