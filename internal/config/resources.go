package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spacebook/internal/models"
	"spacebook/internal/schedule"
)

// ResourceConfig is a single bookable resource in resources.yaml.
type ResourceConfig struct {
	ID              int64                       `yaml:"id"`
	Name            string                      `yaml:"name"`
	Description     string                      `yaml:"description"`
	DurationMinutes int                         `yaml:"duration_minutes"`
	IsActive        bool                        `yaml:"is_active"`
	Schedule        map[string]*schedule.RawDay `yaml:"schedule,omitempty"`
}

// DefaultsConfig holds values applied to resources that omit them.
type DefaultsConfig struct {
	DurationMinutes int                         `yaml:"duration_minutes"`
	Schedule        map[string]*schedule.RawDay `yaml:"schedule"`
}

// ResourcesConfig is the root of resources.yaml.
type ResourcesConfig struct {
	Resources []ResourceConfig `yaml:"resources"`
	Defaults  DefaultsConfig   `yaml:"defaults"`
}

const defaultDurationMinutes = 60

// LoadResourcesConfig loads and validates resources configuration from YAML file.
func LoadResourcesConfig(path string) (*ResourcesConfig, error) {
	if path == "" {
		path = "configs/resources.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources config: %w", err)
	}

	var cfg ResourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse resources config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate resources config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors. Malformed clock values are
// not rejected here; the schedule normalizer replaces them with defaults.
func (c *ResourcesConfig) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("no resources defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)

	for i, r := range c.Resources {
		if r.ID <= 0 {
			return fmt.Errorf("resource[%d]: id must be positive, got %d", i, r.ID)
		}
		if ids[r.ID] {
			return fmt.Errorf("resource[%d]: duplicate id %d", i, r.ID)
		}
		ids[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("resource[%d]: duplicate name '%s'", i, r.Name)
		}
		names[r.Name] = true

		if r.DurationMinutes < 0 {
			return fmt.Errorf("resource[%d]: duration_minutes cannot be negative", i)
		}
		if err := validateWeekdays(r.Schedule, fmt.Sprintf("resource[%d].schedule", i)); err != nil {
			return err
		}
	}

	if c.Defaults.DurationMinutes < 0 {
		return fmt.Errorf("defaults.duration_minutes cannot be negative")
	}
	return validateWeekdays(c.Defaults.Schedule, "defaults.schedule")
}

func validateWeekdays(days map[string]*schedule.RawDay, prefix string) error {
	for name := range days {
		if _, err := ParseWeekday(name); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

func (c *ResourcesConfig) applyDefaults() {
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.DurationMinutes == 0 {
			r.DurationMinutes = c.Defaults.DurationMinutes
		}
		if r.DurationMinutes == 0 {
			r.DurationMinutes = defaultDurationMinutes
		}
		if len(r.Schedule) == 0 && len(c.Defaults.Schedule) > 0 {
			r.Schedule = c.Defaults.Schedule
		}
	}
}

// Week returns the normalized weekly schedule of a resource. Problems are
// returned for logging; the definitions are always complete.
func (r *ResourceConfig) Week() ([]models.DayScheduleDefinition, []error) {
	raw := make(map[time.Weekday]*schedule.RawDay, len(r.Schedule))
	for name, day := range r.Schedule {
		wd, err := ParseWeekday(name)
		if err != nil {
			continue
		}
		raw[wd] = day
	}
	return schedule.NormalizeWeek(raw)
}

// Model converts the config entry to a resource model.
func (r *ResourceConfig) Model() models.Resource {
	return models.Resource{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
		IsActive:        r.IsActive,
	}
}

// GetResourceByID returns resource config by ID.
func (c *ResourcesConfig) GetResourceByID(id int64) *ResourceConfig {
	for i := range c.Resources {
		if c.Resources[i].ID == id {
			return &c.Resources[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *ResourcesConfig) String() string {
	active := 0
	for _, r := range c.Resources {
		if r.IsActive {
			active++
		}
	}
	return fmt.Sprintf("ResourcesConfig: %d resources (%d active)", len(c.Resources), active)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts English weekday names and three-letter abbreviations.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}
