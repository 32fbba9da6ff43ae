package studio

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/catalog"
)

// Config is the studio's feature configuration, read from a TOML file.
type Config struct {
	Timezone   string     `toml:"timezone"`
	WorkWindow WorkWindow `toml:"work_window"`
	Catalog    Catalog    `toml:"catalog"`

	loc *time.Location
}

type WorkWindow struct {
	StartHour   int `toml:"start_hour"`
	EndHour     int `toml:"end_hour"`
	StepMinutes int `toml:"step_minutes"`
}

type Catalog struct {
	Cards []catalog.Rule `toml:"cards"`
}

func Default() Config {
	return Config{
		Timezone:   "UTC",
		WorkWindow: WorkWindow{StartHour: 9, EndHour: 18, StepMinutes: availability.DefaultStepMinutes},
		Catalog:    Catalog{Cards: catalog.DefaultRules()},
		loc:        time.UTC,
	}
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg := blank()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("studio config %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(data string) (Config, error) {
	cfg := blank()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("studio config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// blank is Default without catalog cards; the decoder reuses slice elements, so
// defaults would bleed into cards the file declares.
func blank() Config {
	cfg := Default()
	cfg.Catalog.Cards = nil
	return cfg
}

func (c *Config) finish() error {
	if c.Catalog.Cards == nil {
		c.Catalog.Cards = catalog.DefaultRules()
	}
	if c.WorkWindow.StepMinutes == 0 {
		c.WorkWindow.StepMinutes = availability.DefaultStepMinutes
	}
	if err := c.validate(); err != nil {
		return err
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("studio config: timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc
	return nil
}

func (c Config) validate() error {
	w := c.WorkWindow
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("studio config: work_window hours must be within 0-23")
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("studio config: work_window start_hour must be before end_hour")
	}
	if w.StepMinutes < 0 {
		return fmt.Errorf("studio config: work_window step_minutes must be positive")
	}
	if c.Timezone == "" {
		return fmt.Errorf("studio config: timezone is required")
	}
	return nil
}

// Location is the zone calendar days and slot labels are expressed in.
func (c Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Config) Window() availability.WorkWindow {
	return availability.WorkWindow{
		StartHour:   c.WorkWindow.StartHour,
		EndHour:     c.WorkWindow.EndHour,
		StepMinutes: c.WorkWindow.StepMinutes,
	}
}
