/*
Package game
File: state.go
Description:
    Holds the tunable balance of the client and loads it from 'balance.yaml'.
    Values missing from the file keep their defaults, so an empty file is a
    valid configuration. Environment variables (GALAXIES_*) win over the file.
*/

package game

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// TravelBalance controls the cost and duration of moves on the system plane.
type TravelBalance struct {
	BatteryCostPerUnit float64       `yaml:"battery_cost_per_unit" json:"battery_cost_per_unit"`
	TimePerUnitMs      float64       `yaml:"time_per_unit_ms" json:"time_per_unit_ms"`
	Poll               time.Duration `yaml:"poll" json:"poll"`
	MaxRelocateRadius  int           `yaml:"max_relocate_radius" json:"max_relocate_radius"`
	Atomic             bool          `yaml:"atomic" json:"atomic"` // one start_travel procedure instead of two row updates
}

// BatteryBalance controls the regeneration loop.
type BatteryBalance struct {
	Tick         time.Duration `yaml:"tick" json:"tick"`
	DefaultRate  float64       `yaml:"default_rate" json:"default_rate"`
	PersistEvery time.Duration `yaml:"persist_every" json:"persist_every"`
}

// WorldBalance controls system object interaction.
type WorldBalance struct {
	InteractYield float64 `yaml:"interact_yield" json:"interact_yield"`
}

// HarvestBalance controls the landing scene.
type HarvestBalance struct {
	Frame        time.Duration `yaml:"frame" json:"frame"`
	CollectEvery time.Duration `yaml:"collect_every" json:"collect_every"`
	VisionRange  int           `yaml:"vision_range" json:"vision_range"`
	ScanRange    int           `yaml:"scan_range" json:"scan_range"`
	ScanDuration time.Duration `yaml:"scan_duration" json:"scan_duration"`
	SurfaceMaxX  int           `yaml:"surface_max_x" json:"surface_max_x"`
	Steps        []RateStep    `yaml:"steps" json:"steps"`
}

// Rate applies the configured staircase to a surface distance.
func (h HarvestBalance) Rate(d int) float64 {
	return HarvestRateSteps(h.Steps, d)
}

// StoreConfig selects the collaborator backend.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "sqlite3" (cgo) or "sqlite" (pure Go)
	DSN    string `yaml:"dsn" json:"dsn"`
	Seed   bool   `yaml:"seed" json:"seed"` // create a demo session + character on first boot
}

// ServerConfig configures the local adapter.
type ServerConfig struct {
	Addr   string `yaml:"addr" json:"addr"`
	Token  string `yaml:"token" json:"-"`
	LogDir string `yaml:"log_dir" json:"log_dir"`
}

// Config is the root configuration struct, mapping to the entire 'balance.yaml' file.
type Config struct {
	Travel  TravelBalance  `yaml:"travel" json:"travel"`
	Battery BatteryBalance `yaml:"battery" json:"battery"`
	World   WorldBalance   `yaml:"world" json:"world"`
	Harvest HarvestBalance `yaml:"harvest" json:"harvest"`
	Hulls   []HullPreset   `yaml:"hulls" json:"hulls"`
	Store   StoreConfig    `yaml:"store" json:"-"`
	Server  ServerConfig   `yaml:"server" json:"-"`
}

// DefaultConfig returns the canonical balance.
func DefaultConfig() Config {
	return Config{
		Travel: TravelBalance{
			BatteryCostPerUnit: 0.2,
			TimePerUnitMs:      1000,
			Poll:               time.Second,
			MaxRelocateRadius:  30,
			Atomic:             true,
		},
		Battery: BatteryBalance{
			Tick:         time.Second,
			DefaultRate:  2,
			PersistEvery: 5 * time.Second,
		},
		World: WorldBalance{InteractYield: 10},
		Harvest: HarvestBalance{
			Frame:        50 * time.Millisecond,
			CollectEvery: 700 * time.Millisecond,
			VisionRange:  10,
			ScanRange:    25,
			ScanDuration: 12 * time.Second,
			SurfaceMaxX:  500,
			Steps:        append([]RateStep(nil), DefaultHarvestSteps...),
		},
		Hulls: []HullPreset{
			{Key: "scout", EnginePower: 5, Battery: 300, Cargo: 15, Shield: 80, Hull: 90, Regen: 2, Radar: 12},
			{Key: "freighter", EnginePower: 2, Battery: 600, Cargo: 40, Shield: 120, Hull: 200, Regen: 2, Radar: 8},
			{Key: "explorer", EnginePower: 4, Battery: 500, Cargo: 25, Shield: 100, Hull: 120, Regen: 2, Radar: 10},
		},
		Store:  StoreConfig{Driver: "sqlite3", DSN: "./data/galaxies.db"},
		Server: ServerConfig{Addr: ":8082", LogDir: "./logs"},
	}
}

// Hull returns the preset for a ship type.
func (c Config) Hull(key string) (HullPreset, bool) {
	for _, h := range c.Hulls {
		if h.Key == key {
			return h, true
		}
	}
	return HullPreset{}, false
}

// LoadConfig reads the YAML file at path over the defaults.
// A missing file is not an error: the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides deployment settings from GALAXIES_* variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GALAXIES_DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("GALAXIES_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("GALAXIES_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GALAXIES_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("GALAXIES_LOG_DIR"); v != "" {
		cfg.Server.LogDir = v
	}
	if os.Getenv("GALAXIES_SEED") == "true" {
		cfg.Store.Seed = true
	}
}

// Validate rejects values the loops cannot run with and sorts the staircase.
func (c *Config) Validate() error {
	if c.Travel.BatteryCostPerUnit < 0 || c.Travel.TimePerUnitMs < 0 {
		return fmt.Errorf("travel costs must not be negative")
	}
	if c.Travel.Poll <= 0 || c.Battery.Tick <= 0 || c.Harvest.Frame <= 0 {
		return fmt.Errorf("timer periods must be positive")
	}
	if c.Harvest.CollectEvery <= 0 || c.Battery.PersistEvery <= 0 {
		return fmt.Errorf("throttle intervals must be positive")
	}
	if c.Travel.MaxRelocateRadius < 0 {
		return fmt.Errorf("max_relocate_radius must not be negative")
	}
	if c.Harvest.SurfaceMaxX <= 0 {
		return fmt.Errorf("surface_max_x must be positive")
	}
	sort.SliceStable(c.Harvest.Steps, func(i, j int) bool {
		return c.Harvest.Steps[i].MaxDistance < c.Harvest.Steps[j].MaxDistance
	})
	return nil
}
