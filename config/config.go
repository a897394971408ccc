package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alexflint/go-arg"
)

const (
	Pebble StorageDriver = "pebble"
	SQLite StorageDriver = "sqlite"
)

type StorageDriver string

var supportedStorageDrivers = map[StorageDriver]bool{
	Pebble: true,
	SQLite: true,
}

type Config struct {
	DataDir         string        `arg:"--data-dir,env:DATA_DIR,required"`
	StorageDriver   StorageDriver `arg:"--storage-driver,env:STORAGE_DRIVER"`
	SkipMigrations  bool          `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	PollFrequencyMs int           `arg:"--poll-frequency-ms,env:POLL_FREQUENCY_MS"`
	PollingDisabled bool          `arg:"--polling-disabled,env:POLLING_DISABLED"`
	HTTPPort        int           `arg:"--http-port,env:HTTP_PORT"`
	RunPrune        bool          `arg:"--prune,env:RUN_PRUNE"`
	RunCompact      bool          `arg:"--compact,env:RUN_COMPACT"`
}

func NewConfig() (*Config, error) {
	c := &Config{
		StorageDriver:   Pebble,
		PollFrequencyMs: 500,
		HTTPPort:        9641,
	}
	arg.MustParse(c)

	if !supportedStorageDrivers[c.StorageDriver] {
		return nil, fmt.Errorf("the STORAGE_DRIVER provided (%s) is not supported", c.StorageDriver)
	}

	return c, nil
}

func (c *Config) GetPollIntervalDurationInMs() time.Duration {
	return time.Duration(c.PollFrequencyMs) * time.Millisecond
}

// GetStoragePath returns the on-disk location of the durable store: a
// directory for the pebble driver, a single database file for sqlite.
func (c *Config) GetStoragePath() string {
	switch c.StorageDriver {
	case SQLite:
		return filepath.Join(c.DataDir, "outbound-queue.db")
	default:
		return filepath.Join(c.DataDir, "outbound-queue.pebble")
	}
}

// MarshalJSON hides the data directory, which can embed the local username.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"DataDir":         "xxxxx",
		"StorageDriver":   c.StorageDriver,
		"SkipMigrations":  c.SkipMigrations,
		"PollFrequencyMs": c.PollFrequencyMs,
		"PollingDisabled": c.PollingDisabled,
		"HTTPPort":        c.HTTPPort,
		"RunPrune":        c.RunPrune,
		"RunCompact":      c.RunCompact,
	})
}

func (d StorageDriver) Pebble() bool {
	return d == Pebble
}

func (d StorageDriver) SQLite() bool {
	return d == SQLite
}

func (d StorageDriver) String() string {
	return string(d)
}
