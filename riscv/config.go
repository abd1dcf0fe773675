package riscv

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is returned when a machine descriptor fails validation.
var ErrConfigInvalid = fmt.Errorf("invalid machine descriptor")

// Config is a machine descriptor: the set of parameters needed to construct
// an Emulator without wiring Go struct literals directly. Every field is
// optional; a zero Config parameterizes the architectural defaults.
type Config struct {
	DRAMSize  uint64 `yaml:"dram_size"`
	DiskImage string `yaml:"disk_image"`
	BatchSize uint64 `yaml:"batch_size"`
}

const (
	defaultDRAMSize  = 128 * 1024 * 1024
	defaultBatchSize = 1000

	// minDRAMSize leaves room for the fixed I/O region (which holds the
	// call-data buffer) at the top of DRAM, with headroom for guest code and
	// data.
	minDRAMSize = 4 * IOBufferSize
)

// LoadConfig parses a YAML machine descriptor and fills in architectural
// defaults for any field left unset.
func LoadConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DRAMSize == 0 {
		c.DRAMSize = defaultDRAMSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
}

func (c Config) validate() error {
	if c.DRAMSize < minDRAMSize {
		return fmt.Errorf("%w: dram_size %d below minimum %d", ErrConfigInvalid, c.DRAMSize, minDRAMSize)
	}
	return nil
}
