package riscv

import "testing"

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(``))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DRAMSize != defaultDRAMSize {
		t.Errorf("DRAMSize: expected default %d, got %d", defaultDRAMSize, cfg.DRAMSize)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Errorf("BatchSize: expected default %d, got %d", defaultBatchSize, cfg.BatchSize)
	}
}

func TestLoadConfigHonorsExplicitFields(t *testing.T) {
	cfg, err := LoadConfig([]byte("dram_size: 104857600\ndisk_image: disk.img\nbatch_size: 500\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DRAMSize != 104857600 {
		t.Errorf("DRAMSize: expected 104857600, got %d", cfg.DRAMSize)
	}
	if cfg.DiskImage != "disk.img" {
		t.Errorf("DiskImage: expected disk.img, got %q", cfg.DiskImage)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize: expected 500, got %d", cfg.BatchSize)
	}
}

func TestLoadConfigRejectsDRAMTooSmall(t *testing.T) {
	if _, err := LoadConfig([]byte("dram_size: 1024\n")); err == nil {
		t.Errorf("expected a DRAM size below the minimum to be rejected")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	if _, err := LoadConfig([]byte("dram_size: [not, a, scalar\n")); err == nil {
		t.Errorf("expected malformed YAML to be rejected")
	}
}
