package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Capture source kinds.
const (
	SourceDevice = "device"
	SourceWAV    = "wav"
)

type Config struct {
	Addr              string        `yaml:"addr"`
	ModelPath         string        `yaml:"model_path"`
	TargetSampleRate  int           `yaml:"target_sample_rate"`
	BroadcastCapacity int           `yaml:"broadcast_capacity"`
	LockPolicy        string        `yaml:"lock_policy"`
	StartRecording    bool          `yaml:"start_recording"`
	LogLevel          string        `yaml:"log_level"`
	Capture           CaptureConfig `yaml:"capture"`
}

type CaptureConfig struct {
	Source      string `yaml:"source"`
	Device      string `yaml:"device"`
	File        string `yaml:"file"`
	Loop        bool   `yaml:"loop"`
	BlockFrames int    `yaml:"block_frames"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:              "127.0.0.1:3030",
		ModelPath:         "./models/ggml-base.en.bin",
		TargetSampleRate:  16000,
		BroadcastCapacity: 16,
		LockPolicy:        "drop",
		LogLevel:          "info",
		Capture: CaptureConfig{
			Source:      SourceDevice,
			Loop:        true,
			BlockFrames: 1024,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by S2T_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("S2T_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Addr = getenv("S2T_ADDR", c.Addr)
	c.ModelPath = getenv("WHISPER_MODEL_PATH", c.ModelPath)
	c.TargetSampleRate = getenvInt("S2T_TARGET_SAMPLE_RATE", c.TargetSampleRate)
	c.BroadcastCapacity = getenvInt("S2T_BROADCAST_CAPACITY", c.BroadcastCapacity)
	c.LockPolicy = getenv("S2T_LOCK_POLICY", c.LockPolicy)
	c.StartRecording = getenvBool("S2T_START_RECORDING", c.StartRecording)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.Capture.Source = getenv("S2T_CAPTURE_SOURCE", c.Capture.Source)
	c.Capture.Device = getenv("S2T_CAPTURE_DEVICE", c.Capture.Device)
	c.Capture.File = getenv("S2T_CAPTURE_FILE", c.Capture.File)
	c.Capture.Loop = getenvBool("S2T_CAPTURE_LOOP", c.Capture.Loop)
	c.Capture.BlockFrames = getenvInt("S2T_CAPTURE_BLOCK_FRAMES", c.Capture.BlockFrames)
}

// Validate reports the first setting the server cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("target_sample_rate must be positive, got %d", c.TargetSampleRate)
	}
	if c.BroadcastCapacity <= 0 {
		return fmt.Errorf("broadcast_capacity must be positive, got %d", c.BroadcastCapacity)
	}
	if c.Capture.BlockFrames <= 0 {
		return fmt.Errorf("capture.block_frames must be positive, got %d", c.Capture.BlockFrames)
	}
	switch c.LockPolicy {
	case "drop", "wait":
	default:
		return fmt.Errorf("lock_policy must be drop or wait, got %q", c.LockPolicy)
	}
	switch c.Capture.Source {
	case SourceDevice:
	case SourceWAV:
		if c.Capture.File == "" {
			return fmt.Errorf("capture.file is required for the wav source")
		}
	default:
		return fmt.Errorf("capture.source must be %s or %s, got %q", SourceDevice, SourceWAV, c.Capture.Source)
	}
	return nil
}
