// SPDX-License-Identifier: MIT

// Package config holds the runtime configuration for every gateway in the
// pipeline. Precedence is ENV > file > defaults, matching the loader.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	// DataDir roots the shared filesystem surface: sessions/, per-gateway
	// outputs/ and uploads/, workflows/ and assets/ live beneath it.
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	// Gateway selects which gateway to run; "all" hosts every gateway in
	// one process.
	Gateway string `yaml:"gateway"`

	Listen ListenConfig `yaml:"listen"`

	LLM LLMConfig `yaml:"llm"`
	TTS TTSConfig `yaml:"tts"`

	Backends  BackendConfig  `yaml:"backends"`
	Workflows WorkflowConfig `yaml:"workflows"`

	// FileMaxAge bounds the lifetime of files in gateway output/upload
	// directories. SessionMaxAge bounds idle session directories.
	FileMaxAge    time.Duration `yaml:"file_max_age"`
	SessionMaxAge time.Duration `yaml:"session_max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// RateLimitRPS enables a global per-gateway request limit when > 0.
	RateLimitRPS int `yaml:"rate_limit_rps"`
}

// ListenConfig holds one listen address per gateway.
type ListenConfig struct {
	Scenario string `yaml:"scenario"`
	Image    string `yaml:"image"`
	Video    string `yaml:"video"`
	Lipsync  string `yaml:"lipsync"`
	Audio    string `yaml:"audio"`
	Merge    string `yaml:"merge"`
}

// LLMConfig addresses the OpenAI-compatible endpoint serving the
// scenario model.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// TTSConfig carries the ElevenLabs credentials for the audio gateway.
type TTSConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

// BackendConfig addresses the node-graph executor behind each inference
// gateway. An empty per-gateway URL falls back to Default.
type BackendConfig struct {
	Default string `yaml:"default"`
	Image   string `yaml:"image"`
	Video   string `yaml:"video"`
	Lipsync string `yaml:"lipsync"`
	Audio   string `yaml:"audio"`
}

// WorkflowConfig names the graph template per inference kind.
type WorkflowConfig struct {
	Edit    string `yaml:"edit"`
	T2I     string `yaml:"t2i"`
	I2V     string `yaml:"i2v"`
	Lipsync string `yaml:"lipsync"`
	Ambient string `yaml:"ambient"`
}

// Defaults returns the built-in configuration before file and env merging.
func Defaults() Config {
	return Config{
		DataDir:  "data",
		LogLevel: "info",
		Gateway:  "all",
		Listen: ListenConfig{
			Scenario: ":3000",
			Image:    ":4100",
			Video:    ":4200",
			Lipsync:  ":4300",
			Audio:    ":4400",
			Merge:    ":4500",
		},
		LLM: LLMConfig{
			Model: "exaone-4.0",
		},
		Backends: BackendConfig{
			Default: "http://localhost:8188",
		},
		Workflows: WorkflowConfig{
			Edit:    "workflows/image_qwen_image_edit_2509.json",
			T2I:     "workflows/z_image_t2i.json",
			I2V:     "workflows/wan22_i2v.json",
			Lipsync: "workflows/latentsync.json",
			Ambient: "workflows/mmaudio.json",
		},
		FileMaxAge:    2 * time.Hour,
		SessionMaxAge: 24 * time.Hour,
		SweepInterval: 30 * time.Minute,
	}
}

// BackendFor resolves the node-graph backend URL for a gateway name.
func (c Config) BackendFor(gateway string) string {
	var url string
	switch gateway {
	case "image":
		url = c.Backends.Image
	case "video":
		url = c.Backends.Video
	case "lipsync":
		url = c.Backends.Lipsync
	case "audio":
		url = c.Backends.Audio
	}
	if url == "" {
		url = c.Backends.Default
	}
	return url
}

// ResolvePaths anchors relative workflow paths under DataDir so the
// filesystem layout matches the documented surface regardless of cwd.
func (c *Config) ResolvePaths() {
	for _, p := range []*string{
		&c.Workflows.Edit, &c.Workflows.T2I, &c.Workflows.I2V,
		&c.Workflows.Lipsync, &c.Workflows.Ambient,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session_max_age must be positive, got %s", c.SessionMaxAge)
	}
	if c.FileMaxAge <= 0 {
		return fmt.Errorf("file_max_age must be positive, got %s", c.FileMaxAge)
	}
	switch c.Gateway {
	case "all", "scenario", "image", "video", "lipsync", "audio", "merge":
	default:
		return fmt.Errorf("unknown gateway %q", c.Gateway)
	}
	return nil
}
