// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load resolves the configuration with precedence defaults < file < env.
// path may be empty; then $DATA_DIR/config.yaml is tried and a missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		dataDir := envString("DATA_DIR", cfg.DataDir)
		path = filepath.Join(dataDir, "config.yaml")
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// optional file, defaults stand
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeEnv overlays environment variables onto cfg. ENV has the highest
// precedence.
func mergeEnv(cfg *Config) {
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Gateway = envString("GATEWAY", cfg.Gateway)

	cfg.Listen.Scenario = envString("SCENARIO_LISTEN", cfg.Listen.Scenario)
	cfg.Listen.Image = envString("IMAGE_LISTEN", cfg.Listen.Image)
	cfg.Listen.Video = envString("VIDEO_LISTEN", cfg.Listen.Video)
	cfg.Listen.Lipsync = envString("LIPSYNC_LISTEN", cfg.Listen.Lipsync)
	cfg.Listen.Audio = envString("AUDIO_LISTEN", cfg.Listen.Audio)
	cfg.Listen.Merge = envString("MERGE_LISTEN", cfg.Listen.Merge)

	cfg.LLM.BaseURL = envString("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = envString("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = envString("LLM_MODEL", cfg.LLM.Model)

	cfg.TTS.APIKey = envString("TTS_API_KEY", cfg.TTS.APIKey)
	cfg.TTS.VoiceID = envString("TTS_VOICE_ID", cfg.TTS.VoiceID)
	cfg.TTS.ModelID = envString("TTS_MODEL_ID", cfg.TTS.ModelID)

	cfg.Backends.Default = envString("BACKEND_URL", cfg.Backends.Default)
	cfg.Backends.Image = envString("IMAGE_BACKEND_URL", cfg.Backends.Image)
	cfg.Backends.Video = envString("VIDEO_BACKEND_URL", cfg.Backends.Video)
	cfg.Backends.Lipsync = envString("LIPSYNC_BACKEND_URL", cfg.Backends.Lipsync)
	cfg.Backends.Audio = envString("AUDIO_BACKEND_URL", cfg.Backends.Audio)

	// WORKFLOW_PATH overrides every template when a gateway runs alone.
	if wf := os.Getenv("WORKFLOW_PATH"); wf != "" {
		cfg.Workflows.Edit = wf
		cfg.Workflows.T2I = wf
		cfg.Workflows.I2V = wf
		cfg.Workflows.Lipsync = wf
		cfg.Workflows.Ambient = wf
	}
	cfg.Workflows.Edit = envString("EDIT_WORKFLOW_PATH", cfg.Workflows.Edit)
	cfg.Workflows.T2I = envString("T2I_WORKFLOW_PATH", cfg.Workflows.T2I)
	cfg.Workflows.I2V = envString("I2V_WORKFLOW_PATH", cfg.Workflows.I2V)
	cfg.Workflows.Lipsync = envString("LIPSYNC_WORKFLOW_PATH", cfg.Workflows.Lipsync)
	cfg.Workflows.Ambient = envString("AMBIENT_WORKFLOW_PATH", cfg.Workflows.Ambient)

	cfg.FileMaxAge = envHours("FILE_MAX_AGE_HOURS", cfg.FileMaxAge)
	cfg.SessionMaxAge = envHours("SESSION_MAX_AGE_HOURS", cfg.SessionMaxAge)
	cfg.RateLimitRPS = envInt("RATE_LIMIT_RPS", cfg.RateLimitRPS)
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// envHours parses a fractional hour count, matching the _HOURS env names.
func envHours(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if h, err := strconv.ParseFloat(v, 64); err == nil && h > 0 {
			return time.Duration(h * float64(time.Hour))
		}
	}
	return defaultVal
}
