package config

import (
	"os"
	"path/filepath"
)

// Defaults returns baseline local configuration for first launch.
func Defaults() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		Source: SourceConfig{
			URL:        "wss://localhost:9090/v1/stream",
			MaxRetries: 5,
		},
		Refiner: RefinerConfig{
			Endpoint: "https://localhost:9091/v1/refine",
			Model:    "default",
			Timeout:  30,
		},
		Segmenter: SegmenterConfig{
			MaxBufferChars:   120,
			PunctuationFloor: 25,
			MinSegmentChars:  2,
		},
		Queue: QueueConfig{
			MaxRetries:     5,
			BackoffBaseMS:  2000,
			CooldownMS:     3000,
			CooldownMinMS:  1500,
			CooldownMaxMS:  10000,
			ContextWindow:  3,
			CooldownGrow:   1.5,
			CooldownShrink: 0.9,
		},
		Sessions: SessionsConfig{
			Dir: filepath.Join(homeDir, ".live-transcriber", "sessions"),
		},
		Languages: LanguagesConfig{
			Primary:     "zh",
			Translation: "en",
			Bilingual:   false,
		},
		HTTP: HTTPConfig{
			Address: "127.0.0.1:9180",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Mode: "dev",
		},
	}
}
