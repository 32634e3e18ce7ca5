package server

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*Config, error) {
	out := defaults()
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func defaults() Config {
	return Config{
		Port: "8080",
		EarthEngine: EarthEngineConfig{
			APIBaseURL:  "https://earthengine.googleapis.com/api",
			TileBaseURL: "https://earthengine.googleapis.com",
		},
		Export: ExportConfig{
			Scale:        30,
			MaxPixels:    1e11,
			PollInterval: Duration(10 * time.Second),
			LeaseBudget:  Duration(9 * time.Minute),
			Retention:    Duration(5 * time.Hour),
		},
		Chart: ChartConfig{
			Scale:       30,
			SnapshotTTL: Duration(2 * time.Hour),
			LeaseBudget: Duration(2 * time.Minute),
		},
	}
}
