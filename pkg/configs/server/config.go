// Package server holds the configuration shared by the web server and
// the loops daemon.
package server

import (
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// port the web server listens on
	Port string `yaml:"port"`

	// postgres connection string of the shared state database
	DBURI string `yaml:"dburi"`

	// path of the service account key file (JSON)
	CredentialsFile string `yaml:"credentialsFile"`

	// key the admin listing and purge modes of /clean require
	AdminKey string `yaml:"adminKey"`

	EarthEngine EarthEngineConfig `yaml:"earthengine"`
	Firebase    FirebaseConfig    `yaml:"firebase"`
	Export      ExportConfig      `yaml:"export"`
	Chart       ChartConfig       `yaml:"chart"`
}

type EarthEngineConfig struct {
	APIBaseURL  string `yaml:"apiBaseUrl"`
	TileBaseURL string `yaml:"tileBaseUrl"`
}

type FirebaseConfig struct {
	DatabaseURL string `yaml:"databaseUrl"`
}

type ExportConfig struct {
	// pixel resolution of exported rasters, in meters
	Scale int `yaml:"scale"`

	// export size cap handed to the compute service
	MaxPixels float64 `yaml:"maxPixels"`

	// how often a running task is polled
	PollInterval Duration `yaml:"pollInterval"`

	// how long one loop cycle owns an export before another may take
	// over
	LeaseBudget Duration `yaml:"leaseBudget"`

	// how long finished exports and their files stay around
	Retention Duration `yaml:"retention"`
}

type ChartConfig struct {
	// sampling resolution of the chart series, in meters
	Scale int `yaml:"scale"`

	// how long rendered charts stay addressable
	SnapshotTTL Duration `yaml:"snapshotTtl"`

	LeaseBudget Duration `yaml:"leaseBudget"`
}

// Duration reads yaml strings like "10s" or "9m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := ""
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}
