// Package config loads the Region Manager's configuration file -- the
// option set named in SPEC_FULL.md's §6 configuration-keys table --
// read with ioutil.ReadFile and parsed with yaml.v3.
package config

import (
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"

	"regionmaster/internal/mirror"
	"regionmaster/internal/regionmanager"
)

// Config is the on-disk shape of the Region Manager's configuration file.
type Config struct {
	Self string `yaml:"self"`

	GRPC GRPCConfig `yaml:"grpc"`

	MirrorDir string `yaml:"mirrorDir"`

	RegionsSlop           float64 `yaml:"regionsSlop"`
	RegionsCloseMax       int     `yaml:"regionsCloseMax"`
	RegionsPerCheckin     int     `yaml:"regionsPerCheckin"`
	PreferredHoldPeriodMs int64   `yaml:"preferredAssignmentHoldPeriodMs"`
	ZookeeperRetries      int     `yaml:"zookeeperRetries"`
	ZookeeperPauseMs      int64   `yaml:"zookeeperPauseMs"`

	ApplyPreferredAssignmentPeriodMs  int64 `yaml:"applyPreferredAssignmentPeriodMs"`
	HoldRegionForBestLocalityPeriodMs int64 `yaml:"holdRegionForBestLocalityPeriodMs"`

	ReopenerParallelism int `yaml:"reopenerParallelism"`

	ScanIntervalMs  int64 `yaml:"scanIntervalMs"`
	WakeFrequencyMs int64 `yaml:"wakeFrequencyMs"`

	MetricsAddr string `yaml:"metricsAddr"`
}

// GRPCConfig is the RegionMaster gRPC listener's address.
type GRPCConfig struct {
	Address string `yaml:"address"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ManagerConfig translates the on-disk configuration into
// regionmanager.Config, matching hbase.regions.slop /
// hbase.regions.close.max / hbase.regions.percheckin /
// hbase.regionserver.preferredAssignment.regionHoldPeriod /
// zookeeper.retries / zookeeper.pause from §6.
func (c *Config) ManagerConfig() regionmanager.Config {
	return regionmanager.Config{
		Self:             c.Self,
		Slop:             c.RegionsSlop,
		MaxRegToClose:    c.RegionsCloseMax,
		MaxAssignInOneGo: c.RegionsPerCheckin,
		PreferredHold:    durationOrZero(c.PreferredHoldPeriodMs),
		RetryPolicy: mirror.RetryPolicy{
			MaxAttempts: c.ZookeeperRetries,
			BasePause:   durationOrZero(c.ZookeeperPauseMs),
		},
		ApplyPreferredAssignmentPeriod:  durationOrZero(c.ApplyPreferredAssignmentPeriodMs),
		HoldRegionForBestLocalityPeriod: durationOrZero(c.HoldRegionForBestLocalityPeriodMs),
		ReopenerParallelism:             c.ReopenerParallelism,
		ScanInterval:                    durationOrZero(c.ScanIntervalMs),
		WakeFrequency:                   durationOrZero(c.WakeFrequencyMs),
	}
}

func durationOrZero(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
