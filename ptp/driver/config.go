/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/wr"
	"github.com/facebook/wrptp/timestamp"
)

// Config specifies wrptp run options
type Config struct {
	Timestamping timestamp.Mode `yaml:"timestamping"`
	// ClockIface is the interface whose PHC is disciplined. Empty means the
	// system clock, or the PHC of the first instance with hardware timestamping.
	ClockIface     string        `yaml:"clock_iface"`
	MonitoringPort int           `yaml:"monitoring_port"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
	LinkPoll       time.Duration `yaml:"link_poll"`
	DSCP           int           `yaml:"dscp"`

	PTP       fsm.Config           `yaml:"ptp"`
	WR        wr.Config            `yaml:"wr"`
	Instances []fsm.InstanceConfig `yaml:"instances"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		Timestamping:   timestamp.SW,
		MonitoringPort: 4270,
		StatsInterval:  time.Second,
		LinkPoll:       time.Second,
		PTP:            fsm.DefaultConfig(),
		WR:             wr.DefaultConfig(),
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if c.Timestamping != timestamp.HW && c.Timestamping != timestamp.SW {
		return fmt.Errorf("only %q and %q timestamping is supported", timestamp.HW, timestamp.SW)
	}
	if c.MonitoringPort < 0 {
		return fmt.Errorf("monitoring_port must be 0 or positive")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be greater than zero")
	}
	if c.LinkPoll <= 0 {
		return fmt.Errorf("link_poll must be greater than zero")
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("dscp must be within [0, 63]")
	}
	if err := c.PTP.Validate(); err != nil {
		return fmt.Errorf("invalid ptp config: %w", err)
	}
	if err := c.WR.Validate(); err != nil {
		return fmt.Errorf("invalid wr config: %w", err)
	}
	if len(c.Instances) == 0 {
		return fmt.Errorf("at least one instance must be specified")
	}
	names := map[string]bool{}
	ifaces := map[string]bool{}
	for i := range c.Instances {
		inst := &c.Instances[i]
		if err := inst.Validate(); err != nil {
			return err
		}
		if names[inst.Name] {
			return fmt.Errorf("duplicate instance name %q", inst.Name)
		}
		if ifaces[inst.Iface] {
			return fmt.Errorf("interface %s used by more than one instance", inst.Iface)
		}
		names[inst.Name] = true
		ifaces[inst.Iface] = true
	}
	return nil
}

// clockIface returns the interface whose PHC is driven, empty for the system clock
func (c *Config) clockIface() string {
	if c.ClockIface != "" {
		return c.ClockIface
	}
	if c.Timestamping == timestamp.HW {
		return c.Instances[0].Iface
	}
	return ""
}

// ReadConfig reads config from the file
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(cData, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PrepareConfig prepares the final config from defaults, on-disk config and CLI flags, and validates it
func PrepareConfig(cfgPath string, ifaces []string, monitoringPort int, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if len(ifaces) > 0 {
		warn("instances")
		cfg.Instances = nil
		for i, iface := range ifaces {
			cfg.Instances = append(cfg.Instances, fsm.InstanceConfig{
				Name:      fmt.Sprintf("wr%d", i),
				Iface:     iface,
				Role:      fsm.RoleAuto,
				Extension: fsm.ExtensionWhiteRabbit,
			})
		}
	}
	if setFlags["monitoringport"] {
		warn("monitoringPort")
		cfg.MonitoringPort = monitoringPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
