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

package fsm

import (
	"fmt"
	"time"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/servo"
)

// Config is the node-wide PTP configuration
type Config struct {
	DomainNumber           uint8            `yaml:"domain_number"`
	Priority1              uint8            `yaml:"priority1"`
	Priority2              uint8            `yaml:"priority2"`
	ClockQuality           ptp.ClockQuality `yaml:"clock_quality"`
	SlaveOnly              bool             `yaml:"slave_only"`
	TimeSource             ptp.TimeSource   `yaml:"time_source"`
	UTCOffset              int16            `yaml:"utc_offset"`
	LogAnnounceInterval    int8             `yaml:"log_announce_interval"`
	LogSyncInterval        int8             `yaml:"log_sync_interval"`
	LogMinDelayReqInterval int8             `yaml:"log_min_delay_req_interval"`
	AnnounceReceiptTimeout uint8            `yaml:"announce_receipt_timeout"`
	ForeignMasterThreshold int              `yaml:"foreign_master_threshold"`
	InitRetry              time.Duration    `yaml:"init_retry"`
	FaultGrace             time.Duration    `yaml:"fault_grace"`
	GMRefresh              time.Duration    `yaml:"gm_refresh"`
	Servo                  servo.Config     `yaml:"servo"`
	PiServo                servo.PiConfig   `yaml:"pi_servo"`
}

// DefaultConfig returns the IEEE 1588 default profile values
func DefaultConfig() Config {
	return Config{
		Priority1: 128,
		Priority2: 128,
		ClockQuality: ptp.ClockQuality{
			ClockClass:              ptp.ClockClassDefault,
			ClockAccuracy:           ptp.ClockAccuracyUnknown,
			OffsetScaledLogVariance: 0xffff,
		},
		TimeSource:             ptp.TimeSourceInternalOscillator,
		UTCOffset:              37,
		LogAnnounceInterval:    1,
		LogSyncInterval:        0,
		LogMinDelayReqInterval: 0,
		AnnounceReceiptTimeout: 3,
		ForeignMasterThreshold: 2,
		InitRetry:              time.Second,
		FaultGrace:             4 * time.Second,
		GMRefresh:              16 * time.Second,
		Servo:                  servo.DefaultConfig(),
		PiServo:                servo.DefaultPiConfig(),
	}
}

// Validate checks the config for values the state machine cannot work with
func (c *Config) Validate() error {
	if c.AnnounceReceiptTimeout < 2 {
		return fmt.Errorf("announce_receipt_timeout must be at least 2")
	}
	if c.ForeignMasterThreshold < 1 {
		return fmt.Errorf("foreign_master_threshold must be positive")
	}
	for name, v := range map[string]int8{
		"log_announce_interval":      c.LogAnnounceInterval,
		"log_sync_interval":          c.LogSyncInterval,
		"log_min_delay_req_interval": c.LogMinDelayReqInterval,
	} {
		if v < -7 || v > 7 {
			return fmt.Errorf("%s must be within [-7, 7], got %d", name, v)
		}
	}
	if c.InitRetry <= 0 || c.FaultGrace <= 0 || c.GMRefresh <= 0 {
		return fmt.Errorf("init_retry, fault_grace and gm_refresh must be positive")
	}
	if c.Servo.MaxFreq <= 0 {
		return fmt.Errorf("servo max_freq must be positive")
	}
	return nil
}

// InstanceConfig describes one PTP port
type InstanceConfig struct {
	Name      string `yaml:"name"`
	Iface     string `yaml:"iface"`
	Role      Role   `yaml:"role"`
	Extension string `yaml:"extension"`
	// Abscal puts the port in absolute calibration mode instead of running PTP
	Abscal bool `yaml:"abscal"`
	// fixed hardware latencies, used where the hardware cannot measure them
	EgressLatency  time.Duration `yaml:"egress_latency"`
	IngressLatency time.Duration `yaml:"ingress_latency"`
}

// Extension names
const (
	ExtensionNone        = "none"
	ExtensionWhiteRabbit = "whiterabbit"
)

// Validate checks a single instance config
func (c *InstanceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("instance name must be set")
	}
	if c.Iface == "" {
		return fmt.Errorf("instance %s: iface must be set", c.Name)
	}
	switch c.Extension {
	case "", ExtensionNone, ExtensionWhiteRabbit:
	default:
		return fmt.Errorf("instance %s: unknown extension %q", c.Name, c.Extension)
	}
	if c.EgressLatency < 0 || c.IngressLatency < 0 {
		return fmt.Errorf("instance %s: latencies must not be negative", c.Name)
	}
	return nil
}
