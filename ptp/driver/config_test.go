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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/wr"
	"github.com/facebook/wrptp/timestamp"
)

func writeConfig(t *testing.T, data string) string {
	f, err := os.CreateTemp(t.TempDir(), "wrptp")
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig("/does/not/exist")
	require.Error(t, err)
}

func TestReadConfigDefaults(t *testing.T) {
	cfg, err := ReadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `timestamping: hardware
clock_iface: eth1
monitoring_port: 4271
dscp: 46
ptp:
  priority1: 100
  log_sync_interval: -3
wr:
  ptp_fallback: false
  lock_timeout: 5s
instances:
  - name: up
    iface: eth0
    role: slave
    extension: whiterabbit
    egress_latency: 250ns
  - name: down
    iface: eth1
    role: master
    extension: none
`)
	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Timestamping = timestamp.HW
	want.ClockIface = "eth1"
	want.MonitoringPort = 4271
	want.DSCP = 46
	want.PTP.Priority1 = 100
	want.PTP.LogSyncInterval = -3
	want.WR.PTPFallback = false
	want.WR.LockTimeout = 5 * time.Second
	want.Instances = []fsm.InstanceConfig{
		{Name: "up", Iface: "eth0", Role: fsm.RoleSlave, Extension: fsm.ExtensionWhiteRabbit, EgressLatency: 250 * time.Nanosecond},
		{Name: "down", Iface: "eth1", Role: fsm.RoleMaster, Extension: fsm.ExtensionNone},
	}
	require.Equal(t, want, cfg)
	require.NoError(t, cfg.Validate())
}

func TestReadConfigUnknownField(t *testing.T) {
	_, err := ReadConfig(writeConfig(t, "bogus: 1\n"))
	require.Error(t, err)
}

func TestReadConfigUnknownRole(t *testing.T) {
	_, err := ReadConfig(writeConfig(t, "instances:\n  - name: a\n    iface: eth0\n    role: boss\n"))
	require.ErrorContains(t, err, "unknown role")
}

func validConfig() *Config {
	c := DefaultConfig()
	c.Instances = []fsm.InstanceConfig{{Name: "wr0", Iface: "eth0", Extension: fsm.ExtensionWhiteRabbit}}
	return c
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	for name, mutate := range map[string]func(c *Config){
		"timestamping":  func(c *Config) { c.Timestamping = "magic" },
		"port":          func(c *Config) { c.MonitoringPort = -1 },
		"stats":         func(c *Config) { c.StatsInterval = 0 },
		"link poll":     func(c *Config) { c.LinkPoll = -time.Second },
		"dscp":          func(c *Config) { c.DSCP = 64 },
		"ptp":           func(c *Config) { c.PTP.AnnounceReceiptTimeout = 1 },
		"wr":            func(c *Config) { c.WR.LockTimeout = 0 },
		"no instances":  func(c *Config) { c.Instances = nil },
		"no iface":      func(c *Config) { c.Instances[0].Iface = "" },
		"extension":     func(c *Config) { c.Instances[0].Extension = "gold" },
		"dup name":      func(c *Config) { c.Instances = append(c.Instances, fsm.InstanceConfig{Name: "wr0", Iface: "eth1"}) },
		"dup interface": func(c *Config) { c.Instances = append(c.Instances, fsm.InstanceConfig{Name: "wr1", Iface: "eth0"}) },
	} {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestClockIface(t *testing.T) {
	c := validConfig()
	require.Equal(t, "", c.clockIface())
	c.Timestamping = timestamp.HW
	require.Equal(t, "eth0", c.clockIface())
	c.ClockIface = "eth3"
	require.Equal(t, "eth3", c.clockIface())
}

func TestPrepareConfigFlags(t *testing.T) {
	cfg, err := PrepareConfig("", []string{"eth0", "eth1"}, 9999, map[string]bool{"monitoringport": true})
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.MonitoringPort)
	require.Equal(t, []fsm.InstanceConfig{
		{Name: "wr0", Iface: "eth0", Role: fsm.RoleAuto, Extension: fsm.ExtensionWhiteRabbit},
		{Name: "wr1", Iface: "eth1", Role: fsm.RoleAuto, Extension: fsm.ExtensionWhiteRabbit},
	}, cfg.Instances)
	require.Equal(t, wr.DefaultConfig(), cfg.WR)
}

func TestPrepareConfigFile(t *testing.T) {
	path := writeConfig(t, "monitoring_port: 4280\ninstances:\n  - name: a\n    iface: eth5\n")
	cfg, err := PrepareConfig(path, nil, 9999, map[string]bool{})
	require.NoError(t, err)
	require.Equal(t, 4280, cfg.MonitoringPort)
	require.Len(t, cfg.Instances, 1)

	cfg, err = PrepareConfig(path, []string{"eth7"}, 0, map[string]bool{"monitoringport": true})
	require.NoError(t, err)
	require.Equal(t, 0, cfg.MonitoringPort)
	require.Equal(t, "eth7", cfg.Instances[0].Iface)
}

func TestPrepareConfigInvalid(t *testing.T) {
	_, err := PrepareConfig("", nil, 0, map[string]bool{})
	require.ErrorContains(t, err, "at least one instance")

	_, err = PrepareConfig("/does/not/exist", []string{"eth0"}, 0, map[string]bool{})
	require.Error(t, err)
}
