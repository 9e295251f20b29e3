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

package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/wrptp/ptp/fsm"
)

func sampleStatus() fsm.Status {
	return fsm.Status{
		ClockIdentity:       "0x020000fffe000001",
		GrandmasterIdentity: "0xaabbccfffe001122",
		ParentPortIdentity:  "0xaabbccfffe001122:1",
		StepsRemoved:        1,
		OffsetFromMasterNs:  -42,
		MeanPathDelayNs:     1500,
		UTCOffset:           37,
		UTCOffsetValid:      true,
		ClockState:          "LOCKED",
		Instances: []fsm.InstanceStatus{
			{
				Name:             "wr0",
				Iface:            "eth0",
				State:            "SLAVE",
				Role:             "auto",
				LinkUp:           true,
				ExtensionEnabled: true,
				Extension:        fsm.ExtStatus{Name: "whiterabbit", State: "IDLE", Mode: "SLAVE", LinkOn: true, Failures: 2},
				OffsetNs:         -42,
				MeanPathDelayNs:  1500,
				FreqPPB:          12.7,
				Counters:         map[string]int64{"rx.announce": 10},
			},
			{
				Name:      "wr1",
				Iface:     "eth1",
				State:     "MASTER",
				Extension: fsm.ExtStatus{Name: "none"},
				Counters:  map[string]int64{},
			},
		},
	}
}

func TestCounters(t *testing.T) {
	s := NewServer()
	s.Publish(sampleStatus())
	c := s.Counters()

	require.Equal(t, int64(1), c["wrptp.process.alive"])
	require.Equal(t, int64(-42), c["wrptp.offset_from_master_ns"])
	require.Equal(t, int64(1), c["wrptp.clock_locked"])
	require.Equal(t, int64(0), c["wrptp.is_grandmaster"])
	require.Equal(t, int64(2), c["wrptp.instances"])
	require.Equal(t, int64(1), c["wrptp.instances.slave"])
	require.Equal(t, int64(1), c["wrptp.instances.extension_mode"])
	require.Equal(t, int64(1), c["wrptp.port.wr0.state.slave"])
	require.Equal(t, int64(12), c["wrptp.port.wr0.freq_ppb"])
	require.Equal(t, int64(1), c["wrptp.port.wr0.whiterabbit.link_on"])
	require.Equal(t, int64(2), c["wrptp.port.wr0.whiterabbit.failures"])
	require.Equal(t, int64(10), c["wrptp.port.wr0.rx.announce"])
	require.Equal(t, int64(1), c["wrptp.port.wr1.state.master"])
	require.Equal(t, int64(0), c["wrptp.port.wr1.link_up"])
	_, ok := c["wrptp.port.wr1.none.link_on"]
	require.False(t, ok)
}

func TestFlattenKey(t *testing.T) {
	require.Equal(t, "wrptp_port_wr_0_rx_announce", flattenKey("wrptp.port.wr-0.rx.announce"))
	require.Equal(t, "a_b_c_d", flattenKey("a b=c/d"))
}

func TestSetRate(t *testing.T) {
	c := map[string]uint64{}
	setRate("x", c, 150, 30, 60*time.Second)
	require.Equal(t, map[string]uint64{"x.sum.60": 120, "x.rate.60": 2}, c)

	c = map[string]uint64{}
	setRate("x", c, 10, 30, 60*time.Second)
	setRate("x", c, 30, 10, 100*time.Millisecond)
	require.Empty(t, c)
}

func TestCollectSysStats(t *testing.T) {
	s := NewServer()
	require.NoError(t, s.CollectSysStats(time.Second))
	require.NoError(t, s.CollectSysStats(time.Second))
	c := s.Counters()
	require.Greater(t, c["wrptp.runtime.cpu.goroutines"], int64(0))
	require.Contains(t, c, "wrptp.runtime.gc.count.sum.1")
}

func TestHTTP(t *testing.T) {
	s := NewServer()
	s.Publish(sampleStatus())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	st, err := FetchStatus(ts.URL)
	require.NoError(t, err)
	require.Equal(t, sampleStatus(), *st)

	c, err := FetchCounters(ts.URL)
	require.NoError(t, err)
	require.Equal(t, s.Counters(), c)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "\nwrptp_offset_from_master_ns -42\n")
	require.Contains(t, string(body), "\nwrptp_port_wr0_rx_announce 10\n")

	_, err = FetchStatus(ts.URL + "/nope")
	require.Error(t, err)
}

func TestMetricsDropToZero(t *testing.T) {
	s := NewServer()
	s.Publish(sampleStatus())
	st := sampleStatus()
	st.Instances[1].State = "LISTENING"
	s.Publish(st)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "\nwrptp_port_wr1_state_master 0\n")
	require.Contains(t, string(body), "\nwrptp_port_wr1_state_listening 1\n")
}
