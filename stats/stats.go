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

/*
Package stats exports wrptp status over HTTP: the full snapshot as JSON on /,
flat counters on /counters and the same counters as Prometheus gauges on /metrics.
*/
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/ptp/fsm"
)

// Prefix of every exported counter
const Prefix = "wrptp."

// Counters is the flat view of the status
type Counters map[string]int64

// Server holds the latest snapshot published by the driver
type Server struct {
	sync.Mutex
	status   fsm.Status
	sys      SysStats
	sysStats map[string]uint64
	prom     *promGauges
}

// NewServer returns a Server with an empty status
func NewServer() *Server {
	return &Server{
		sysStats: map[string]uint64{},
		prom:     newPromGauges(),
	}
}

// Publish stores a snapshot. The snapshot must not be modified afterwards.
func (s *Server) Publish(st fsm.Status) {
	s.Lock()
	defer s.Unlock()
	s.status = st
	s.prom.update(s.counters())
}

// Status returns the latest snapshot
func (s *Server) Status() fsm.Status {
	s.Lock()
	defer s.Unlock()
	return s.status
}

// CollectSysStats refreshes process and runtime stats
func (s *Server) CollectSysStats(interval time.Duration) error {
	stats, err := s.sys.CollectRuntimeStats(interval)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.sysStats = stats
	s.prom.update(s.counters())
	return nil
}

// Counters flattens the latest snapshot and process stats
func (s *Server) Counters() Counters {
	s.Lock()
	defer s.Unlock()
	return s.counters()
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (s *Server) counters() Counters {
	st := &s.status
	c := Counters{
		Prefix + "process.alive":            1,
		Prefix + "is_grandmaster":           b2i(st.IsGrandmaster),
		Prefix + "steps_removed":            int64(st.StepsRemoved),
		Prefix + "offset_from_master_ns":    st.OffsetFromMasterNs,
		Prefix + "mean_path_delay_ns":       st.MeanPathDelayNs,
		Prefix + "utc_offset":               int64(st.UTCOffset),
		Prefix + "clock_locked":             b2i(st.ClockState == fsm.ClockLocked.String()),
		Prefix + "instances":                int64(len(st.Instances)),
		Prefix + "instances.slave":          0,
		Prefix + "instances.extension_mode": 0,
	}
	for _, inst := range st.Instances {
		p := Prefix + "port." + inst.Name + "."
		c[p+"state."+strings.ToLower(inst.State)] = 1
		c[p+"link_up"] = b2i(inst.LinkUp)
		c[p+"foreign_masters"] = int64(inst.ForeignMasters)
		c[p+"offset_ns"] = inst.OffsetNs
		c[p+"mean_path_delay_ns"] = inst.MeanPathDelayNs
		c[p+"freq_ppb"] = int64(inst.FreqPPB)
		c[p+"offset_stddev_ns"] = int64(inst.OffsetStddevNs)
		c[p+"extension_enabled"] = b2i(inst.ExtensionEnabled)
		if inst.Extension.Name != "" && inst.Extension.Name != fsm.ExtensionNone {
			e := p + inst.Extension.Name + "."
			c[e+"link_on"] = b2i(inst.Extension.LinkOn)
			c[e+"calibrated"] = b2i(inst.Extension.Calibrated)
			c[e+"failures"] = int64(inst.Extension.Failures)
			if inst.Extension.LinkOn {
				c[Prefix+"instances.extension_mode"]++
			}
		}
		if inst.State == fsm.StateSlave.String() {
			c[Prefix+"instances.slave"]++
		}
		for k, v := range inst.Counters {
			c[p+k] = v
		}
	}
	for k, v := range s.sysStats {
		c[Prefix+k] = int64(v)
	}
	return c
}

// Handler serves /, /counters and /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRootRequest)
	mux.HandleFunc("/counters", s.handleCountersRequest)
	mux.Handle("/metrics", promhttp.HandlerFor(
		s.prom.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	return mux
}

// Start collects process stats every interval and serves HTTP on port. It only returns on failure.
func (s *Server) Start(port int, interval time.Duration) error {
	go func() {
		for range time.Tick(interval) {
			if err := s.CollectSysStats(interval); err != nil {
				log.Warningf("failed to get system metrics %s", err)
			}
		}
	}()
	addr := fmt.Sprintf(":%d", port)
	log.Infof("Starting http json server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func writeJSON(w http.ResponseWriter, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}

func (s *Server) handleRootRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.Status())
}

func (s *Server) handleCountersRequest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Counters())
}

func fetch(url string, v any) error {
	c := http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// FetchStatus returns the status snapshot served at url
func FetchStatus(url string) (*fsm.Status, error) {
	st := &fsm.Status{}
	if err := fetch(url, st); err != nil {
		return nil, err
	}
	return st, nil
}

// FetchCounters returns the counters served at url
func FetchCounters(url string) (Counters, error) {
	c := Counters{}
	if err := fetch(url+"/counters", &c); err != nil {
		return nil, err
	}
	return c, nil
}
