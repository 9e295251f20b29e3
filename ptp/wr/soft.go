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

package wr

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/ptp/fsm"
)

// SoftHardware implements Hardware on top of a plain clock, for hosts
// without WR timing hardware. Locking always succeeds and latencies are
// taken from configuration.
type SoftHardware struct {
	ops         fsm.TimeOps
	calibration map[int]Calibration
	locking     map[int]bool
	tracking    map[int]bool
}

// NewSoftHardware returns a SoftHardware adjusting ops
func NewSoftHardware(ops fsm.TimeOps) *SoftHardware {
	return &SoftHardware{
		ops:         ops,
		calibration: map[int]Calibration{},
		locking:     map[int]bool{},
		tracking:    map[int]bool{},
	}
}

// SetLatencies configures the fixed latencies of port
func (h *SoftHardware) SetLatencies(port int, egress, ingress time.Duration) {
	h.calibration[port] = Calibration{
		EgressPs:  egress.Nanoseconds() * 1000,
		IngressPs: ingress.Nanoseconds() * 1000,
	}
}

// LockingEnable implements Hardware
func (h *SoftHardware) LockingEnable(port int) error {
	h.locking[port] = true
	return nil
}

// LockingPoll implements Hardware
func (h *SoftHardware) LockingPoll(port int) (bool, error) {
	return h.locking[port], nil
}

// LockingDisable implements Hardware
func (h *SoftHardware) LockingDisable(port int) error {
	h.locking[port] = false
	h.tracking[port] = false
	return nil
}

// LockingReset implements Hardware
func (h *SoftHardware) LockingReset(port int) error {
	h.locking[port] = false
	return nil
}

// EnablePhaseTracking implements Hardware
func (h *SoftHardware) EnablePhaseTracking(port int) error {
	h.tracking[port] = true
	return nil
}

// AdjustInProgress implements Hardware, software adjustments apply immediately
func (h *SoftHardware) AdjustInProgress(int) bool {
	return false
}

// AdjustCounters implements Hardware
func (h *SoftHardware) AdjustCounters(_ int, sec, ns int64) error {
	return h.ops.AdjustOffset(sec*int64(time.Second) + ns)
}

// AdjustPhase implements Hardware
func (h *SoftHardware) AdjustPhase(_ int, ps int64) error {
	if ns := ps / 1000; ns != 0 {
		return h.ops.AdjustOffset(ns)
	}
	return nil
}

// CalibrationPattern implements Hardware, there is no pattern to send
func (h *SoftHardware) CalibrationPattern(port int, enable bool) error {
	log.Debugf("port %d: calibration pattern %v ignored by software hardware", port, enable)
	return nil
}

// CalibrationData implements Hardware
func (h *SoftHardware) CalibrationData(port int) (Calibration, error) {
	return h.calibration[port], nil
}

// EnableTimingOutput implements Hardware
func (h *SoftHardware) EnableTimingOutput(int, bool) error {
	return fsm.ErrUnsupported
}
