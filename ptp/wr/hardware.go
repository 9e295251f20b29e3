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

//go:generate mockgen -source hardware.go -destination hardware_mock.go -package wr

// Calibration holds the fixed latencies of one port, in picoseconds
type Calibration struct {
	EgressPs  int64
	IngressPs int64
}

// Hardware is the timing hardware behind WR ports. port is the instance index.
type Hardware interface {
	// LockingEnable starts locking the local oscillator to the recovered clock
	LockingEnable(port int) error
	// LockingPoll reports whether the oscillator is locked
	LockingPoll(port int) (bool, error)
	LockingDisable(port int) error
	LockingReset(port int) error
	EnablePhaseTracking(port int) error
	// AdjustInProgress reports whether a previous clock adjustment is still being applied
	AdjustInProgress(port int) bool
	// AdjustCounters shifts the time counters, the coarse adjustment
	AdjustCounters(port int, sec, ns int64) error
	// AdjustPhase shifts the clock phase, the fine adjustment
	AdjustPhase(port int, ps int64) error
	CalibrationPattern(port int, enable bool) error
	CalibrationData(port int) (Calibration, error)
	EnableTimingOutput(port int, enable bool) error
}
