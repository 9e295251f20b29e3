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
	"errors"
	"net"
	"time"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

// ErrUnsupported is returned by collaborators for operations they cannot perform
var ErrUnsupported = errors.New("operation not supported")

// NetworkIO is the link an instance talks through
type NetworkIO interface {
	// Init prepares the link and fails while it is not usable
	Init() error
	// HardwareAddr returns the link address the clock identity derives from
	HardwareAddr() net.HardwareAddr
	// Send transmits b on the event or general channel and returns the transmit timestamp
	Send(b []byte, event bool) (ptime.Time, error)
}

// ClockLockState is the lock state of the clock discipline
type ClockLockState uint8

// Lock states
const (
	ClockUnlocked ClockLockState = iota
	ClockLocked
)

func (s ClockLockState) String() string {
	if s == ClockLocked {
		return "LOCKED"
	}
	return "UNLOCKED"
}

// TimeOps is the local clock
type TimeOps interface {
	Get() (ptime.Time, error)
	Set(t ptime.Time) error
	// Adjust steps the clock by offsetNs and sets its frequency to freqPPB
	Adjust(offsetNs int64, freqPPB float64) error
	AdjustOffset(offsetNs int64) error
	ServoState() ClockLockState
	// UTCOffset returns TAI-UTC and pending leap flags, or ErrUnsupported
	UTCOffset() (offset int, leap59 bool, leap61 bool, err error)
}

// ExtStatus is the extension part of the status snapshot
type ExtStatus struct {
	Name       string `json:"name"`
	State      string `json:"state,omitempty"`
	Mode       string `json:"mode,omitempty"`
	LinkOn     bool   `json:"link_on"`
	Calibrated bool   `json:"calibrated"`
	Failures   int    `json:"failures"`
}

// Extension hooks a protocol extension into the state machine
type Extension interface {
	// Init runs every time the instance initializes
	Init(inst *Instance) error
	// StateChange runs after every base state transition
	StateChange(inst *Instance, from, to State)
	// Execute runs the extension sub-state machine in MASTER, UNCALIBRATED and SLAVE
	Execute(inst *Instance, msg *Message) time.Duration
	// SlaveReady allows UNCALIBRATED to move to SLAVE
	SlaveReady(inst *Instance) bool
	// PackAnnounce returns TLVs to append to outgoing Announce messages
	PackAnnounce(inst *Instance) []ptp.TLV
	// HandleAnnounce sees every Announce received by the instance
	HandleAnnounce(inst *Instance, a *ptp.Announce)
	// AdjustClock may take over clock correction, returning true when it did
	AdjustClock(inst *Instance, offset ptime.Time) bool
	// Abscal runs in the ABSCAL state
	Abscal(inst *Instance) time.Duration
	// Status reports the extension state for export
	Status(inst *Instance) ExtStatus
}

// NoExtension is plain PTP, every hook does nothing
type NoExtension struct{}

// Init implements Extension
func (NoExtension) Init(*Instance) error { return nil }

// StateChange implements Extension
func (NoExtension) StateChange(*Instance, State, State) {}

// Execute implements Extension
func (NoExtension) Execute(*Instance, *Message) time.Duration { return timeout.Never }

// SlaveReady implements Extension
func (NoExtension) SlaveReady(*Instance) bool { return true }

// PackAnnounce implements Extension
func (NoExtension) PackAnnounce(*Instance) []ptp.TLV { return nil }

// HandleAnnounce implements Extension
func (NoExtension) HandleAnnounce(*Instance, *ptp.Announce) {}

// AdjustClock implements Extension
func (NoExtension) AdjustClock(*Instance, ptime.Time) bool { return false }

// Abscal implements Extension
func (NoExtension) Abscal(*Instance) time.Duration { return timeout.Never }

// Status implements Extension
func (NoExtension) Status(*Instance) ExtStatus { return ExtStatus{Name: ExtensionNone} }
