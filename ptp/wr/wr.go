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
Package wr implements the White Rabbit extension of PTP: a handshake run
over Signaling messages once a link is up, in which both ends lock their
oscillators, exchange their fixed latencies and switch the link to WR mode.
*/
package wr

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/ptp/fsm"
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

// Name of the extension
const Name = fsm.ExtensionWhiteRabbit

// State is the handshake sub-state
type State uint8

// Handshake states
const (
	StateIdle State = iota
	StatePresent
	StateMLock
	StateSLock
	StateLocked
	StateCalibration
	StateCalibrated
	StateRespCalibReq
	StateLinkOn
	StateAbscal
)

var stateToString = map[State]string{
	StateIdle:         "IDLE",
	StatePresent:      "PRESENT",
	StateMLock:        "M_LOCK",
	StateSLock:        "S_LOCK",
	StateLocked:       "LOCKED",
	StateCalibration:  "CALIBRATION",
	StateCalibrated:   "CALIBRATED",
	StateRespCalibReq: "RESP_CALIB_REQ",
	StateLinkOn:       "LINK_ON",
	StateAbscal:       "ABSCAL",
}

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("WR_STATE(%d)", uint8(s))
}

// Mode is the role negotiated for the link
type Mode uint8

// Modes
const (
	ModeNone Mode = iota
	ModeMaster
	ModeSlave
)

func (m Mode) String() string {
	switch m {
	case ModeMaster:
		return "master"
	case ModeSlave:
		return "slave"
	}
	return "none"
}

// Config of the extension
type Config struct {
	// PTPFallback keeps the port running plain PTP when the handshake fails,
	// otherwise the port restarts from INITIALIZING
	PTPFallback bool `yaml:"ptp_fallback"`
	// Retries is the number of resends before a waiting state gives up
	Retries int `yaml:"retries"`
	// Abscal runs absolute calibration once the link is on
	Abscal              bool          `yaml:"abscal"`
	PresentTimeout      time.Duration `yaml:"present_timeout"`
	LockTimeout         time.Duration `yaml:"lock_timeout"`
	LockedTimeout       time.Duration `yaml:"locked_timeout"`
	CalibrationTimeout  time.Duration `yaml:"calibration_timeout"`
	CalibratedTimeout   time.Duration `yaml:"calibrated_timeout"`
	RespCalibReqTimeout time.Duration `yaml:"resp_calib_req_timeout"`
	LockPoll            time.Duration `yaml:"lock_poll"`
	// CoarseThreshold is the offset above which the time counters are shifted instead of the phase
	CoarseThreshold time.Duration `yaml:"coarse_threshold"`
}

// DefaultConfig returns the WR default timeouts
func DefaultConfig() Config {
	return Config{
		PTPFallback:         true,
		Retries:             3,
		PresentTimeout:      1000 * time.Millisecond,
		LockTimeout:         15000 * time.Millisecond,
		LockedTimeout:       300 * time.Millisecond,
		CalibrationTimeout:  3000 * time.Millisecond,
		CalibratedTimeout:   300 * time.Millisecond,
		RespCalibReqTimeout: 3000 * time.Millisecond,
		LockPoll:            100 * time.Millisecond,
		CoarseThreshold:     time.Microsecond,
	}
}

// Validate checks the config
func (c *Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("wr retries must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"present_timeout":        c.PresentTimeout,
		"lock_timeout":           c.LockTimeout,
		"locked_timeout":         c.LockedTimeout,
		"calibration_timeout":    c.CalibrationTimeout,
		"calibrated_timeout":     c.CalibratedTimeout,
		"resp_calib_req_timeout": c.RespCalibReqTimeout,
		"lock_poll":              c.LockPoll,
	} {
		if d <= 0 {
			return fmt.Errorf("wr %s must be positive", name)
		}
	}
	return nil
}

// Record is the per-instance handshake state
type Record struct {
	State State
	Mode  Mode
	// RetriesLeft and Deadline belong to the current waiting state
	RetriesLeft int
	Deadline    timeout.Timer
	isNew       bool

	// own latencies, and those reported by the other end
	DeltaTx      ptime.Time
	DeltaRx      ptime.Time
	OtherDeltaTx ptime.Time
	OtherDeltaRx ptime.Time
	Calibrated   bool

	// calibration parameters requested by the other end
	OtherCalSendPattern bool
	OtherCalPeriod      time.Duration

	ParentFlags ptp.WRFlags
	LinkOn      bool
	Failures    int
}

// reset returns the record to IDLE, keeping the failure count
func (r *Record) reset() {
	*r = Record{
		Deadline: timeout.NewTimer("WR", timeout.PolicyNone),
		Failures: r.Failures,
	}
}

// Extension implements fsm.Extension for White Rabbit
type Extension struct {
	cfg Config
	hw  Hardware
}

// New returns the WR extension driving hw
func New(cfg Config, hw Hardware) *Extension {
	return &Extension{cfg: cfg, hw: hw}
}

// RecordOf returns the handshake record of inst
func RecordOf(inst *fsm.Instance) *Record {
	r, ok := inst.ExtData().(*Record)
	if !ok {
		r = &Record{}
		r.reset()
		inst.SetExtData(r)
	}
	return r
}

// flags returns the capabilities advertised by inst
func (e *Extension) flags(inst *fsm.Instance) ptp.WRFlags {
	var f ptp.WRFlags
	switch inst.Config().Role {
	case fsm.RoleMaster:
		f = ptp.WRConfigMaster
	case fsm.RoleSlave:
		f = ptp.WRConfigSlave
	default:
		f = ptp.WRConfigMasterSlave
	}
	r := RecordOf(inst)
	if r.Calibrated {
		f |= ptp.WRCalibratedFlag
	}
	if r.LinkOn {
		f |= ptp.WRModeOnFlag
	}
	return f
}

// parentIsWR reports whether the parent advertises WR master capability
func (e *Extension) parentIsWR(inst *fsm.Instance) bool {
	return RecordOf(inst).ParentFlags.CanMaster() && e.flags(inst).CanSlave()
}

// Init implements fsm.Extension
func (e *Extension) Init(inst *fsm.Instance) error {
	if e.hw == nil {
		return fmt.Errorf("no WR hardware")
	}
	RecordOf(inst).reset()
	return nil
}

// StateChange implements fsm.Extension. The handshake survives only the
// transitions that keep the link role, UNCALIBRATED to SLAVE and PRE_MASTER to MASTER.
func (e *Extension) StateChange(inst *fsm.Instance, from, to fsm.State) {
	if (from == fsm.StateUncalibrated && to == fsm.StateSlave) ||
		(from == fsm.StatePreMaster && to == fsm.StateMaster) {
		return
	}
	r := RecordOf(inst)
	if r.State != StateIdle || r.LinkOn {
		log.Infof("%s: WR handshake reset on %s -> %s", inst.Name(), from, to)
		if r.Mode == ModeSlave {
			if err := e.hw.LockingDisable(inst.Index()); err != nil {
				log.Warningf("%s: disabling locking: %v", inst.Name(), err)
			}
		}
	}
	r.reset()
	inst.Servo().ClearDeltas()
	if to == fsm.StateUncalibrated {
		if a := inst.ParentAnnounce(); a != nil {
			if tlv := ptp.FindWRTLV(a.TLVs); tlv != nil {
				r.ParentFlags = tlv.Flags
			}
		}
	}
}

// HandleAnnounce implements fsm.Extension, tracking the parent's WR flags
func (e *Extension) HandleAnnounce(inst *fsm.Instance, a *ptp.Announce) {
	pa := inst.ParentAnnounce()
	if pa == nil || pa.SourcePortIdentity != a.SourcePortIdentity {
		return
	}
	var flags ptp.WRFlags
	if tlv := ptp.FindWRTLV(a.TLVs); tlv != nil {
		flags = tlv.Flags
	}
	RecordOf(inst).ParentFlags = flags
}

// PackAnnounce implements fsm.Extension
func (e *Extension) PackAnnounce(inst *fsm.Instance) []ptp.TLV {
	tlv := ptp.NewWRTLV(ptp.WRAnnounce)
	tlv.Flags = e.flags(inst)
	return []ptp.TLV{tlv}
}

// SlaveReady implements fsm.Extension. A parent without WR does not hold the slave back.
func (e *Extension) SlaveReady(inst *fsm.Instance) bool {
	return RecordOf(inst).LinkOn || !e.parentIsWR(inst)
}

// AdjustClock implements fsm.Extension. Once the link is on, the slave corrects
// its clock through the hardware adjusters.
func (e *Extension) AdjustClock(inst *fsm.Instance, offset ptime.Time) bool {
	r := RecordOf(inst)
	if !r.LinkOn || r.Mode != ModeSlave {
		return false
	}
	port := inst.Index()
	if e.hw.AdjustInProgress(port) {
		return true
	}
	ns := offset.Nanoseconds()
	var err error
	if abs(ns) >= e.cfg.CoarseThreshold.Nanoseconds() {
		ns = -ns
		err = e.hw.AdjustCounters(port, ns/int64(time.Second), ns%int64(time.Second))
	} else {
		err = e.hw.AdjustPhase(port, -offset.Picoseconds())
	}
	if err != nil {
		log.Errorf("%s: WR clock adjustment: %v", inst.Name(), err)
	}
	return true
}

// Abscal implements fsm.Extension: the port drives its timing output and
// reports its latencies for an external measurement
func (e *Extension) Abscal(inst *fsm.Instance) time.Duration {
	port := inst.Index()
	if inst.IsNewState() {
		if err := e.hw.EnableTimingOutput(port, true); err != nil {
			log.Warningf("%s: enabling timing output: %v", inst.Name(), err)
		}
		inst.SetTimeout(fsm.TimeoutExt0, 0)
	}
	if inst.TimeoutExpired(fsm.TimeoutExt0) {
		if c, err := e.hw.CalibrationData(port); err != nil {
			log.Warningf("%s: reading calibration: %v", inst.Name(), err)
		} else {
			log.Infof("%s: abscal egress %d ps ingress %d ps", inst.Name(), c.EgressPs, c.IngressPs)
		}
		inst.SetTimeout(fsm.TimeoutExt0, 1000)
	}
	return inst.TimeoutRemaining(fsm.TimeoutExt0)
}

// Status implements fsm.Extension
func (e *Extension) Status(inst *fsm.Instance) fsm.ExtStatus {
	r := RecordOf(inst)
	return fsm.ExtStatus{
		Name:       Name,
		State:      r.State.String(),
		Mode:       r.Mode.String(),
		LinkOn:     r.LinkOn,
		Calibrated: r.Calibrated,
		Failures:   r.Failures,
	}
}

// handshakeFail gives up the handshake
func (e *Extension) handshakeFail(inst *fsm.Instance, r *Record) {
	r.Failures++
	log.Warningf("%s: WR handshake failed in %s", inst.Name(), r.State)
	if r.Mode == ModeSlave {
		if err := e.hw.LockingDisable(inst.Index()); err != nil {
			log.Warningf("%s: disabling locking: %v", inst.Name(), err)
		}
	}
	if e.cfg.PTPFallback {
		inst.DisableExtension()
		r.reset()
		return
	}
	r.reset()
	inst.RequestState(fsm.StateInitializing)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
