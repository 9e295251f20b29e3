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

	log "github.com/sirupsen/logrus"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

// Slot names one of the per-instance timers
type Slot int

// Timer slots. The extension slots are free for the extension to use.
const (
	TimeoutRequest Slot = iota
	TimeoutSyncSend
	TimeoutAnnounceReceipt
	TimeoutAnnounceSend
	TimeoutQualification
	TimeoutProtocolState
	TimeoutInState
	TimeoutGMByBMCA
	TimeoutExt0
	TimeoutExt1
	TimeoutExt2
	TimeoutExt3
	NumTimeouts
)

var slotDefs = [NumTimeouts]struct {
	name   string
	policy timeout.Policy
}{
	TimeoutRequest:         {"REQUEST", timeout.PolicyRange0to200},
	TimeoutSyncSend:        {"SYNC_SEND", timeout.PolicyRange70to130},
	TimeoutAnnounceReceipt: {"ANN_RECEIPT", timeout.PolicyNone},
	TimeoutAnnounceSend:    {"ANN_SEND", timeout.PolicyRange70to130},
	TimeoutQualification:   {"QUALIFICATION", timeout.PolicyNone},
	TimeoutProtocolState:   {"PROTOCOL_STATE", timeout.PolicyNone},
	TimeoutInState:         {"IN_STATE", timeout.PolicyNone},
	TimeoutGMByBMCA:        {"GM_BY_BMCA", timeout.PolicyNone},
	TimeoutExt0:            {"EXT_0", timeout.PolicyNone},
	TimeoutExt1:            {"EXT_1", timeout.PolicyNone},
	TimeoutExt2:            {"EXT_2", timeout.PolicyNone},
	TimeoutExt3:            {"EXT_3", timeout.PolicyNone},
}

// Packet is a received frame and its receive timestamp
type Packet struct {
	Data   []byte
	RxTime ptime.Time
}

// Message is a decoded packet as handed to state handlers
type Message struct {
	Header *ptp.Header
	Body   ptp.Packet
	RxTime ptime.Time
}

// Instance is one PTP port
type Instance struct {
	name  string
	index int
	cfg   InstanceConfig
	g     *Globals
	net   NetworkIO

	ext        Extension
	hasExt     bool
	extEnabled bool
	extData    any

	state      State
	pending    State
	isNewState bool
	linkUp     bool

	portDS PortDS
	timers [NumTimeouts]timeout.Timer

	foreign       []*foreignMaster
	erbest        *foreignMaster
	recommended   State
	decision      string
	parentChanged bool

	seq      [16]uint16
	servo    *SlaveServo
	counters map[string]int64
}

// Name returns the instance name
func (inst *Instance) Name() string {
	return inst.name
}

// Index returns the position of the instance in Globals
func (inst *Instance) Index() int {
	return inst.index
}

// Config returns the instance configuration
func (inst *Instance) Config() InstanceConfig {
	return inst.cfg
}

// Globals returns the node the instance belongs to
func (inst *Instance) Globals() *Globals {
	return inst.g
}

// State returns the current base state
func (inst *Instance) State() State {
	return inst.state
}

// IsNewState reports whether the current handler call is the first one in this state
func (inst *Instance) IsNewState() bool {
	return inst.isNewState
}

// PortIdentity returns the identity of the port
func (inst *Instance) PortIdentity() ptp.PortIdentity {
	return inst.portDS.PortIdentity
}

// PortDS returns a copy of the port dataset
func (inst *Instance) PortDS() PortDS {
	return inst.portDS
}

// Recommended returns the state last recommended by the BMCA, 0 if none
func (inst *Instance) Recommended() State {
	return inst.recommended
}

// ExtensionEnabled reports whether the extension hooks are active
func (inst *Instance) ExtensionEnabled() bool {
	return inst.extEnabled
}

// DisableExtension turns the extension off until the next initialization
func (inst *Instance) DisableExtension() {
	if inst.extEnabled {
		log.Warningf("%s: extension disabled, continuing as plain PTP", inst.name)
	}
	inst.extEnabled = false
}

// ExtData returns the extension's per-instance record
func (inst *Instance) ExtData() any {
	return inst.extData
}

// SetExtData stores the extension's per-instance record
func (inst *Instance) SetExtData(d any) {
	inst.extData = d
}

// Servo returns the slave servo of the instance
func (inst *Instance) Servo() *SlaveServo {
	return inst.servo
}

// RequestState asks for a transition to s. It is applied after the current
// handler call and overrides the state the handler returned.
func (inst *Instance) RequestState(s State) {
	if !s.valid() {
		log.Panicf("%s: requested invalid state %d", inst.name, s)
	}
	log.Debugf("%s: state %s requested", inst.name, s)
	inst.pending = s
}

// Fault moves the instance to FAULTY
func (inst *Instance) Fault(err error) {
	log.Errorf("%s: fault: %v", inst.name, err)
	inst.count("fault")
	inst.RequestState(StateFaulty)
}

// SetLinkUp records a link state change. Losing the link disables the instance,
// regaining it restarts initialization.
func (inst *Instance) SetLinkUp(up bool) {
	if up == inst.linkUp {
		return
	}
	inst.linkUp = up
	if !up {
		log.Warningf("%s: link down", inst.name)
		inst.RequestState(StateDisabled)
		inst.g.ForceBMCA()
		return
	}
	log.Infof("%s: link up", inst.name)
	if inst.state == StateDisabled {
		inst.RequestState(StateInitializing)
	}
}

// LinkUp returns the last known link state
func (inst *Instance) LinkUp() bool {
	return inst.linkUp
}

// SetTimeout arms slot s to expire after ms milliseconds
func (inst *Instance) SetTimeout(s Slot, ms int) {
	inst.g.sched.Set(&inst.timers[s], ms)
}

// SetTimeoutLog arms slot s with a PTP log interval
func (inst *Instance) SetTimeoutLog(s Slot, logInterval int8) {
	inst.g.sched.SetLog(&inst.timers[s], logInterval)
}

// ClearTimeout disarms slot s
func (inst *Instance) ClearTimeout(s Slot) {
	inst.g.sched.Clear(&inst.timers[s])
}

// TimeoutArmed reports whether slot s has a deadline
func (inst *Instance) TimeoutArmed(s Slot) bool {
	return inst.timers[s].Armed()
}

// TimeoutExpired reports whether slot s is armed and due
func (inst *Instance) TimeoutExpired(s Slot) bool {
	return inst.g.sched.Expired(&inst.timers[s])
}

// TimeoutRemaining returns the time until slot s expires
func (inst *Instance) TimeoutRemaining(s Slot) time.Duration {
	return inst.g.sched.Remaining(&inst.timers[s])
}

func (inst *Instance) clearTimeouts() {
	for i := range inst.timers {
		inst.g.sched.Clear(&inst.timers[i])
	}
}

func (inst *Instance) count(name string) {
	inst.counters[name]++
}

// init brings the port up. It runs on every entry to INITIALIZING.
func (inst *Instance) init() error {
	if err := inst.net.Init(); err != nil {
		return fmt.Errorf("initializing link: %w", err)
	}
	id, err := ptp.NewClockIdentity(inst.net.HardwareAddr())
	if err != nil {
		return fmt.Errorf("deriving clock identity: %w", err)
	}
	g := inst.g
	if g.DefaultDS.ClockIdentity == 0 {
		g.DefaultDS.ClockIdentity = id
		log.Infof("clock identity %s", id)
		g.becomeGrandmaster()
	}
	inst.linkUp = true
	inst.clearTimeouts()
	inst.portDS = PortDS{
		PortIdentity: ptp.PortIdentity{
			ClockIdentity: g.DefaultDS.ClockIdentity,
			PortNumber:    uint16(inst.index + 1),
		},
		LogMinDelayReqInterval: ptp.LogInterval(g.cfg.LogMinDelayReqInterval),
		LogAnnounceInterval:    ptp.LogInterval(g.cfg.LogAnnounceInterval),
		AnnounceReceiptTimeout: g.cfg.AnnounceReceiptTimeout,
		LogSyncInterval:        ptp.LogInterval(g.cfg.LogSyncInterval),
		VersionNumber:          ptp.MajorVersion,
	}
	inst.foreign = nil
	inst.erbest = nil
	inst.recommended = 0
	inst.decision = ""
	inst.parentChanged = false
	inst.servo.reset()
	inst.extEnabled = inst.hasExt
	if err := inst.ext.Init(inst); err != nil {
		return fmt.Errorf("initializing extension: %w", err)
	}
	g.ForceBMCA()
	return nil
}

// Run executes one step of the instance state machine with an optional
// received packet and returns how long the caller may wait before the next step.
func (inst *Instance) Run(pkt *Packet) time.Duration {
	msg := inst.decode(pkt)
	var next State
	var delay time.Duration
	if inst.pending != 0 {
		next = inst.pending
	} else {
		next, delay = inst.handler()(inst, msg)
	}
	if inst.pending != 0 {
		next = inst.pending
		inst.pending = 0
	}
	if next == inst.state {
		inst.isNewState = false
		return delay
	}
	prev := inst.state
	log.Infof("%s: %s -> %s", inst.name, prev, next)
	inst.count("transitions")
	inst.state = next
	inst.isNewState = true
	inst.ext.StateChange(inst, prev, next)
	return 0
}

// decode turns a raw packet into a Message, nil when the packet is dropped
func (inst *Instance) decode(pkt *Packet) *Message {
	if pkt == nil {
		return nil
	}
	hdr, err := ptp.DecodeHeader(pkt.Data)
	if err != nil {
		log.Debugf("%s: dropping packet: %v", inst.name, err)
		inst.count("rx.malformed")
		return nil
	}
	if hdr.DomainNumber != inst.g.cfg.DomainNumber {
		inst.count("rx.other_domain")
		return nil
	}
	own := inst.g.DefaultDS.ClockIdentity
	if own != 0 && hdr.SourcePortIdentity.ClockIdentity == own {
		inst.count("rx.own")
		return nil
	}
	body, err := ptp.DecodePacket(pkt.Data)
	if err != nil {
		log.Debugf("%s: dropping %s: %v", inst.name, hdr.MessageType(), err)
		inst.count("rx.malformed")
		return nil
	}
	inst.count("rx." + hdr.MessageType().String())
	return &Message{Header: hdr, Body: body, RxTime: pkt.RxTime}
}
