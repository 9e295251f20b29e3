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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/wrptp/ptp/timeout"
)

type handler func(inst *Instance, msg *Message) (State, time.Duration)

func (inst *Instance) handler() handler {
	switch inst.state {
	case StateInitializing:
		return initializing
	case StateFaulty:
		return faulty
	case StateDisabled:
		return disabled
	case StateListening:
		return listening
	case StatePreMaster, StateMaster:
		return master
	case StatePassive:
		return passive
	case StateUncalibrated, StateSlave:
		return slave
	case StateAbscal:
		return abscal
	}
	log.Panicf("%s: invalid state %d", inst.name, inst.state)
	return nil
}

func initializing(inst *Instance, _ *Message) (State, time.Duration) {
	if inst.isNewState {
		inst.clearTimeouts()
	}
	if inst.TimeoutArmed(TimeoutInState) && !inst.TimeoutExpired(TimeoutInState) {
		return StateInitializing, inst.TimeoutRemaining(TimeoutInState)
	}
	if err := inst.init(); err != nil {
		log.Warningf("%s: %v, retrying in %v", inst.name, err, inst.g.cfg.InitRetry)
		inst.count("init.failures")
		inst.SetTimeout(TimeoutInState, int(inst.g.cfg.InitRetry.Milliseconds()))
		return StateInitializing, inst.TimeoutRemaining(TimeoutInState)
	}
	switch {
	case inst.cfg.Abscal:
		return StateAbscal, 0
	case inst.cfg.Role == RoleMaster:
		return StateMaster, 0
	}
	return StateListening, 0
}

func faulty(inst *Instance, _ *Message) (State, time.Duration) {
	if inst.isNewState {
		inst.clearTimeouts()
		inst.SetTimeout(TimeoutProtocolState, int(inst.g.cfg.FaultGrace.Milliseconds()))
	}
	if inst.TimeoutExpired(TimeoutProtocolState) {
		inst.ClearTimeout(TimeoutProtocolState)
		return StateInitializing, 0
	}
	return StateFaulty, inst.TimeoutRemaining(TimeoutProtocolState)
}

func disabled(inst *Instance, _ *Message) (State, time.Duration) {
	if inst.isNewState {
		inst.clearTimeouts()
		inst.foreign = nil
		inst.erbest = nil
	}
	if inst.linkUp {
		return StateInitializing, 0
	}
	return StateDisabled, timeout.Never
}

func (inst *Instance) armAnnounceReceipt() {
	ms := int(inst.portDS.AnnounceReceiptTimeout) * timeout.LogIntervalMs(int8(inst.portDS.LogAnnounceInterval))
	inst.SetTimeout(TimeoutAnnounceReceipt, ms)
}

func listening(inst *Instance, msg *Message) (State, time.Duration) {
	if inst.isNewState {
		inst.ClearTimeout(TimeoutAnnounceSend)
		inst.ClearTimeout(TimeoutSyncSend)
		inst.ClearTimeout(TimeoutRequest)
		inst.armAnnounceReceipt()
	}
	if msg != nil {
		inst.handleMsg(msg)
	}
	if inst.TimeoutExpired(TimeoutAnnounceReceipt) {
		inst.expireForeign()
		if inst.cfg.Role != RoleSlave && !inst.g.DefaultDS.SlaveOnly {
			log.Infof("%s: no announce received, taking over as master", inst.name)
			return StateMaster, 0
		}
		inst.armAnnounceReceipt()
	}
	if next, ok := inst.applyRecommendation(); ok {
		return next, 0
	}
	return StateListening, inst.TimeoutRemaining(TimeoutAnnounceReceipt)
}

// qualificationMs is the PRE_MASTER hold time for the last BMCA decision
func (inst *Instance) qualificationMs() int {
	if inst.decision != "M3" {
		return 0
	}
	steps := int(inst.g.CurrentDS.StepsRemoved) + 1
	return steps * timeout.LogIntervalMs(int8(inst.portDS.LogAnnounceInterval))
}

func master(inst *Instance, msg *Message) (State, time.Duration) {
	pre := inst.state == StatePreMaster
	if inst.isNewState {
		inst.ClearTimeout(TimeoutAnnounceReceipt)
		inst.ClearTimeout(TimeoutRequest)
		if pre {
			inst.SetTimeout(TimeoutQualification, inst.qualificationMs())
		} else {
			inst.SetTimeout(TimeoutAnnounceSend, 0)
			inst.SetTimeout(TimeoutSyncSend, 0)
			inst.SetTimeout(TimeoutGMByBMCA, 0)
		}
	}
	if msg != nil {
		inst.handleMsg(msg)
	}
	if pre {
		if inst.TimeoutExpired(TimeoutQualification) {
			inst.ClearTimeout(TimeoutQualification)
			return StateMaster, 0
		}
		if next, ok := inst.applyRecommendation(); ok {
			return next, 0
		}
		return StatePreMaster, inst.TimeoutRemaining(TimeoutQualification)
	}

	if inst.TimeoutExpired(TimeoutGMByBMCA) {
		if inst.g.isGrandmaster() {
			inst.g.refreshTimeProperties()
		}
		inst.SetTimeout(TimeoutGMByBMCA, int(inst.g.cfg.GMRefresh.Milliseconds()))
	}
	if inst.TimeoutExpired(TimeoutAnnounceSend) {
		inst.issueAnnounce()
		inst.SetTimeoutLog(TimeoutAnnounceSend, int8(inst.portDS.LogAnnounceInterval))
	}
	if inst.TimeoutExpired(TimeoutSyncSend) {
		inst.issueSync()
		inst.SetTimeoutLog(TimeoutSyncSend, int8(inst.portDS.LogSyncInterval))
	}
	extDelay := timeout.Never
	if inst.extEnabled {
		extDelay = inst.ext.Execute(inst, msg)
	}
	if next, ok := inst.applyRecommendation(); ok {
		return next, 0
	}
	return StateMaster, timeout.Min(
		inst.TimeoutRemaining(TimeoutAnnounceSend),
		inst.TimeoutRemaining(TimeoutSyncSend),
		inst.TimeoutRemaining(TimeoutGMByBMCA),
		extDelay,
	)
}

func passive(inst *Instance, msg *Message) (State, time.Duration) {
	if inst.isNewState {
		inst.ClearTimeout(TimeoutAnnounceSend)
		inst.ClearTimeout(TimeoutSyncSend)
		inst.ClearTimeout(TimeoutRequest)
		inst.armAnnounceReceipt()
	}
	if msg != nil {
		inst.handleMsg(msg)
	}
	if inst.TimeoutExpired(TimeoutAnnounceReceipt) {
		inst.expireForeign()
		inst.g.ForceBMCA()
		inst.armAnnounceReceipt()
	}
	if next, ok := inst.applyRecommendation(); ok {
		return next, 0
	}
	return StatePassive, inst.TimeoutRemaining(TimeoutAnnounceReceipt)
}

func slave(inst *Instance, msg *Message) (State, time.Duration) {
	uncalibrated := inst.state == StateUncalibrated
	if inst.isNewState {
		inst.ClearTimeout(TimeoutAnnounceSend)
		inst.ClearTimeout(TimeoutSyncSend)
		inst.armAnnounceReceipt()
		inst.SetTimeoutLog(TimeoutRequest, int8(inst.portDS.LogMinDelayReqInterval))
		if uncalibrated {
			inst.servo.reset()
		}
	}
	if msg != nil {
		inst.handleMsg(msg)
	}
	if inst.TimeoutExpired(TimeoutAnnounceReceipt) {
		log.Warningf("%s: announce receipt timeout, master lost", inst.name)
		inst.expireForeign()
		inst.g.ForceBMCA()
		return StateListening, 0
	}
	if inst.TimeoutExpired(TimeoutRequest) {
		inst.issueDelayReq()
		inst.SetTimeoutLog(TimeoutRequest, int8(inst.portDS.LogMinDelayReqInterval))
	}
	extDelay := timeout.Never
	if inst.extEnabled {
		extDelay = inst.ext.Execute(inst, msg)
	}
	if next, ok := inst.applyRecommendation(); ok {
		return next, 0
	}
	if uncalibrated && (!inst.extEnabled || inst.ext.SlaveReady(inst)) {
		return StateSlave, 0
	}
	return inst.state, timeout.Min(
		inst.TimeoutRemaining(TimeoutAnnounceReceipt),
		inst.TimeoutRemaining(TimeoutRequest),
		extDelay,
	)
}

func abscal(inst *Instance, _ *Message) (State, time.Duration) {
	return StateAbscal, inst.ext.Abscal(inst)
}

// applyRecommendation returns the transition the last BMCA decision asks for
func (inst *Instance) applyRecommendation() (State, bool) {
	cur := inst.state
	var next State
	switch inst.recommended {
	case StateMaster:
		if cur.master() {
			return 0, false
		}
		next = StatePreMaster
	case StateSlave:
		if cur.slave() && !inst.parentChanged {
			return 0, false
		}
		inst.parentChanged = false
		if cur == StateUncalibrated {
			// new parent while still calibrating: start over in place
			inst.servo.reset()
			inst.armAnnounceReceipt()
			inst.ext.StateChange(inst, cur, cur)
			return 0, false
		}
		next = StateUncalibrated
	case StatePassive:
		next = StatePassive
	default:
		return 0, false
	}
	if next == cur {
		return 0, false
	}
	log.Debugf("%s: BMCA decision %s recommends %s", inst.name, inst.decision, inst.recommended)
	return next, true
}
