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
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

type subHandler func(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration

func (e *Extension) handler(inst *fsm.Instance, s State) subHandler {
	switch s {
	case StateIdle:
		return idle
	case StatePresent:
		return present
	case StateMLock:
		return mLock
	case StateSLock:
		return sLock
	case StateLocked:
		return locked
	case StateCalibration:
		return calibration
	case StateCalibrated:
		return calibrated
	case StateRespCalibReq:
		return respCalibReq
	case StateLinkOn:
		return linkOn
	case StateAbscal:
		return abscal
	}
	log.Panicf("%s: invalid WR state %d", inst.Name(), s)
	return nil
}

// Execute implements fsm.Extension, running one step of the handshake
func (e *Extension) Execute(inst *fsm.Instance, msg *fsm.Message) time.Duration {
	r := RecordOf(inst)
	tlv := signalingTLV(msg)
	if tlv != nil {
		log.Debugf("%s: WR %s received in %s", inst.Name(), tlv.MessageID, r.State)
	}
	prev := r.State
	delay := e.handler(inst, prev)(e, inst, r, tlv)
	if r.State != prev {
		log.Infof("%s: WR %s -> %s", inst.Name(), prev, r.State)
		r.isNew = true
		return 0
	}
	r.isNew = false
	return delay
}

func signalingTLV(msg *fsm.Message) *ptp.WRTLV {
	if msg == nil {
		return nil
	}
	s, ok := msg.Body.(*ptp.Signaling)
	if !ok {
		return nil
	}
	return ptp.FindWRTLV(s.TLVs)
}

func is(tlv *ptp.WRTLV, id ptp.WRMessageID) bool {
	return tlv != nil && tlv.MessageID == id
}

func (e *Extension) send(inst *fsm.Instance, tlv *ptp.WRTLV) error {
	log.Debugf("%s: WR sending %s", inst.Name(), tlv.MessageID)
	return inst.SendSignaling(tlv)
}

func (e *Extension) sendID(inst *fsm.Instance, id ptp.WRMessageID) func() error {
	return func() error {
		return e.send(inst, ptp.NewWRTLV(id))
	}
}

// await runs a state waiting for the other end. action runs on entry and on
// every expiry while retries remain; once they are spent the handshake fails.
func (e *Extension) await(inst *fsm.Instance, r *Record, d time.Duration, action func() error) time.Duration {
	sched := inst.Globals().Scheduler()
	switch {
	case r.isNew:
		r.RetriesLeft = e.cfg.Retries
	case sched.Expired(&r.Deadline):
		if r.RetriesLeft == 0 {
			e.handshakeFail(inst, r)
			return 0
		}
		r.RetriesLeft--
		log.Debugf("%s: WR %s timeout, %d retries left", inst.Name(), r.State, r.RetriesLeft)
	default:
		return sched.Remaining(&r.Deadline)
	}
	if action != nil {
		if err := action(); err != nil {
			log.Warningf("%s: WR %s: %v", inst.Name(), r.State, err)
		}
	}
	sched.Set(&r.Deadline, int(d.Milliseconds()))
	return sched.Remaining(&r.Deadline)
}

func idle(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	switch inst.State() {
	case fsm.StateMaster:
		if is(tlv, ptp.WRSlavePresent) && e.flags(inst).CanMaster() {
			if r.LinkOn {
				log.Infof("%s: WR slave restarted the handshake", inst.Name())
				r.reset()
			}
			r.Mode = ModeMaster
			r.State = StateMLock
		}
		// the slave missed WR_MODE_ON
		if is(tlv, ptp.WRCalibrated) && r.LinkOn {
			if err := e.send(inst, ptp.NewWRTLV(ptp.WRModeOn)); err != nil {
				log.Warningf("%s: %v", inst.Name(), err)
			}
		}
	case fsm.StateUncalibrated:
		if !r.LinkOn && e.parentIsWR(inst) {
			r.Mode = ModeSlave
			r.State = StatePresent
		}
	}
	return timeout.Never
}

func present(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	if !r.isNew && is(tlv, ptp.WRLock) {
		r.State = StateSLock
		return 0
	}
	return e.await(inst, r, e.cfg.PresentTimeout, e.sendID(inst, ptp.WRSlavePresent))
}

func mLock(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	if !r.isNew && is(tlv, ptp.WRLocked) {
		r.State = StateCalibration
		return 0
	}
	return e.await(inst, r, e.cfg.LockTimeout, e.sendID(inst, ptp.WRLock))
}

func sLock(e *Extension, inst *fsm.Instance, r *Record, _ *ptp.WRTLV) time.Duration {
	port := inst.Index()
	delay := e.await(inst, r, e.cfg.LockTimeout, func() error {
		if !r.isNew {
			if err := e.hw.LockingReset(port); err != nil {
				return err
			}
		}
		return e.hw.LockingEnable(port)
	})
	if r.State != StateSLock {
		return 0
	}
	ok, err := e.hw.LockingPoll(port)
	if err != nil {
		log.Warningf("%s: polling lock: %v", inst.Name(), err)
	}
	if ok {
		r.State = StateLocked
		return 0
	}
	return min(delay, e.cfg.LockPoll)
}

func locked(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	if !r.isNew && is(tlv, ptp.WRCalibrate) {
		r.OtherCalSendPattern = tlv.CalSendPattern
		r.OtherCalPeriod = time.Duration(tlv.CalPeriod) * time.Microsecond
		r.State = StateRespCalibReq
		return 0
	}
	return e.await(inst, r, e.cfg.LockedTimeout, e.sendID(inst, ptp.WRLocked))
}

// calibration asks the other end for the calibration pattern, waits the
// calibration period and reads the local latencies
func calibration(e *Extension, inst *fsm.Instance, r *Record, _ *ptp.WRTLV) time.Duration {
	sched := inst.Globals().Scheduler()
	period := int(e.cfg.CalibrationTimeout.Milliseconds())
	if r.isNew {
		r.RetriesLeft = e.cfg.Retries
		tlv := ptp.NewWRTLV(ptp.WRCalibrate)
		tlv.CalSendPattern = true
		tlv.CalRetry = uint8(e.cfg.Retries)
		tlv.CalPeriod = uint32(e.cfg.CalibrationTimeout.Microseconds())
		if err := e.send(inst, tlv); err != nil {
			log.Warningf("%s: %v", inst.Name(), err)
		}
		sched.Set(&r.Deadline, period)
		return sched.Remaining(&r.Deadline)
	}
	if !sched.Expired(&r.Deadline) {
		return sched.Remaining(&r.Deadline)
	}
	c, err := e.hw.CalibrationData(inst.Index())
	if err != nil {
		log.Warningf("%s: reading calibration: %v", inst.Name(), err)
		if r.RetriesLeft == 0 {
			e.handshakeFail(inst, r)
			return 0
		}
		r.RetriesLeft--
		sched.Set(&r.Deadline, period)
		return sched.Remaining(&r.Deadline)
	}
	r.DeltaTx = ptime.FromPicoseconds(c.EgressPs)
	r.DeltaRx = ptime.FromPicoseconds(c.IngressPs)
	r.Calibrated = true
	inst.Servo().SetLocalDeltas(r.DeltaTx, r.DeltaRx)
	log.Infof("%s: WR calibrated, delta tx %s delta rx %s", inst.Name(), r.DeltaTx, r.DeltaRx)
	r.State = StateCalibrated
	return 0
}

func calibrated(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	if !r.isNew {
		switch {
		case r.Mode == ModeMaster && is(tlv, ptp.WRCalibrate):
			r.OtherCalSendPattern = tlv.CalSendPattern
			r.OtherCalPeriod = time.Duration(tlv.CalPeriod) * time.Microsecond
			r.State = StateRespCalibReq
			return 0
		case r.Mode == ModeSlave && is(tlv, ptp.WRModeOn):
			r.State = StateLinkOn
			return 0
		}
	}
	return e.await(inst, r, e.cfg.CalibratedTimeout, func() error {
		tlv := ptp.NewWRTLV(ptp.WRCalibrated)
		tlv.DeltaTx = r.DeltaTx.Picoseconds() << 16
		tlv.DeltaRx = r.DeltaRx.Picoseconds() << 16
		return e.send(inst, tlv)
	})
}

// respCalibReq sends the calibration pattern while the other end calibrates
func respCalibReq(e *Extension, inst *fsm.Instance, r *Record, tlv *ptp.WRTLV) time.Duration {
	port := inst.Index()
	if !r.isNew && is(tlv, ptp.WRCalibrated) {
		r.OtherDeltaTx = ptime.FromPicoseconds(tlv.DeltaTx >> 16)
		r.OtherDeltaRx = ptime.FromPicoseconds(tlv.DeltaRx >> 16)
		e.stopPattern(inst, r)
		if r.Mode == ModeMaster {
			r.State = StateLinkOn
		} else {
			r.State = StateCalibration
		}
		return 0
	}
	pattern := r.OtherCalSendPattern
	delay := e.await(inst, r, max(r.OtherCalPeriod, e.cfg.RespCalibReqTimeout), func() error {
		if r.isNew && pattern {
			return e.hw.CalibrationPattern(port, true)
		}
		return nil
	})
	if r.State != StateRespCalibReq && pattern {
		// handshake failed
		if err := e.hw.CalibrationPattern(port, false); err != nil {
			log.Warningf("%s: disabling calibration pattern: %v", inst.Name(), err)
		}
	}
	return delay
}

func (e *Extension) stopPattern(inst *fsm.Instance, r *Record) {
	if !r.OtherCalSendPattern {
		return
	}
	if err := e.hw.CalibrationPattern(inst.Index(), false); err != nil {
		log.Warningf("%s: disabling calibration pattern: %v", inst.Name(), err)
	}
}

// linkOn completes the handshake, it runs once per entry
func linkOn(e *Extension, inst *fsm.Instance, r *Record, _ *ptp.WRTLV) time.Duration {
	if r.Mode == ModeMaster {
		if err := e.send(inst, ptp.NewWRTLV(ptp.WRModeOn)); err != nil {
			log.Warningf("%s: %v", inst.Name(), err)
		}
	}
	if err := e.hw.EnablePhaseTracking(inst.Index()); err != nil {
		log.Warningf("%s: enabling phase tracking: %v", inst.Name(), err)
	}
	r.LinkOn = true
	if r.Mode == ModeSlave {
		inst.Servo().SetLocalDeltas(r.DeltaTx, r.DeltaRx)
		inst.Servo().SetPeerDeltas(r.OtherDeltaTx, r.OtherDeltaRx)
	}
	log.Infof("%s: WR link on as %s", inst.Name(), r.Mode)
	if e.cfg.Abscal {
		r.State = StateAbscal
	} else {
		r.State = StateIdle
	}
	return 0
}

func abscal(e *Extension, inst *fsm.Instance, r *Record, _ *ptp.WRTLV) time.Duration {
	if r.isNew {
		if err := e.hw.EnableTimingOutput(inst.Index(), true); err != nil {
			log.Warningf("%s: enabling timing output: %v", inst.Name(), err)
		}
	}
	return timeout.Never
}
