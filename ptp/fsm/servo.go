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
	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/servo"
)

// ServoDS is the servo dataset of an instance
type ServoDS struct {
	State         servo.State
	Offset        ptime.Time
	MeanPathDelay ptime.Time
	Freq          float64
	Updates       int
	OffsetMean    float64
	OffsetStddev  float64
}

// SlaveServo tracks the t1..t4 exchange of a slave port and disciplines the clock
type SlaveServo struct {
	cfg Config
	pi  *servo.PiServo
	ds  ServoDS
	// offset samples in ns
	stats *welford.Stats

	// fixed delays of the link, all zero for plain PTP
	localTx, localRx ptime.Time
	peerTx, peerRx   ptime.Time

	syncSeq        uint16
	t1, t2, t3, t4 ptime.Time
	syncCorrection ptime.Time
	haveT1         bool
	awaitFollowUp  bool
	delayReqSeq    uint16
	awaitDelayResp bool
	haveDelay      bool
}

func newSlaveServo(cfg Config) *SlaveServo {
	s := &SlaveServo{cfg: cfg}
	s.reset()
	return s
}

func (s *SlaveServo) reset() {
	freq := 0.0
	if s.pi != nil {
		freq = s.pi.LastFreq()
	}
	s.pi = servo.NewPiServo(s.cfg.Servo, s.cfg.PiServo, freq)
	s.pi.SyncInterval(ptp.LogInterval(s.cfg.LogSyncInterval).Duration().Seconds())
	s.stats = welford.New()
	s.ds = ServoDS{}
	s.haveT1 = false
	s.awaitFollowUp = false
	s.awaitDelayResp = false
	s.haveDelay = false
}

// SetLocalDeltas sets the fixed transmit and receive delays of this end of the link
func (s *SlaveServo) SetLocalDeltas(tx, rx ptime.Time) {
	s.localTx, s.localRx = tx, rx
}

// SetPeerDeltas sets the fixed transmit and receive delays of the master end
func (s *SlaveServo) SetPeerDeltas(tx, rx ptime.Time) {
	s.peerTx, s.peerRx = tx, rx
}

// ClearDeltas drops all fixed delays
func (s *SlaveServo) ClearDeltas() {
	s.localTx, s.localRx, s.peerTx, s.peerRx = ptime.Time{}, ptime.Time{}, ptime.Time{}, ptime.Time{}
}

// DS returns a copy of the servo dataset
func (s *SlaveServo) DS() ServoDS {
	ds := s.ds
	if ds.Updates > 0 {
		ds.OffsetMean = s.stats.Mean()
	}
	if ds.Updates > 1 {
		ds.OffsetStddev = s.stats.Stddev()
	}
	return ds
}

// Timestamps returns the last t1..t4
func (s *SlaveServo) Timestamps() (t1, t2, t3, t4 ptime.Time) {
	return s.t1, s.t2, s.t3, s.t4
}

func (s *SlaveServo) syncReceived(m *ptp.SyncDelayReq, rx ptime.Time) {
	s.syncSeq = m.SequenceID
	s.t2 = rx
	s.syncCorrection = fromCorrection(m.CorrectionField)
	if m.Flag(ptp.FlagTwoStep) {
		s.haveT1 = false
		s.awaitFollowUp = true
		return
	}
	s.awaitFollowUp = false
	s.t1 = ptime.Add(fromTimestamp(m.OriginTimestamp), s.syncCorrection)
	s.haveT1 = true
}

// followUpReceived completes a two-step Sync, reporting whether it matched one
func (s *SlaveServo) followUpReceived(m *ptp.FollowUp) bool {
	if !s.awaitFollowUp || m.SequenceID != s.syncSeq {
		return false
	}
	s.awaitFollowUp = false
	t1 := ptime.Add(fromTimestamp(m.PreciseOriginTimestamp), fromCorrection(m.CorrectionField))
	s.t1 = ptime.Add(t1, s.syncCorrection)
	s.haveT1 = true
	return true
}

func (s *SlaveServo) delayReqSent(seq uint16, tx ptime.Time) {
	s.delayReqSeq = seq
	s.t3 = tx
	s.awaitDelayResp = true
}

func (s *SlaveServo) delayRespReceived(m *ptp.DelayResp) {
	if !s.awaitDelayResp || m.SequenceID != s.delayReqSeq || !s.haveT1 {
		return
	}
	s.awaitDelayResp = false
	s.t4 = ptime.Sub(fromTimestamp(m.ReceiveTimestamp), fromCorrection(m.CorrectionField))
	s.updateDelay()
}

func (s *SlaveServo) deltaSum() ptime.Time {
	return ptime.Add(ptime.Add(s.localTx, s.localRx), ptime.Add(s.peerTx, s.peerRx))
}

// updateDelay computes the mean path delay from the last t1..t4
func (s *SlaveServo) updateDelay() {
	roundTrip := ptime.Add(ptime.Sub(s.t2, s.t1), ptime.Sub(s.t4, s.t3))
	s.ds.MeanPathDelay = ptime.Div2(ptime.Sub(roundTrip, s.deltaSum()))
	s.haveDelay = true
}

// offset computes the offset from master from the last t1, t2 and the path delay
func (s *SlaveServo) offset() ptime.Time {
	o := ptime.Sub(ptime.Sub(s.t2, s.t1), s.ds.MeanPathDelay)
	return ptime.Sub(o, ptime.Add(s.peerTx, s.localRx))
}

// syncComplete runs when t1 and t2 of a new Sync are known
func (inst *Instance) syncComplete() {
	s := inst.servo
	if !s.haveT1 || !s.haveDelay {
		return
	}
	off := s.offset()
	if off.Incorrect {
		log.Warningf("%s: offset computed from invalid timestamps, ignoring", inst.name)
		return
	}
	ns := off.Nanoseconds()
	s.ds.Offset = off
	s.ds.Updates++
	s.stats.Add(float64(ns))

	g := inst.g
	if g.parent != inst {
		return
	}
	g.CurrentDS.OffsetFromMaster = off
	g.CurrentDS.MeanPathDelay = s.ds.MeanPathDelay
	if inst.extEnabled && inst.ext.AdjustClock(inst, off) {
		s.ds.State = servo.StateLocked
		return
	}
	freq, state := s.pi.Sample(ns, uint64(s.t2.Nanoseconds()))
	s.ds.State, s.ds.Freq = state, freq
	log.Infof("%s: offset %10d servo %s freq %+7.0f path delay %10d",
		inst.name, ns, state, freq, s.ds.MeanPathDelay.Nanoseconds())
	switch state {
	case servo.StateJump:
		if err := g.timeOps.AdjustOffset(-ns); err != nil {
			log.Errorf("%s: stepping clock: %v", inst.name, err)
		}
		// the path delay was measured against the old time
		s.haveDelay = false
	case servo.StateLocked:
		if err := g.timeOps.Adjust(0, -freq); err != nil {
			log.Errorf("%s: adjusting frequency: %v", inst.name, err)
		}
	}
}
