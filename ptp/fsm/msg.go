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

	log "github.com/sirupsen/logrus"

	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
)

// controlField values, Table 42
const (
	controlSync      uint8 = 0
	controlDelayReq  uint8 = 1
	controlFollowUp  uint8 = 2
	controlDelayResp uint8 = 3
	controlOther     uint8 = 5
)

const logIntervalUnset ptp.LogInterval = 0x7f

var allPorts = ptp.PortIdentity{ClockIdentity: 0xffffffffffffffff, PortNumber: 0xffff}

func fromTimestamp(ts ptp.Timestamp) ptime.Time {
	return ptime.New(int64(ts.Seconds.Seconds()), int64(ts.Nanoseconds))
}

func toTimestamp(t ptime.Time) ptp.Timestamp {
	t = ptime.Normalize(t)
	if t.Secs < 0 {
		return ptp.Timestamp{}
	}
	return ptp.NewTimestamp(uint64(t.Secs), uint32(t.Scaled>>ptime.FracBits))
}

func fromCorrection(c ptp.Correction) ptime.Time {
	return ptime.FromScaled(c.Scaled())
}

// header fills a header for an outgoing message and consumes a sequence number
func (inst *Instance) header(t ptp.MessageType, flags uint16, interval ptp.LogInterval, control uint8) ptp.Header {
	seq := inst.seq[t]
	inst.seq[t]++
	return ptp.Header{
		SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(t, 0),
		Version:            ptp.Version,
		DomainNumber:       inst.g.cfg.DomainNumber,
		FlagField:          flags,
		SourcePortIdentity: inst.portDS.PortIdentity,
		SequenceID:         seq,
		ControlField:       control,
		LogMessageInterval: interval,
	}
}

// send encodes and transmits p, returning the transmit timestamp
func (inst *Instance) send(p ptp.Packet, event bool) (ptime.Time, error) {
	b, err := ptp.Bytes(p)
	if err != nil {
		inst.count("tx.errors")
		return ptime.Time{}, fmt.Errorf("encoding %s: %w", p.MessageType(), err)
	}
	ts, err := inst.net.Send(b, event)
	if err != nil {
		inst.count("tx.errors")
		return ptime.Time{}, fmt.Errorf("sending %s: %w", p.MessageType(), err)
	}
	inst.count("tx." + p.MessageType().String())
	return ts, nil
}

// SendSignaling sends a Signaling message carrying tlvs to all ports
func (inst *Instance) SendSignaling(tlvs ...ptp.TLV) error {
	s := &ptp.Signaling{
		Header:             inst.header(ptp.MessageSignaling, 0, logIntervalUnset, controlOther),
		TargetPortIdentity: allPorts,
		TLVs:               tlvs,
	}
	_, err := inst.send(s, false)
	return err
}

// ParentAnnounce returns the last Announce of the port's best master, nil if none
func (inst *Instance) ParentAnnounce() *ptp.Announce {
	if inst.erbest == nil {
		return nil
	}
	return inst.erbest.announce
}

func (inst *Instance) issueAnnounce() {
	g := inst.g
	now, err := g.timeOps.Get()
	if err != nil {
		log.Debugf("%s: reading clock for announce: %v", inst.name, err)
	}
	a := &ptp.Announce{
		Header: inst.header(ptp.MessageAnnounce, g.TimePropertiesDS.flags(), inst.portDS.LogAnnounceInterval, controlOther),
		AnnounceBody: ptp.AnnounceBody{
			OriginTimestamp:         toTimestamp(now),
			CurrentUTCOffset:        g.TimePropertiesDS.CurrentUTCOffset,
			GrandmasterPriority1:    g.ParentDS.GrandmasterPriority1,
			GrandmasterClockQuality: g.ParentDS.GrandmasterClockQuality,
			GrandmasterPriority2:    g.ParentDS.GrandmasterPriority2,
			GrandmasterIdentity:     g.ParentDS.GrandmasterIdentity,
			StepsRemoved:            g.CurrentDS.StepsRemoved,
			TimeSource:              g.TimePropertiesDS.TimeSource,
		},
	}
	if inst.extEnabled {
		a.TLVs = inst.ext.PackAnnounce(inst)
	}
	if _, err := inst.send(a, false); err != nil {
		log.Warningf("%s: %v", inst.name, err)
	}
}

// issueSync sends a two-step Sync followed by its FollowUp
func (inst *Instance) issueSync() {
	flags := inst.g.TimePropertiesDS.flags() | ptp.FlagTwoStep
	s := &ptp.SyncDelayReq{
		Header: inst.header(ptp.MessageSync, flags, inst.portDS.LogSyncInterval, controlSync),
	}
	ts, err := inst.send(s, true)
	if err != nil {
		log.Warningf("%s: %v", inst.name, err)
		return
	}
	fup := &ptp.FollowUp{
		Header:                 inst.header(ptp.MessageFollowUp, inst.g.TimePropertiesDS.flags(), inst.portDS.LogSyncInterval, controlFollowUp),
		PreciseOriginTimestamp: toTimestamp(ts),
	}
	fup.SequenceID = s.SequenceID
	if _, err := inst.send(fup, false); err != nil {
		log.Warningf("%s: %v", inst.name, err)
	}
}

func (inst *Instance) issueDelayReq() {
	r := &ptp.SyncDelayReq{
		Header: inst.header(ptp.MessageDelayReq, 0, logIntervalUnset, controlDelayReq),
	}
	ts, err := inst.send(r, true)
	if err != nil {
		log.Warningf("%s: %v", inst.name, err)
		return
	}
	inst.servo.delayReqSent(r.SequenceID, ts)
}

func (inst *Instance) issueDelayResp(req *ptp.SyncDelayReq, rx ptime.Time) {
	h := inst.header(ptp.MessageDelayResp, 0, inst.portDS.LogMinDelayReqInterval, controlDelayResp)
	h.SequenceID = req.SequenceID
	h.CorrectionField = req.CorrectionField
	resp := &ptp.DelayResp{
		Header:                 h,
		ReceiveTimestamp:       toTimestamp(rx),
		RequestingPortIdentity: req.SourcePortIdentity,
	}
	if _, err := inst.send(resp, false); err != nil {
		log.Warningf("%s: %v", inst.name, err)
	}
}

// fromParent reports whether h was sent by the parent port of this slave
func (inst *Instance) fromParent(h *ptp.Header) bool {
	if inst.erbest == nil {
		return false
	}
	return h.SourcePortIdentity == inst.erbest.announce.SourcePortIdentity
}

// handleMsg processes the messages the base protocol cares about in the current state
func (inst *Instance) handleMsg(msg *Message) {
	switch m := msg.Body.(type) {
	case *ptp.Announce:
		inst.handleAnnounce(m)
	case *ptp.SyncDelayReq:
		if m.MessageType() == ptp.MessageDelayReq {
			if inst.state == StateMaster {
				inst.issueDelayResp(m, msg.RxTime)
			}
			return
		}
		if inst.state.slave() && inst.fromParent(msg.Header) {
			inst.servo.syncReceived(m, msg.RxTime)
			inst.syncComplete()
		}
	case *ptp.FollowUp:
		if inst.state.slave() && inst.fromParent(msg.Header) && inst.servo.followUpReceived(m) {
			inst.syncComplete()
		}
	case *ptp.DelayResp:
		if inst.state.slave() && inst.fromParent(msg.Header) &&
			m.RequestingPortIdentity == inst.portDS.PortIdentity {
			inst.servo.delayRespReceived(m)
		}
	}
}

func (inst *Instance) handleAnnounce(a *ptp.Announce) {
	if a.StepsRemoved >= 255 {
		inst.count("rx.announce_too_far")
		return
	}
	inst.addForeign(a)
	switch {
	case inst.state.slave():
		if inst.fromParent(&a.Header) {
			inst.erbest.announce = a
			inst.armAnnounceReceipt()
			if inst.g.parent == inst {
				inst.g.TimePropertiesDS = timePropertiesFromAnnounce(a)
			}
		}
	case inst.state == StateListening, inst.state == StatePassive:
		inst.armAnnounceReceipt()
	}
	if inst.extEnabled {
		inst.ext.HandleAnnounce(inst, a)
	}
}
