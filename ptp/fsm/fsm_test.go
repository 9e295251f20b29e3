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

package fsm_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/fsm/fsmtest"
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

var (
	gmIdentity   = ptp.ClockIdentity(0xaabbccfffe001122)
	masterPort   = ptp.PortIdentity{ClockIdentity: gmIdentity, PortNumber: 1}
	otherGM      = ptp.ClockIdentity(0x112233fffe445566)
	otherGMPort  = ptp.PortIdentity{ClockIdentity: otherGM, PortNumber: 3}
	relayClock   = ptp.ClockIdentity(0x222222fffe333333)
	relayPort    = ptp.PortIdentity{ClockIdentity: relayClock, PortNumber: 2}
	localMACs    = []string{"0c:42:a1:6d:7c:a6", "0c:42:a1:6d:7c:a7"}
	localClockID = ptp.ClockIdentity(0x0c42a1fffe6d7ca6)
)

type node struct {
	ticker *fsmtest.Ticker
	clock  *fsmtest.TimeOps
	g      *fsm.Globals
	nets   []*fsmtest.Net
	insts  []*fsm.Instance
}

func newNode(cfg fsm.Config, roles ...fsm.Role) *node {
	n := &node{
		ticker: &fsmtest.Ticker{T: 1000},
		clock:  &fsmtest.TimeOps{Now: ptime.New(1000, 0), UTCErr: fsm.ErrUnsupported},
	}
	sched := timeout.NewScheduler(n.ticker, time.Millisecond, rand.New(rand.NewPCG(1, 2)))
	n.g = fsm.NewGlobals(cfg, sched, n.clock)
	for i, role := range roles {
		net := fsmtest.NewNet(localMACs[i], n.clock)
		n.nets = append(n.nets, net)
		n.insts = append(n.insts, n.g.AddInstance(fsm.InstanceConfig{
			Name:  []string{"p0", "p1"}[i],
			Iface: []string{"eth0", "eth1"}[i],
			Role:  role,
		}, net, nil))
	}
	return n
}

// rx delivers p to instance i
func (n *node) rx(i int, p ptp.Packet) time.Duration {
	pkts := make([]*fsm.Packet, len(n.insts))
	pkts[i] = fsmtest.Packet(p, n.clock.Now)
	return n.g.Step(pkts)
}

// announce feeds enough Announce messages to qualify the foreign master
func (n *node) announce(i int, a *ptp.Announce) {
	for seq := uint16(0); seq < 2; seq++ {
		a.SequenceID = seq
		n.rx(i, a)
	}
}

func TestInitializingToListening(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	require.Equal(t, fsm.StateInitializing, n.insts[0].State())
	require.Equal(t, time.Duration(0), n.g.Step(nil))
	require.Equal(t, fsm.StateListening, n.insts[0].State())
	require.Equal(t, localClockID, n.g.DefaultDS.ClockIdentity)
	require.Equal(t, ptp.PortIdentity{ClockIdentity: localClockID, PortNumber: 1}, n.insts[0].PortIdentity())
	require.Equal(t, fsm.StateListening, n.insts[0].Recommended())

	// nothing sent while listening
	n.g.Step(nil)
	require.False(t, n.insts[0].IsNewState())
	require.Empty(t, n.nets[0].Sent)
}

func TestStaticMasterSends(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleMaster)
	n.g.Step(nil)
	require.Equal(t, fsm.StateMaster, n.insts[0].State())
	n.g.Step(nil)

	anns := n.nets[0].SentOfType(ptp.MessageAnnounce)
	require.Len(t, anns, 1)
	a := anns[0].Decode().(*ptp.Announce)
	require.Equal(t, localClockID, a.GrandmasterIdentity)
	require.Equal(t, uint16(0), a.StepsRemoved)
	require.Equal(t, ptp.ClockClassDefault, a.GrandmasterClockQuality.ClockClass)
	require.True(t, a.Flag(ptp.FlagPTPTimescale))
	require.Empty(t, a.TLVs)

	syncs := n.nets[0].SentOfType(ptp.MessageSync)
	require.Len(t, syncs, 1)
	require.True(t, syncs[0].Event)
	s := syncs[0].Decode().(*ptp.SyncDelayReq)
	require.True(t, s.Flag(ptp.FlagTwoStep))

	fups := n.nets[0].SentOfType(ptp.MessageFollowUp)
	require.Len(t, fups, 1)
	require.False(t, fups[0].Event)
	f := fups[0].Decode().(*ptp.FollowUp)
	require.Equal(t, s.SequenceID, f.SequenceID)
	require.Equal(t, ptp.NewTimestamp(1000, 0), f.PreciseOriginTimestamp)

	// nothing more until the intervals pass
	n.g.Step(nil)
	require.Len(t, n.nets[0].SentOfType(ptp.MessageSync), 1)
	n.ticker.Advance(3 * time.Second)
	n.g.Step(nil)
	require.Len(t, n.nets[0].SentOfType(ptp.MessageSync), 2)
	require.Len(t, n.nets[0].SentOfType(ptp.MessageAnnounce), 2)
}

func TestMasterAnswersDelayReq(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleMaster)
	n.g.Step(nil)
	n.g.Step(nil)
	req := &ptp.SyncDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageDelayReq, 0),
			Version:            ptp.Version,
			SourcePortIdentity: relayPort,
			SequenceID:         42,
			CorrectionField:    ptp.Correction(100 << 16),
			ControlField:       1,
		},
	}
	n.clock.Now = ptime.New(1001, 500)
	n.rx(0, req)
	resps := n.nets[0].SentOfType(ptp.MessageDelayResp)
	require.Len(t, resps, 1)
	r := resps[0].Decode().(*ptp.DelayResp)
	require.Equal(t, uint16(42), r.SequenceID)
	require.Equal(t, relayPort, r.RequestingPortIdentity)
	require.Equal(t, ptp.NewTimestamp(1001, 500), r.ReceiveTimestamp)
	require.Equal(t, ptp.Correction(100<<16), r.CorrectionField)
}

func TestInitFailureRetries(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.nets[0].InitErr = errors.New("no carrier")
	require.Equal(t, time.Second, n.g.Step(nil))
	require.Equal(t, fsm.StateInitializing, n.insts[0].State())

	n.nets[0].InitErr = nil
	n.g.Step(nil)
	require.Equal(t, fsm.StateInitializing, n.insts[0].State())

	n.ticker.Advance(time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateListening, n.insts[0].State())
}

func TestFaultyGrace(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.g.Step(nil)
	n.insts[0].Fault(errors.New("tx timestamp missing"))
	require.Equal(t, time.Duration(0), n.g.Step(nil))
	require.Equal(t, fsm.StateFaulty, n.insts[0].State())

	n.g.Step(nil)
	require.Equal(t, fsm.StateFaulty, n.insts[0].State())
	n.ticker.Advance(4 * time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateInitializing, n.insts[0].State())
	n.g.Step(nil)
	require.Equal(t, fsm.StateListening, n.insts[0].State())
}

func TestLinkLoss(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.g.Step(nil)
	n.insts[0].SetLinkUp(false)
	n.g.Step(nil)
	require.Equal(t, fsm.StateDisabled, n.insts[0].State())
	require.Equal(t, timeout.Never, n.insts[0].Run(nil))

	n.insts[0].SetLinkUp(true)
	n.g.Step(nil)
	require.Equal(t, fsm.StateInitializing, n.insts[0].State())
	n.g.Step(nil)
	require.Equal(t, fsm.StateListening, n.insts[0].State())
}

func TestListeningTimeout(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto, fsm.RoleSlave)
	n.g.Step(nil)
	n.g.Step(nil)
	n.ticker.Advance(6 * time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateMaster, n.insts[0].State())
	require.Equal(t, fsm.StateListening, n.insts[1].State())
}

func TestInvalidStatePanics(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.insts[0].SetStateForTest(fsm.State(42))
	require.Panics(t, func() { n.insts[0].Run(nil) })
	require.Panics(t, func() { n.insts[0].RequestState(fsm.State(0)) })
}

func TestStaticMasterAndBMCASlave(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleMaster, fsm.RoleAuto)
	n.g.Step(nil)
	require.Equal(t, fsm.StateMaster, n.insts[0].State())
	require.Equal(t, fsm.StateListening, n.insts[1].State())

	n.announce(1, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	require.True(t, n.g.RunBMCA())
	require.Equal(t, fsm.StateMaster, n.insts[0].Recommended())
	require.Equal(t, fsm.StateSlave, n.insts[1].Recommended())
	require.Equal(t, n.insts[1], n.g.Ebest())

	n.g.Step(nil)
	require.Equal(t, fsm.StateUncalibrated, n.insts[1].State())
	n.g.Step(nil)
	require.Equal(t, fsm.StateSlave, n.insts[1].State())
	require.Equal(t, fsm.StateMaster, n.insts[0].State())

	require.Equal(t, gmIdentity, n.g.ParentDS.GrandmasterIdentity)
	require.Equal(t, masterPort, n.g.ParentDS.ParentPortIdentity)
	require.Equal(t, uint16(1), n.g.CurrentDS.StepsRemoved)
	require.Equal(t, int16(37), n.g.TimePropertiesDS.CurrentUTCOffset)
	require.True(t, n.g.TimePropertiesDS.CurrentUTCOffsetValid)

	// the master port now distributes the new grandmaster
	n.ticker.Advance(3 * time.Second)
	n.announce(1, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	anns := n.nets[0].SentOfType(ptp.MessageAnnounce)
	a := anns[len(anns)-1].Decode().(*ptp.Announce)
	require.Equal(t, gmIdentity, a.GrandmasterIdentity)
	require.Equal(t, uint16(1), a.StepsRemoved)
}

func TestBMCAIdempotent(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	require.True(t, n.g.RunBMCA())
	parent := n.g.ParentDS
	recs := []fsm.State{n.insts[0].Recommended(), n.insts[1].Recommended()}
	for range 3 {
		require.False(t, n.g.RunBMCA())
		require.Equal(t, parent, n.g.ParentDS)
		require.Equal(t, recs, []fsm.State{n.insts[0].Recommended(), n.insts[1].Recommended()})
	}
	// the second port has no foreign master while listening
	require.Equal(t, fsm.StateSlave, recs[0])
	require.Equal(t, fsm.StateListening, recs[1])
}

func TestBMCAPassiveAndM3(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	// same grandmaster one hop further away
	n.announce(1, fsmtest.Announce(relayPort, gmIdentity, 100, ptp.ClockClass6, 1, 0))
	n.g.RunBMCA()
	require.Equal(t, fsm.StateSlave, n.insts[0].Recommended())
	require.Equal(t, fsm.StatePassive, n.insts[1].Recommended())

	n.g.Step(nil)
	require.Equal(t, fsm.StatePassive, n.insts[1].State())

	// the relay goes silent and a worse grandmaster shows up behind the second port
	n.ticker.Advance(7 * time.Second)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 10))
	n.announce(1, fsmtest.Announce(otherGMPort, otherGM, 120, ptp.ClockClass6, 0, 10))
	n.g.RunBMCA()
	require.Equal(t, fsm.StateSlave, n.insts[0].Recommended())
	require.Equal(t, fsm.StateMaster, n.insts[1].Recommended())
	require.Equal(t, fsm.StatePreMaster, n.insts[1].State())
	// qualification lasts (steps removed + 1) announce intervals
	n.g.Step(nil)
	require.Equal(t, fsm.StatePreMaster, n.insts[1].State())
	n.ticker.Advance(4 * time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateMaster, n.insts[1].State())
}

func TestBMCAGrandmasterCapable(t *testing.T) {
	cfg := fsm.DefaultConfig()
	cfg.ClockQuality.ClockClass = ptp.ClockClass6
	n := newNode(cfg, fsm.RoleAuto, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	// better than the local clock, worse than the ebest
	n.announce(1, fsmtest.Announce(otherGMPort, otherGM, 110, ptp.ClockClass6, 0, 0))
	n.g.RunBMCA()
	require.Equal(t, fsm.StateSlave, n.insts[0].Recommended())
	require.Equal(t, fsm.StatePassive, n.insts[1].Recommended())
	require.Equal(t, n.insts[0], n.g.Ebest())
	n.g.Step(nil)
	require.Equal(t, fsm.StatePassive, n.insts[1].State())
	require.Empty(t, n.nets[1].SentOfType(ptp.MessageSync))

	// worse than the local clock
	n = newNode(cfg, fsm.RoleAuto, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	n.announce(1, fsmtest.Announce(otherGMPort, otherGM, 200, ptp.ClockClass6, 0, 0))
	n.g.RunBMCA()
	require.Equal(t, fsm.StateSlave, n.insts[0].Recommended())
	require.Equal(t, fsm.StateMaster, n.insts[1].Recommended())
}

func TestErbestPicksBestAnnounce(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	n.announce(0, fsmtest.Announce(otherGMPort, otherGM, 50, ptp.ClockClass6, 0, 0))
	n.announce(0, fsmtest.Announce(relayPort, gmIdentity, 100, ptp.ClockClass6, 1, 0))
	n.g.RunBMCA()
	require.Equal(t, n.insts[0], n.g.Ebest())
	require.Equal(t, otherGM, n.g.ParentDS.GrandmasterIdentity)
	require.Equal(t, otherGMPort, n.g.ParentDS.ParentPortIdentity)
}

func TestLocalClockWins(t *testing.T) {
	cfg := fsm.DefaultConfig()
	cfg.Priority1 = 10
	n := newNode(cfg, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	n.g.RunBMCA()
	require.Equal(t, fsm.StateMaster, n.insts[0].Recommended())
	require.Nil(t, n.g.Ebest())
	n.g.Step(nil)
	require.Equal(t, fsm.StatePreMaster, n.insts[0].State())
	n.g.Step(nil)
	require.Equal(t, fsm.StateMaster, n.insts[0].State())
	require.Equal(t, localClockID, n.g.ParentDS.GrandmasterIdentity)
}

func TestSlaveOnlyNeverMaster(t *testing.T) {
	cfg := fsm.DefaultConfig()
	cfg.SlaveOnly = true
	n := newNode(cfg, fsm.RoleAuto)
	n.g.Step(nil)
	require.Equal(t, ptp.ClockClassSlaveOnly, n.g.DefaultDS.ClockQuality.ClockClass)
	n.g.Step(nil)
	n.ticker.Advance(6 * time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateListening, n.insts[0].State())
}

// toSlave brings a single auto instance to SLAVE behind masterPort
func toSlave(t *testing.T) *node {
	n := newNode(fsm.DefaultConfig(), fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(0, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	n.g.RunBMCA()
	n.g.Step(nil)
	n.g.Step(nil)
	require.Equal(t, fsm.StateSlave, n.insts[0].State())
	n.g.Step(nil)
	return n
}

func syncFromMaster(seq uint16) (*ptp.SyncDelayReq, *ptp.FollowUp) {
	h := ptp.Header{
		SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageSync, 0),
		Version:            ptp.Version,
		SourcePortIdentity: masterPort,
		SequenceID:         seq,
		FlagField:          ptp.FlagTwoStep,
	}
	s := &ptp.SyncDelayReq{Header: h}
	h.SdoIDAndMsgType = ptp.NewSdoIDAndMsgType(ptp.MessageFollowUp, 0)
	h.FlagField = 0
	h.ControlField = 2
	return s, &ptp.FollowUp{Header: h}
}

func timestamp(t ptime.Time) ptp.Timestamp {
	return ptp.NewTimestamp(uint64(t.Secs), uint32(t.Scaled>>ptime.FracBits))
}

func lastDelayReq(t *testing.T, n *node) fsmtest.Frame {
	reqs := n.nets[0].SentOfType(ptp.MessageDelayReq)
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1]
}

func TestSlaveOffset(t *testing.T) {
	n := toSlave(t)
	inst := n.insts[0]

	// slave is 1us ahead, path delay 500ns
	s, f := syncFromMaster(7)
	n.clock.Now = ptime.New(1000, 1500)
	n.rx(0, s)
	f.PreciseOriginTimestamp = ptp.NewTimestamp(1000, 0)
	n.rx(0, f)
	require.Equal(t, 0, inst.Servo().DS().Updates)

	n.clock.Now = ptime.New(1001, 0)
	n.ticker.Advance(2 * time.Second)
	n.g.Step(nil)
	last := lastDelayReq(t, n)
	require.True(t, last.Event)
	req := last.Decode().(*ptp.SyncDelayReq)

	resp := &ptp.DelayResp{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageDelayResp, 0),
			Version:            ptp.Version,
			SourcePortIdentity: masterPort,
			SequenceID:         req.SequenceID,
			ControlField:       3,
		},
		ReceiveTimestamp:       timestamp(ptime.Sub(last.TxTime, ptime.FromNanoseconds(500))),
		RequestingPortIdentity: inst.PortIdentity(),
	}
	n.rx(0, resp)
	require.Equal(t, ptime.FromNanoseconds(500), inst.Servo().DS().MeanPathDelay)

	s, f = syncFromMaster(8)
	n.clock.Now = ptime.New(1002, 1500)
	n.rx(0, s)
	f.PreciseOriginTimestamp = ptp.NewTimestamp(1002, 0)
	n.rx(0, f)

	ds := inst.Servo().DS()
	require.Equal(t, 1, ds.Updates)
	require.Equal(t, ptime.FromNanoseconds(1000), ds.Offset)
	require.Equal(t, ptime.FromNanoseconds(1000), n.g.CurrentDS.OffsetFromMaster)
	require.Equal(t, ptime.FromNanoseconds(500), n.g.CurrentDS.MeanPathDelay)
	require.InDelta(t, 1000.0, ds.OffsetMean, 0.001)
}

func TestSlaveIgnoresOtherMasters(t *testing.T) {
	n := toSlave(t)
	s, f := syncFromMaster(1)
	s.SourcePortIdentity = relayPort
	f.SourcePortIdentity = relayPort
	n.rx(0, s)
	n.rx(0, f)
	_, t2, _, _ := n.insts[0].Servo().Timestamps()
	require.True(t, t2.IsZero())
}

func TestSlaveWithDeltas(t *testing.T) {
	n := toSlave(t)
	inst := n.insts[0]
	inst.Servo().SetLocalDeltas(ptime.FromNanoseconds(100), ptime.FromNanoseconds(100))
	inst.Servo().SetPeerDeltas(ptime.FromNanoseconds(100), ptime.FromNanoseconds(100))

	// fiber 500ns each way, each end adds 100ns on tx and rx, slave 1us ahead
	s, f := syncFromMaster(1)
	n.clock.Now = ptime.New(1000, 1700)
	n.rx(0, s)
	f.PreciseOriginTimestamp = ptp.NewTimestamp(1000, 0)
	n.rx(0, f)

	n.clock.Now = ptime.New(1001, 0)
	n.ticker.Advance(2 * time.Second)
	n.g.Step(nil)
	last := lastDelayReq(t, n)
	req := last.Decode().(*ptp.SyncDelayReq)
	resp := &ptp.DelayResp{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageDelayResp, 0),
			Version:            ptp.Version,
			SourcePortIdentity: masterPort,
			SequenceID:         req.SequenceID,
		},
		// t3 - 1us + 700ns
		ReceiveTimestamp:       timestamp(ptime.Sub(last.TxTime, ptime.FromNanoseconds(300))),
		RequestingPortIdentity: inst.PortIdentity(),
	}
	n.rx(0, resp)
	require.Equal(t, ptime.FromNanoseconds(500), inst.Servo().DS().MeanPathDelay)

	s, f = syncFromMaster(2)
	n.clock.Now = ptime.New(1002, 1700)
	n.rx(0, s)
	f.PreciseOriginTimestamp = ptp.NewTimestamp(1002, 0)
	n.rx(0, f)
	require.Equal(t, ptime.FromNanoseconds(1000), inst.Servo().DS().Offset)
}

func TestSlaveLosesMaster(t *testing.T) {
	n := toSlave(t)
	n.ticker.Advance(6 * time.Second)
	n.g.Step(nil)
	require.Equal(t, fsm.StateListening, n.insts[0].State())
}

func TestSnapshot(t *testing.T) {
	n := newNode(fsm.DefaultConfig(), fsm.RoleMaster, fsm.RoleAuto)
	n.g.Step(nil)
	n.announce(1, fsmtest.Announce(masterPort, gmIdentity, 100, ptp.ClockClass6, 0, 0))
	st := n.g.Snapshot()
	require.Equal(t, localClockID.String(), st.ClockIdentity)
	require.True(t, st.IsGrandmaster)
	require.Equal(t, "UNLOCKED", st.ClockState)
	require.Len(t, st.Instances, 2)
	require.Equal(t, "MASTER", st.Instances[0].State)
	require.Equal(t, "master", st.Instances[0].Role)
	require.Equal(t, "LISTENING", st.Instances[1].State)
	require.Equal(t, 1, st.Instances[1].ForeignMasters)
	require.Equal(t, int64(2), st.Instances[1].Counters["rx.ANNOUNCE"])
	require.Equal(t, "none", st.Instances[1].Extension.Name)
}
