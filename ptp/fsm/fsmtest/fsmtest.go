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

// Package fsmtest provides in-memory collaborators for driving the state machine in tests.
package fsmtest

import (
	"net"
	"time"

	"github.com/facebook/wrptp/ptp/fsm"
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
)

// Ticker is a manually advanced millisecond tick source
type Ticker struct {
	T uint64
}

// Ticks implements timeout.Source
func (t *Ticker) Ticks() uint64 {
	return t.T
}

// Advance moves the ticker forward
func (t *Ticker) Advance(d time.Duration) {
	t.T += uint64(d / time.Millisecond)
}

// Frame is a sent packet
type Frame struct {
	Data   []byte
	Event  bool
	TxTime ptime.Time
}

// MessageType returns the type of the frame
func (f Frame) MessageType() ptp.MessageType {
	t, _ := ptp.ProbeMsgType(f.Data)
	return t
}

// Decode decodes the frame
func (f Frame) Decode() ptp.Packet {
	p, err := ptp.DecodePacket(f.Data)
	if err != nil {
		panic(err)
	}
	return p
}

// Net is a NetworkIO recording sent frames and optionally delivering them to a peer
type Net struct {
	MAC     net.HardwareAddr
	InitErr error
	SendErr error
	// Clock stamps transmitted frames
	Clock *TimeOps
	Sent  []Frame

	peer  *Net
	delay ptime.Time
	inbox []*fsm.Packet
}

// NewNet returns a Net with the given MAC address
func NewNet(mac string, clock *TimeOps) *Net {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return &Net{MAC: hw, Clock: clock}
}

// Connect delivers everything a sends to b and vice versa, after delay
func Connect(a, b *Net, delay ptime.Time) {
	a.peer, a.delay = b, delay
	b.peer, b.delay = a, delay
}

// Init implements fsm.NetworkIO
func (n *Net) Init() error {
	return n.InitErr
}

// HardwareAddr implements fsm.NetworkIO
func (n *Net) HardwareAddr() net.HardwareAddr {
	return n.MAC
}

// Send implements fsm.NetworkIO
func (n *Net) Send(b []byte, event bool) (ptime.Time, error) {
	if n.SendErr != nil {
		return ptime.Time{}, n.SendErr
	}
	ts := n.Clock.Now
	data := append([]byte(nil), b...)
	n.Sent = append(n.Sent, Frame{Data: data, Event: event, TxTime: ts})
	if n.peer != nil {
		rx := ptime.Add(n.peer.Clock.Now, n.delay)
		n.peer.inbox = append(n.peer.inbox, &fsm.Packet{Data: data, RxTime: rx})
	}
	return ts, nil
}

// Deliver queues a packet as if it was received
func (n *Net) Deliver(p *fsm.Packet) {
	n.inbox = append(n.inbox, p)
}

// Pop returns the oldest received packet, nil if none
func (n *Net) Pop() *fsm.Packet {
	if len(n.inbox) == 0 {
		return nil
	}
	p := n.inbox[0]
	n.inbox = n.inbox[1:]
	return p
}

// Pending returns the number of queued packets
func (n *Net) Pending() int {
	return len(n.inbox)
}

// SentOfType returns the sent frames of message type t
func (n *Net) SentOfType(t ptp.MessageType) []Frame {
	var out []Frame
	for _, f := range n.Sent {
		if f.MessageType() == t {
			out = append(out, f)
		}
	}
	return out
}

// TimeOps is a clock that records adjustments
type TimeOps struct {
	Now      ptime.Time
	Steps    []int64
	Freqs    []float64
	Locked   bool
	UTC      int
	UTCErr   error
	Leap61   bool
	SetCalls int
}

// Get implements fsm.TimeOps
func (c *TimeOps) Get() (ptime.Time, error) {
	return c.Now, nil
}

// Set implements fsm.TimeOps
func (c *TimeOps) Set(t ptime.Time) error {
	c.SetCalls++
	c.Now = t
	return nil
}

// Adjust implements fsm.TimeOps
func (c *TimeOps) Adjust(offsetNs int64, freqPPB float64) error {
	if offsetNs != 0 {
		if err := c.AdjustOffset(offsetNs); err != nil {
			return err
		}
	}
	c.Freqs = append(c.Freqs, freqPPB)
	return nil
}

// AdjustOffset implements fsm.TimeOps
func (c *TimeOps) AdjustOffset(offsetNs int64) error {
	c.Steps = append(c.Steps, offsetNs)
	c.Now = ptime.Add(c.Now, ptime.FromNanoseconds(offsetNs))
	return nil
}

// ServoState implements fsm.TimeOps
func (c *TimeOps) ServoState() fsm.ClockLockState {
	if c.Locked {
		return fsm.ClockLocked
	}
	return fsm.ClockUnlocked
}

// UTCOffset implements fsm.TimeOps
func (c *TimeOps) UTCOffset() (int, bool, bool, error) {
	if c.UTCErr != nil {
		return 0, false, false, c.UTCErr
	}
	return c.UTC, false, c.Leap61, nil
}

// Announce builds an Announce from source with the given grandmaster attributes
func Announce(source ptp.PortIdentity, gm ptp.ClockIdentity, priority1 uint8, class ptp.ClockClass, steps uint16, seq uint16) *ptp.Announce {
	return &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			SourcePortIdentity: source,
			SequenceID:         seq,
			ControlField:       5,
			LogMessageInterval: 1,
			FlagField:          ptp.FlagPTPTimescale | ptp.FlagUTCOffsetValid,
		},
		AnnounceBody: ptp.AnnounceBody{
			CurrentUTCOffset:     37,
			GrandmasterPriority1: priority1,
			GrandmasterClockQuality: ptp.ClockQuality{
				ClockClass:              class,
				ClockAccuracy:           ptp.ClockAccuracyNanosecond100,
				OffsetScaledLogVariance: 0x4e5d,
			},
			GrandmasterPriority2: 128,
			GrandmasterIdentity:  gm,
			StepsRemoved:         steps,
			TimeSource:           ptp.TimeSourceGNSS,
		},
	}
}

// Packet encodes p into a received packet
func Packet(p ptp.Packet, rx ptime.Time) *fsm.Packet {
	b, err := ptp.Bytes(p)
	if err != nil {
		panic(err)
	}
	return &fsm.Packet{Data: b, RxTime: rx}
}
