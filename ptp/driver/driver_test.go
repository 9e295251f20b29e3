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

package driver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/fsm/fsmtest"
	ptp "github.com/facebook/wrptp/ptp/protocol"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/ptp/timeout"
)

type lastStatus struct {
	sync.Mutex
	st fsm.Status
	n  int
}

func (l *lastStatus) Publish(st fsm.Status) {
	l.Lock()
	defer l.Unlock()
	l.st = st
	l.n++
}

func (l *lastStatus) instance(i int) fsm.InstanceStatus {
	l.Lock()
	defer l.Unlock()
	if i >= len(l.st.Instances) {
		return fsm.InstanceStatus{}
	}
	return l.st.Instances[i]
}

type loopHarness struct {
	d      *Driver
	pub    *lastStatus
	rx     chan rxPacket
	links  chan LinkEvent
	cancel context.CancelFunc
	done   chan error
}

func startLoop(t *testing.T, roles ...fsm.Role) *loopHarness {
	clk := &fsmtest.TimeOps{Now: ptime.New(1000, 0), UTCErr: fsm.ErrUnsupported}
	sched := timeout.NewScheduler(&fsmtest.Ticker{T: 1000}, time.Millisecond, rand.New(rand.NewPCG(1, 2)))
	cfg := validConfig()
	cfg.StatsInterval = 5 * time.Millisecond
	g := fsm.NewGlobals(cfg.PTP, sched, clk)
	for i, r := range roles {
		n := fsmtest.NewNet(fmt.Sprintf("02:00:00:00:00:%02x", i+1), clk)
		g.AddInstance(fsm.InstanceConfig{Name: fmt.Sprintf("p%d", i), Iface: fmt.Sprintf("eth%d", i), Role: r}, n, nil)
	}
	h := &loopHarness{
		d:     &Driver{cfg: cfg, g: g},
		pub:   &lastStatus{},
		rx:    make(chan rxPacket),
		links: make(chan LinkEvent),
		done:  make(chan error, 1),
	}
	h.d.publisher = h.pub
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.d.loop(ctx, h.rx, h.links) }()
	t.Cleanup(func() {
		h.cancel()
		<-h.done
	})
	return h
}

func (h *loopHarness) waitState(t *testing.T, i int, state string) {
	require.Eventually(t, func() bool {
		return h.pub.instance(i).State == state
	}, 5*time.Second, time.Millisecond)
}

func TestLoopLinkEvents(t *testing.T) {
	h := startLoop(t, fsm.RoleMaster, fsm.RoleAuto)
	h.waitState(t, 0, "MASTER")
	h.waitState(t, 1, "LISTENING")

	h.links <- LinkEvent{Index: 0, Up: false}
	h.waitState(t, 0, "DISABLED")
	require.False(t, h.pub.instance(0).LinkUp)
	require.Equal(t, "LISTENING", h.pub.instance(1).State)

	h.links <- LinkEvent{Index: 0, Up: true}
	h.waitState(t, 0, "MASTER")

	// out of range events are ignored
	h.links <- LinkEvent{Index: 5, Up: false}
	h.waitState(t, 0, "MASTER")
}

func TestLoopDeliversPackets(t *testing.T) {
	h := startLoop(t, fsm.RoleAuto)
	h.waitState(t, 0, "LISTENING")

	source := ptp.PortIdentity{ClockIdentity: 0xaabbccfffe001122, PortNumber: 1}
	a := fsmtest.Announce(source, source.ClockIdentity, 100, ptp.ClockClass(6), 0, 1)
	h.rx <- rxPacket{index: 0, pkt: fsmtest.Packet(a, ptime.New(1000, 0))}
	require.Eventually(t, func() bool {
		return h.pub.instance(0).ForeignMasters == 1
	}, 5*time.Second, time.Millisecond)
}

func TestLoopPublishesOnExit(t *testing.T) {
	h := startLoop(t, fsm.RoleMaster)
	h.waitState(t, 0, "MASTER")
	h.cancel()
	require.NoError(t, <-h.done)
	h.done <- nil
	require.Equal(t, "MASTER", h.pub.instance(0).State)
}
