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
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/timeout"
	"github.com/facebook/wrptp/ptp/wr"
)

// Publisher receives status snapshots from the driver loop
type Publisher interface {
	Publish(st fsm.Status)
}

// Driver owns the node and feeds it packets, link events and time
type Driver struct {
	cfg       *Config
	g         *fsm.Globals
	clock     *ClockOps
	ports     []*Port
	links     *LinkMonitor
	publisher Publisher
}

// New opens the clock and all ports described by cfg
func New(cfg *Config, pub Publisher) (*Driver, error) {
	d := &Driver{cfg: cfg, publisher: pub}
	var err error
	if iface := cfg.clockIface(); iface != "" {
		d.clock, err = NewPHCClock(iface)
	} else {
		d.clock, err = NewSystemClock()
	}
	if err != nil {
		return nil, err
	}
	log.Infof("disciplining %s", d.clock.Name())

	sched := timeout.NewScheduler(timeout.NewMonotonic(), time.Millisecond, nil)
	d.g = fsm.NewGlobals(cfg.PTP, sched, d.clock)

	hw := wr.NewSoftHardware(d.clock)
	ext := wr.New(cfg.WR, hw)
	ifaces := make([]string, 0, len(cfg.Instances))
	for i, ic := range cfg.Instances {
		p, err := OpenPort(ic.Iface, cfg.Timestamping, cfg.DSCP)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("instance %s: %w", ic.Name, err)
		}
		d.ports = append(d.ports, p)
		ifaces = append(ifaces, ic.Iface)
		var e fsm.Extension
		if ic.Extension == fsm.ExtensionWhiteRabbit {
			hw.SetLatencies(i, ic.EgressLatency, ic.IngressLatency)
			e = ext
		}
		d.g.AddInstance(ic, p, e)
	}
	d.links, err = NewLinkMonitor(ifaces, cfg.LinkPoll)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("connecting to rtnetlink: %w", err)
	}
	return d, nil
}

// Globals returns the node
func (d *Driver) Globals() *fsm.Globals {
	return d.g
}

// Run drives the node until ctx is done or a receiver fails
func (d *Driver) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	rx := make(chan rxPacket, 64)
	links := make(chan LinkEvent, len(d.ports))
	for i, p := range d.ports {
		eg.Go(func() error { return p.receive(ctx, p.event, i, rx) })
		eg.Go(func() error { return p.receive(ctx, p.general, i, rx) })
	}
	if d.links != nil {
		eg.Go(func() error { return d.links.Run(ctx, links) })
	}
	eg.Go(func() error { return d.loop(ctx, rx, links) })
	return eg.Wait()
}

// loop is the only goroutine touching the node
func (d *Driver) loop(ctx context.Context, rx <-chan rxPacket, links <-chan LinkEvent) error {
	instances := d.g.Instances()
	batch := make([]*fsm.Packet, len(instances))
	timer := time.NewTimer(0)
	defer timer.Stop()
	stats := time.NewTicker(d.cfg.StatsInterval)
	defer stats.Stop()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("notifying systemd: %v", err)
	}
	d.publish()
	for {
		select {
		case <-ctx.Done():
			d.publish()
			return nil
		case p := <-rx:
			batch[p.index] = p.pkt
		case e := <-links:
			if e.Index >= 0 && e.Index < len(instances) {
				instances[e.Index].SetLinkUp(e.Up)
			}
		case <-timer.C:
		case <-stats.C:
			d.publish()
			continue
		}
		delay := d.g.Step(batch)
		clear(batch)
		if delay == timeout.Never {
			delay = time.Second
		}
		timer.Reset(delay)
	}
}

func (d *Driver) publish() {
	if d.publisher != nil {
		d.publisher.Publish(d.g.Snapshot())
	}
}

// Close releases ports, the netlink socket and the clock
func (d *Driver) Close() error {
	var errs []error
	for _, p := range d.ports {
		errs = append(errs, p.Close())
	}
	if d.links != nil {
		errs = append(errs, d.links.Close())
	}
	if d.clock != nil {
		errs = append(errs, d.clock.Close())
	}
	return errors.Join(errs...)
}
