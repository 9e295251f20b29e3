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
	"net"
	"time"

	"github.com/jsimonetti/rtnetlink/rtnl"
	log "github.com/sirupsen/logrus"
)

// LinkEvent reports a link state change of the instance at Index
type LinkEvent struct {
	Index int
	Up    bool
}

type linkLister interface {
	Links() ([]*net.Interface, error)
}

// LinkMonitor polls the kernel link table over rtnetlink
type LinkMonitor struct {
	lister   linkLister
	ifaces   []string
	interval time.Duration
	state    map[string]bool
	closer   func() error
}

// NewLinkMonitor watches ifaces, in instance order
func NewLinkMonitor(ifaces []string, interval time.Duration) (*LinkMonitor, error) {
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return nil, err
	}
	m := newLinkMonitor(conn, ifaces, interval)
	m.closer = conn.Close
	return m, nil
}

func newLinkMonitor(l linkLister, ifaces []string, interval time.Duration) *LinkMonitor {
	return &LinkMonitor{
		lister:   l,
		ifaces:   ifaces,
		interval: interval,
		state:    map[string]bool{},
	}
}

// poll returns the links whose state changed since the last poll.
// A missing interface counts as down.
func (m *LinkMonitor) poll() ([]LinkEvent, error) {
	links, err := m.lister.Links()
	if err != nil {
		return nil, err
	}
	up := map[string]bool{}
	for _, l := range links {
		up[l.Name] = l.Flags&net.FlagUp != 0
	}
	var events []LinkEvent
	for i, name := range m.ifaces {
		prev, known := m.state[name]
		if known && prev == up[name] {
			continue
		}
		m.state[name] = up[name]
		// the state machine starts with links up
		if !known && up[name] {
			continue
		}
		log.Infof("link %s is %s", name, map[bool]string{true: "up", false: "down"}[up[name]])
		events = append(events, LinkEvent{Index: i, Up: up[name]})
	}
	return events, nil
}

// Run polls until ctx is done, sending changes to out
func (m *LinkMonitor) Run(ctx context.Context, out chan<- LinkEvent) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		events, err := m.poll()
		if err != nil {
			log.Warningf("polling links: %v", err)
		}
		for _, e := range events {
			select {
			case out <- e:
			case <-ctx.Done():
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the netlink socket
func (m *LinkMonitor) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
