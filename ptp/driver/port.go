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
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/facebook/wrptp/ptp/fsm"
	"github.com/facebook/wrptp/ptp/ptime"
	"github.com/facebook/wrptp/timestamp"
)

// PTP over UDP/IPv4, IEEE 1588 annex D
const (
	PortEvent   = 319
	PortGeneral = 320
)

// PrimaryGroup is the default PTP multicast group
var PrimaryGroup = net.IPv4(224, 0, 1, 129)

var errLinkDown = errors.New("link is down")

// receive timeout, bounds how long a reader takes to notice cancellation
var readTimeout = unix.Timeval{Usec: 200000}

type socket struct {
	conn *net.UDPConn
	fd   int
	dst  *net.UDPAddr
}

// Port is the UDP multicast transport of one interface, it implements fsm.NetworkIO
type Port struct {
	iface   string
	mode    timestamp.Mode
	event   *socket
	general *socket
	oob     []byte
	toob    []byte
}

// OpenPort binds the event and general sockets on iface and joins the PTP group
func OpenPort(iface string, mode timestamp.Mode, dscp int) (*Port, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	p := &Port{
		iface: iface,
		mode:  mode,
		oob:   make([]byte, timestamp.ControlSizeBytes),
		toob:  make([]byte, timestamp.ControlSizeBytes),
	}
	if p.event, err = listen(ifi, PortEvent, mode, dscp); err != nil {
		return nil, err
	}
	if p.general, err = listen(ifi, PortGeneral, mode, dscp); err != nil {
		p.event.conn.Close()
		return nil, err
	}
	return p, nil
}

func listen(ifi *net.Interface, port int, mode timestamp.Mode, dscp int) (*socket, error) {
	lc := net.ListenConfig{Control: func(_, _ string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
				return
			}
			serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifi.Name)
		})
		if err != nil {
			return err
		}
		return serr
	}}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listening on %s port %d: %w", ifi.Name, port, err)
	}
	conn := pc.(*net.UDPConn)
	s := &socket{conn: conn, dst: &net.UDPAddr{IP: PrimaryGroup, Port: port}}
	if err := s.setup(ifi, mode, dscp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s port %d: %w", ifi.Name, port, err)
	}
	return s, nil
}

func (s *socket) setup(ifi *net.Interface, mode timestamp.Mode, dscp int) error {
	p := ipv4.NewPacketConn(s.conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: PrimaryGroup}); err != nil {
		return fmt.Errorf("joining %s: %w", PrimaryGroup, err)
	}
	if err := p.SetMulticastInterface(ifi); err != nil {
		return err
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		return err
	}
	if err := p.SetMulticastTTL(1); err != nil {
		return err
	}
	if dscp > 0 {
		if err := p.SetTOS(dscp << 2); err != nil {
			return fmt.Errorf("setting dscp: %w", err)
		}
	}
	fd, err := timestamp.ConnFd(s.conn)
	if err != nil {
		return err
	}
	s.fd = fd
	if err := timestamp.Enable(fd, mode, ifi.Name); err != nil {
		return err
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return err
	}
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &readTimeout)
}

// Init implements fsm.NetworkIO
func (p *Port) Init() error {
	ifi, err := net.InterfaceByName(p.iface)
	if err != nil {
		return err
	}
	if ifi.Flags&net.FlagUp == 0 {
		return fmt.Errorf("%s: %w", p.iface, errLinkDown)
	}
	return nil
}

// HardwareAddr implements fsm.NetworkIO
func (p *Port) HardwareAddr() net.HardwareAddr {
	ifi, err := net.InterfaceByName(p.iface)
	if err != nil {
		return nil
	}
	return ifi.HardwareAddr
}

// Send implements fsm.NetworkIO. Event messages return their TX timestamp.
func (p *Port) Send(b []byte, event bool) (ptime.Time, error) {
	s := p.general
	if event {
		s = p.event
	}
	if _, err := s.conn.WriteToUDP(b, s.dst); err != nil {
		return ptime.Time{}, err
	}
	if !event {
		return ptime.Time{}, nil
	}
	ts, attempts, err := timestamp.ReadTX(s.fd, p.oob, p.toob)
	if err != nil {
		return ptime.Time{}, fmt.Errorf("reading TX timestamp after %d attempts: %w", attempts, err)
	}
	return ts, nil
}

type rxPacket struct {
	index int
	pkt   *fsm.Packet
}

// receive reads packets of one socket and forwards them to out until ctx is done
func (p *Port) receive(ctx context.Context, s *socket, index int, out chan<- rxPacket) error {
	buf := make([]byte, timestamp.PayloadSizeBytes)
	oob := make([]byte, timestamp.ControlSizeBytes)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, rx, err := timestamp.ReadPacket(s.fd, buf, oob)
		if err != nil {
			if n == 0 {
				if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
					log.Debugf("%s: %v", p.iface, err)
				}
				continue
			}
			// event messages are useless without their timestamp
			if s == p.event {
				log.Warningf("%s: dropping event message: %v", p.iface, err)
				continue
			}
		}
		pkt := &fsm.Packet{Data: append([]byte(nil), buf[:n]...), RxTime: rx}
		select {
		case out <- rxPacket{index: index, pkt: pkt}:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close closes both sockets
func (p *Port) Close() error {
	return errors.Join(p.event.conn.Close(), p.general.conn.Close())
}
