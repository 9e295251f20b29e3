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

// Package timestamp reads kernel packet timestamps of UDP sockets
package timestamp

import (
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/facebook/wrptp/ptp/ptime"
)

// Mode selects where packets are timestamped
type Mode string

// Supported modes
const (
	SW Mode = "software"
	HW Mode = "hardware"
)

const (
	// ControlSizeBytes fits several timestamp control messages
	ControlSizeBytes = 128
	// PayloadSizeBytes fits any PTP message with TLVs
	PayloadSizeBytes = 1500
	// look only for X sequential TS
	maxTXTS = 100
)

// unix.Cmsghdr size differs depending on platform
var socketControlMessageHeaderOffset = binary.Size(unix.Cmsghdr{})

// ConnFd returns the file descriptor of conn
func ConnFd(conn *net.UDPConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var intfd int
	err = sc.Control(func(fd uintptr) {
		intfd = int(fd)
	})
	if err != nil {
		return -1, err
	}
	return intfd, nil
}

// ReadPacket reads a packet into buf and returns its length, sender and RX timestamp.
// oob can be reused once ReadPacket returns.
func ReadPacket(connFd int, buf, oob []byte) (int, unix.Sockaddr, ptime.Time, error) {
	n, boob, _, saddr, err := unix.Recvmsg(connFd, buf, oob, 0)
	if err != nil {
		return 0, nil, ptime.Time{}, fmt.Errorf("failed to read packet: %w", err)
	}
	ts, err := socketControlMessageTimestamp(oob[:boob])
	return n, saddr, ts, err
}

// ReadTX returns the TX timestamp of the last packet sent on connFd.
// oob and toob are scratch buffers.
func ReadTX(connFd int, oob, toob []byte) (ptime.Time, int, error) {
	var boob int
	txfound := false
	// drain the queue so that a late timestamp is not taken for the next packet
	attempts := 0
	for ; attempts < maxTXTS; attempts++ {
		if !txfound {
			_ = waitForTS(connFd)
		}
		tboob, err := recvoob(connFd, toob)
		if err != nil {
			if txfound {
				break
			}
			continue
		}
		txfound = true
		boob = tboob
		copy(oob, toob)
	}
	if !txfound {
		return ptime.Time{}, attempts, fmt.Errorf("no TX timestamp found after %d tries", maxTXTS)
	}
	ts, err := socketControlMessageTimestamp(oob[:boob])
	return ts, attempts, err
}

func waitForTS(connFd int) error {
	fds := []unix.PollFd{{Fd: int32(connFd), Events: unix.POLLPRI}}
	_, err := unix.Poll(fds, 1)
	return err
}

// recvoob reads one control message from the socket error queue
func recvoob(connFd int, oob []byte) (int, error) {
	var msg unix.Msghdr
	msg.Control = &oob[0]
	msg.SetControllen(len(oob))
	_, _, e1 := unix.Syscall(unix.SYS_RECVMSG, uintptr(connFd), uintptr(unsafe.Pointer(&msg)), uintptr(unix.MSG_ERRQUEUE))
	if e1 != 0 {
		return 0, e1
	}
	return int(msg.Controllen), nil
}

// socketControlMessageTimestamp finds the timestamping message among the control messages in b
func socketControlMessageTimestamp(b []byte) (ptime.Time, error) {
	mlen := 0
	for i := 0; i+socketControlMessageHeaderOffset <= len(b); i += mlen {
		h := (*unix.Cmsghdr)(unsafe.Pointer(&b[i]))
		mlen = int(h.Len)
		if mlen < socketControlMessageHeaderOffset || i+mlen > len(b) {
			break
		}
		// older kernels answer SO_TIMESTAMPING_NEW requests with SO_TIMESTAMPING
		if h.Level == unix.SOL_SOCKET && (int(h.Type) == unix.SO_TIMESTAMPING_NEW || int(h.Type) == unix.SO_TIMESTAMPING) {
			return scmDataToTime(b[i+socketControlMessageHeaderOffset : i+mlen])
		}
		mlen = cmsgAlign(mlen)
	}
	return ptime.Time{}, fmt.Errorf("failed to find timestamp in socket control message")
}

func cmsgAlign(n int) int {
	const align = int(unsafe.Sizeof(uintptr(0)))
	return (n + align - 1) &^ (align - 1)
}

// scmDataToTime parses scm_timestamping: software stamps are in ts[0], hardware ones in ts[2]
func scmDataToTime(data []byte) (ptime.Time, error) {
	const size = 16
	if len(data) < 3*size {
		return ptime.Time{}, fmt.Errorf("short timestamp control message: %d bytes", len(data))
	}
	if ts := byteToTime(data[size*2 : size*3]); !ts.IsZero() {
		return ts, nil
	}
	if ts := byteToTime(data[0:size]); !ts.IsZero() {
		return ts, nil
	}
	return ptime.Time{}, fmt.Errorf("got zero timestamp")
}

// byteToTime decodes a host endian __kernel_timespec
func byteToTime(data []byte) ptime.Time {
	sec := int64(binary.NativeEndian.Uint64(data[0:8]))
	nsec := int64(binary.NativeEndian.Uint64(data[8:16]))
	return ptime.New(sec, nsec)
}
