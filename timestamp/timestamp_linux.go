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

package timestamp

import (
	"fmt"
	"unsafe"

	version "github.com/hashicorp/go-version"
	"golang.org/x/sys/unix"
)

// from include/uapi/linux/net_tstamp.h
const (
	hwtstampTXON             int32 = 0x00000001
	hwtstampFilterAll        int32 = 0x00000001
	hwtstampFilterPTPv2Event int32 = 0x0000000c
)

type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

type hwtstampConfig struct {
	flags    int32
	txType   int32
	rxFilter int32
}

var timestamping = unix.SO_TIMESTAMPING_NEW

// kernels before 5.0 don't know SO_TIMESTAMPING_NEW
var timestampingNewSince = version.Must(version.NewVersion("5.0"))

func init() {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return
	}
	timestamping = timestampingOption(unix.ByteSliceToString(uname.Release[:]))
}

// timestampingOption returns the timestamping socket option for a kernel release
func timestampingOption(release string) int {
	v, err := version.NewVersion(release)
	if err != nil || !v.LessThan(timestampingNewSince) {
		return unix.SO_TIMESTAMPING_NEW
	}
	return unix.SO_TIMESTAMPING
}

// Enable turns on TX and RX timestamps of the given mode on the socket
func Enable(connFd int, mode Mode, iface string) error {
	var flags int
	switch mode {
	case SW:
		flags = unix.SOF_TIMESTAMPING_TX_SOFTWARE |
			unix.SOF_TIMESTAMPING_RX_SOFTWARE |
			unix.SOF_TIMESTAMPING_SOFTWARE
	case HW:
		if err := ioctlTimestamp(connFd, iface, hwtstampFilterAll); err != nil {
			if err := ioctlTimestamp(connFd, iface, hwtstampFilterPTPv2Event); err != nil {
				return err
			}
		}
		flags = unix.SOF_TIMESTAMPING_TX_HARDWARE |
			unix.SOF_TIMESTAMPING_RX_HARDWARE |
			unix.SOF_TIMESTAMPING_RAW_HARDWARE
	default:
		return fmt.Errorf("unknown timestamping mode %q", mode)
	}
	// the error queue carries only the timestamp, not the packet
	flags |= unix.SOF_TIMESTAMPING_OPT_TSONLY
	if err := unix.SetsockoptInt(connFd, unix.SOL_SOCKET, timestamping, flags); err != nil {
		return fmt.Errorf("enabling %s timestamps: %w", mode, err)
	}
	return unix.SetsockoptInt(connFd, unix.SOL_SOCKET, unix.SO_SELECT_ERR_QUEUE, 1)
}

func ioctlTimestamp(fd int, ifname string, filter int32) error {
	hw := &hwtstampConfig{
		txType:   hwtstampTXON,
		rxFilter: filter,
	}
	i := &ifreq{data: uintptr(unsafe.Pointer(hw))}
	copy(i.name[:unix.IFNAMSIZ-1], ifname)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSHWTSTAMP, uintptr(unsafe.Pointer(i))); errno != 0 {
		return fmt.Errorf("failed to run ioctl SIOCSHWTSTAMP: %s (%d)", unix.ErrnoName(errno), errno)
	}
	return nil
}
