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

// Package phc maps network interfaces to their PTP hardware clocks
package phc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/facebook/wrptp/clock"
)

// IfaceToPHCDevice returns the PHC device path of iface
func IfaceToPHCDevice(iface string) (string, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return "", fmt.Errorf("failed to create socket for ioctl: %w", err)
	}
	defer unix.Close(fd)
	info, err := unix.IoctlGetEthtoolTsInfo(fd, iface)
	if err != nil {
		return "", fmt.Errorf("getting interface %s info: %w", iface, err)
	}
	if info.Phc_index < 0 {
		return "", fmt.Errorf("%s: no PHC support", iface)
	}
	return fmt.Sprintf("/dev/ptp%d", info.Phc_index), nil
}

// FDToClockID converts an open PHC file descriptor to a dynamic clock id
func FDToClockID(fd uintptr) int32 {
	return int32((int(^fd) << 3) | 3)
}

// Device is an open PHC
type Device struct {
	f *os.File
}

// Open opens the PHC at path for adjustments
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f}, nil
}

// OpenIface opens the PHC of iface
func OpenIface(iface string) (*Device, error) {
	path, err := IfaceToPHCDevice(iface)
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Name returns the device path
func (d *Device) Name() string {
	return d.f.Name()
}

// ClockID returns the clock id to pass to the clock package
func (d *Device) ClockID() int32 {
	return FDToClockID(d.f.Fd())
}

// MaxFreqPPB returns the maximum frequency adjustment the PHC supports
func (d *Device) MaxFreqPPB() float64 {
	caps, err := unix.IoctlPtpClockGetcaps(int(d.f.Fd()))
	if err != nil {
		return clock.DefaultMaxFreqPPB
	}
	return maxAdj(caps.Max_adj)
}

// Close closes the device
func (d *Device) Close() error {
	return d.f.Close()
}

func maxAdj(capsMaxAdj int32) float64 {
	if capsMaxAdj <= 0 {
		return clock.DefaultMaxFreqPPB
	}
	return float64(capsMaxAdj)
}
