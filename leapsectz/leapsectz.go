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

// Package leapsectz reads leap second information from the system timezone database
package leapsectz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// leapFile is a file containing leap second information
var leapFile = "/usr/share/zoneinfo/right/UTC"

var errBadData = errors.New("malformed time zone information")
var errUnsupportedVersion = errors.New("unsupported version")
var errNoLeapSeconds = errors.New("no leap seconds information found")

// TAI-UTC before the first leap second
const initialOffset = 10

// LeapSecond is a leap record of a TZif file
type LeapSecond struct {
	// occurrence, in seconds since the epoch counting previous leap seconds
	Tleap uint64
	// total correction after this leap second
	Nleap int32
}

// Time returns when the leap second event occurs
func (l LeapSecond) Time() time.Time {
	return time.Unix(int64(l.Tleap-uint64(l.Nleap)+1), 0)
}

// header of a TZif data block, RFC 8536 section 3.1
type header struct {
	Magic    [4]byte
	Version  byte
	_        [15]byte
	IsUtcCnt uint32
	IsStdCnt uint32
	LeapCnt  uint32
	TimeCnt  uint32
	TypeCnt  uint32
	CharCnt  uint32
}

func (h *header) read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, h); err != nil {
		return fmt.Errorf("%w: %w", errBadData, err)
	}
	if string(h.Magic[:]) != "TZif" {
		return errBadData
	}
	switch h.Version {
	case 0, '2', '3', '4':
		return nil
	}
	return errUnsupportedVersion
}

// dataSize is the size of the block following the header, without the leap records
func (h *header) dataSize(timeSize int64) int64 {
	return int64(h.TimeCnt)*(timeSize+1) + int64(h.TypeCnt)*6 + int64(h.CharCnt)
}

func discard(r io.Reader, n int64) error {
	if m, _ := io.CopyN(io.Discard, r, n); m != n {
		return errBadData
	}
	return nil
}

// Parse returns the leap seconds from srcfile. Pass "" to use the default file
func Parse(srcfile string) ([]LeapSecond, error) {
	if srcfile == "" {
		srcfile = leapFile
	}
	f, err := os.Open(srcfile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]LeapSecond, error) {
	var h header
	if err := h.read(r); err != nil {
		return nil, err
	}
	var timeSize int64 = 4
	// version 2+ files repeat the data with 64-bit times, only read that part
	if h.Version != 0 {
		skip := h.dataSize(timeSize) + int64(h.LeapCnt)*(timeSize+4) + int64(h.IsStdCnt) + int64(h.IsUtcCnt)
		if err := discard(r, skip); err != nil {
			return nil, err
		}
		if err := h.read(r); err != nil {
			return nil, err
		}
		timeSize = 8
	}
	if err := discard(r, h.dataSize(timeSize)); err != nil {
		return nil, err
	}
	ls := make([]LeapSecond, 0, h.LeapCnt)
	for range h.LeapCnt {
		var l LeapSecond
		if timeSize == 4 {
			var v [2]uint32
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, fmt.Errorf("%w: %w", errBadData, err)
			}
			l = LeapSecond{Tleap: uint64(v[0]), Nleap: int32(v[1])}
		} else if err := binary.Read(r, binary.BigEndian, &l); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadData, err)
		}
		ls = append(ls, l)
	}
	if len(ls) == 0 {
		return nil, errNoLeapSeconds
	}
	return ls, nil
}

// UTCOffset returns TAI-UTC at now, and whether the current UTC day ends
// with a deleted (leap59) or inserted (leap61) second. ls must be sorted.
func UTCOffset(ls []LeapSecond, now time.Time) (offset int, leap59 bool, leap61 bool) {
	offset = initialOffset
	var prev int32
	for _, l := range ls {
		t := l.Time()
		if !t.After(now) {
			offset = initialOffset + int(l.Nleap)
			prev = l.Nleap
			continue
		}
		if t.Sub(now) <= 24*time.Hour {
			leap61 = l.Nleap > prev
			leap59 = l.Nleap < prev
		}
		break
	}
	return offset, leap59, leap61
}
