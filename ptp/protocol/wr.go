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

package protocol

import (
	"encoding/binary"
	"fmt"
)

// White Rabbit organization extension constants
const (
	WROUI        uint32 = 0x080030
	wrTLVMagic   uint16 = 0xDEAD
	wrTLVVersion uint8  = 1
	// organizationId + magicNumber + versionNumber + wrMessageId
	wrTLVBaseLength = 3 + 2 + 1 + 2
)

// WRMessageID is the wrMessageId of a WR TLV
type WRMessageID uint16

// WR message IDs
const (
	WRSlavePresent WRMessageID = 0x1000
	WRLock         WRMessageID = 0x1001
	WRLocked       WRMessageID = 0x1002
	WRCalibrate    WRMessageID = 0x1003
	WRCalibrated   WRMessageID = 0x1004
	WRModeOn       WRMessageID = 0x1005
	WRAnnounce     WRMessageID = 0x2000
)

var wrMessageIDToString = map[WRMessageID]string{
	WRSlavePresent: "SLAVE_PRESENT",
	WRLock:         "LOCK",
	WRLocked:       "LOCKED",
	WRCalibrate:    "CALIBRATE",
	WRCalibrated:   "CALIBRATED",
	WRModeOn:       "WR_MODE_ON",
	WRAnnounce:     "ANN_SUFIX",
}

func (m WRMessageID) String() string {
	if s, ok := wrMessageIDToString[m]; ok {
		return s
	}
	return fmt.Sprintf("WR_MSG(0x%04x)", uint16(m))
}

// WRFlags is the wrFlags word carried in the Announce suffix
type WRFlags uint16

// wrFlags bits
const (
	WRConfigMaster      WRFlags = 0x1
	WRConfigSlave       WRFlags = 0x2
	WRConfigMasterSlave WRFlags = WRConfigMaster | WRConfigSlave
	WRCalibratedFlag    WRFlags = 0x4
	WRModeOnFlag        WRFlags = 0x8
	wrConfigMask        WRFlags = 0x3
)

// Config returns the wrConfig bits
func (f WRFlags) Config() WRFlags {
	return f & wrConfigMask
}

// CanMaster reports whether the sender can act as WR master
func (f WRFlags) CanMaster() bool {
	return f&WRConfigMaster != 0
}

// CanSlave reports whether the sender can act as WR slave
func (f WRFlags) CanSlave() bool {
	return f&WRConfigSlave != 0
}

// WRTLV is a White Rabbit organization extension TLV. Only the fields
// relevant to MessageID are encoded.
type WRTLV struct {
	TLVHead
	MessageID WRMessageID

	// ANN_SUFIX
	Flags WRFlags

	// CALIBRATE
	CalSendPattern bool
	CalRetry       uint8
	CalPeriod      uint32 // microseconds

	// CALIBRATED, scaled picoseconds (ps << 16)
	DeltaTx int64
	DeltaRx int64
}

// NewWRTLV returns a WR TLV with the given message ID
func NewWRTLV(id WRMessageID) *WRTLV {
	return &WRTLV{
		TLVHead:   TLVHead{TLVType: TLVOrganizationExtension},
		MessageID: id,
	}
}

func (t *WRTLV) payloadLength() int {
	switch t.MessageID {
	case WRAnnounce:
		return 2
	case WRCalibrate:
		return 6
	case WRCalibrated:
		return 16
	}
	return 0
}

func (t *WRTLV) size() int {
	return tlvHeadSize + wrTLVBaseLength + t.payloadLength()
}

// MarshalBinaryTo marshals WRTLV into b
func (t *WRTLV) MarshalBinaryTo(b []byte) (int, error) {
	size := t.size()
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write WRTLV")
	}
	t.TLVType = TLVOrganizationExtension
	t.LengthField = uint16(size - tlvHeadSize)
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	oui := WROUI
	b[4] = byte(oui >> 16)
	b[5] = byte(oui >> 8)
	b[6] = byte(oui)
	binary.BigEndian.PutUint16(b[7:], wrTLVMagic)
	b[9] = wrTLVVersion
	binary.BigEndian.PutUint16(b[10:], uint16(t.MessageID))
	p := b[tlvHeadSize+wrTLVBaseLength:]
	switch t.MessageID {
	case WRAnnounce:
		binary.BigEndian.PutUint16(p, uint16(t.Flags))
	case WRCalibrate:
		p[0] = 0
		if t.CalSendPattern {
			p[0] = 1
		}
		p[1] = t.CalRetry
		binary.BigEndian.PutUint32(p[2:], t.CalPeriod)
	case WRCalibrated:
		binary.BigEndian.PutUint64(p, uint64(t.DeltaTx))
		binary.BigEndian.PutUint64(p[8:], uint64(t.DeltaRx))
	}
	return size, nil
}

// UnmarshalBinary parses []byte and populates struct fields
func (t *WRTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), wrTLVBaseLength); err != nil {
		return err
	}
	if !isWRTLV(b) {
		return fmt.Errorf("not a White Rabbit TLV")
	}
	t.MessageID = WRMessageID(binary.BigEndian.Uint16(b[10:]))
	if err := checkTLVLength(&t.TLVHead, len(b), wrTLVBaseLength+t.payloadLength()); err != nil {
		return fmt.Errorf("WR %s: %w", t.MessageID, err)
	}
	p := b[tlvHeadSize+wrTLVBaseLength:]
	switch t.MessageID {
	case WRAnnounce:
		t.Flags = WRFlags(binary.BigEndian.Uint16(p))
	case WRCalibrate:
		t.CalSendPattern = p[0] != 0
		t.CalRetry = p[1]
		t.CalPeriod = binary.BigEndian.Uint32(p[2:])
	case WRCalibrated:
		t.DeltaTx = int64(binary.BigEndian.Uint64(p))
		t.DeltaRx = int64(binary.BigEndian.Uint64(p[8:]))
	}
	return nil
}

func isWRTLV(b []byte) bool {
	if len(b) < tlvHeadSize+wrTLVBaseLength {
		return false
	}
	oui := uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
	return oui == WROUI && binary.BigEndian.Uint16(b[7:]) == wrTLVMagic
}

// FindWRTLV returns the first WR TLV in tlvs, or nil
func FindWRTLV(tlvs []TLV) *WRTLV {
	for _, tlv := range tlvs {
		if wr, ok := tlv.(*WRTLV); ok {
			return wr
		}
	}
	return nil
}
