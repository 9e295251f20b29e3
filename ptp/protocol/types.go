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
	"net"
	"strings"
	"time"
)

// MessageType is the low nibble of the first header byte
type MessageType uint8

// Table 36 messageType values
const (
	MessageSync               MessageType = 0x0
	MessageDelayReq           MessageType = 0x1
	MessagePDelayReq          MessageType = 0x2
	MessagePDelayResp         MessageType = 0x3
	MessageFollowUp           MessageType = 0x8
	MessageDelayResp          MessageType = 0x9
	MessagePDelayRespFollowUp MessageType = 0xA
	MessageAnnounce           MessageType = 0xB
	MessageSignaling          MessageType = 0xC
	MessageManagement         MessageType = 0xD
)

var messageTypeToString = map[MessageType]string{
	MessageSync:               "SYNC",
	MessageDelayReq:           "DELAY_REQ",
	MessagePDelayReq:          "PDELAY_REQ",
	MessagePDelayResp:         "PDELAY_RESP",
	MessageFollowUp:           "FOLLOW_UP",
	MessageDelayResp:          "DELAY_RESP",
	MessagePDelayRespFollowUp: "PDELAY_RESP_FOLLOW_UP",
	MessageAnnounce:           "ANNOUNCE",
	MessageSignaling:          "SIGNALING",
	MessageManagement:         "MANAGEMENT",
}

func (m MessageType) String() string {
	if s, ok := messageTypeToString[m]; ok {
		return s
	}
	return fmt.Sprintf("MSG(0x%x)", uint8(m))
}

// ParseMessageType returns the message type with the given name, case insensitive
func ParseMessageType(s string) (MessageType, error) {
	for m, name := range messageTypeToString {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

// Event reports whether messages of this type are timestamped and go to the event port
func (m MessageType) Event() bool {
	return m < 0x8
}

// SdoIDAndMsgType packs majorSdoId in the high nibble and messageType in the low one
type SdoIDAndMsgType uint8

// MsgType returns the message type
func (m SdoIDAndMsgType) MsgType() MessageType {
	return MessageType(m & 0xf)
}

// NewSdoIDAndMsgType builds the first header byte
func NewSdoIDAndMsgType(msgType MessageType, sdoID uint8) SdoIDAndMsgType {
	return SdoIDAndMsgType(sdoID<<4 | uint8(msgType))
}

// ProbeMsgType returns the message type of a raw packet
func ProbeMsgType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("not enough data to probe MsgType")
	}
	return SdoIDAndMsgType(data[0]).MsgType(), nil
}

// TLVType is the tlvType field
type TLVType uint16

// Table 52 tlvType values we care about
const (
	TLVManagement            TLVType = 0x0001
	TLVOrganizationExtension TLVType = 0x0003
	TLVPathTrace             TLVType = 0x0008
)

func (t TLVType) String() string {
	switch t {
	case TLVManagement:
		return "MANAGEMENT"
	case TLVOrganizationExtension:
		return "ORGANIZATION_EXTENSION"
	case TLVPathTrace:
		return "PATH_TRACE"
	}
	return fmt.Sprintf("TLV(0x%04x)", uint16(t))
}

// Correction is the correctionField: nanoseconds multiplied by 2^16
type Correction int64

// correctionTooBig is all ones except the most significant bit
const correctionTooBig Correction = 0x7fffffffffffffff

// TooBig reports whether the correction is flagged as not representable
func (c Correction) TooBig() bool {
	return c == correctionTooBig
}

// Scaled returns the correction in scaled nanoseconds, 0 when too big
func (c Correction) Scaled() int64 {
	if c.TooBig() {
		return 0
	}
	return int64(c)
}

func (c Correction) String() string {
	if c.TooBig() {
		return "Correction(too big)"
	}
	return fmt.Sprintf("Correction(%dns)", int64(c)>>16)
}

// ClockIdentity is the EUI-64 identity of a PTP instance
type ClockIdentity uint64

// String uses the same dotted format as ptp4l
func (c ClockIdentity) String() string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x", b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// NewClockIdentity derives a ClockIdentity from an EUI-48 or EUI-64 link address
func NewClockIdentity(mac net.HardwareAddr) (ClockIdentity, error) {
	var b [8]byte
	switch len(mac) {
	case 6:
		copy(b[0:3], mac[0:3])
		b[3], b[4] = 0xff, 0xfe
		copy(b[5:8], mac[3:6])
	case 8:
		copy(b[:], mac)
	default:
		return 0, fmt.Errorf("unsupported MAC %v, must be either EUI48 or EUI64", mac)
	}
	return ClockIdentity(binary.BigEndian.Uint64(b[:])), nil
}

// PortIdentity identifies a PTP port
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Compare returns -1, 0 or 1 ordering by clock identity, then port number
func (p PortIdentity) Compare(q PortIdentity) int {
	switch {
	case p.ClockIdentity < q.ClockIdentity:
		return -1
	case p.ClockIdentity > q.ClockIdentity:
		return 1
	case p.PortNumber < q.PortNumber:
		return -1
	case p.PortNumber > q.PortNumber:
		return 1
	}
	return 0
}

// PTPSeconds is the 48-bit secondsField
type PTPSeconds [6]uint8

// Seconds returns the field value
func (s PTPSeconds) Seconds() uint64 {
	return uint64(s[0])<<40 | uint64(s[1])<<32 | uint64(s[2])<<24 |
		uint64(s[3])<<16 | uint64(s[4])<<8 | uint64(s[5])
}

// NewPTPSeconds truncates v to 48 bits
func NewPTPSeconds(v uint64) PTPSeconds {
	return PTPSeconds{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Timestamp is a non-negative time since the PTP epoch
type Timestamp struct {
	Seconds     PTPSeconds
	Nanoseconds uint32
}

// Empty reports whether both fields are zero
func (t Timestamp) Empty() bool {
	return t.Nanoseconds == 0 && t.Seconds == PTPSeconds{}
}

func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%d.%09d)", t.Seconds.Seconds(), t.Nanoseconds)
}

// NewTimestamp builds a Timestamp from seconds and nanoseconds
func NewTimestamp(secs uint64, ns uint32) Timestamp {
	return Timestamp{Seconds: NewPTPSeconds(secs), Nanoseconds: ns}
}

// ClockClass is the clockClass attribute
type ClockClass uint8

// Clock classes used by this implementation
const (
	ClockClass6          ClockClass = 6
	ClockClass7          ClockClass = 7
	ClockClass52         ClockClass = 52
	ClockClass187        ClockClass = 187
	ClockClassDefault    ClockClass = 248
	ClockClassSlaveOnly  ClockClass = 255
	ClockClassWRMaster   ClockClass = ClockClass6
	ClockClassWRHoldover ClockClass = ClockClass7
)

// ClockAccuracy is the clockAccuracy attribute
type ClockAccuracy uint8

// Clock accuracies used by this implementation
const (
	ClockAccuracyNanosecond25   ClockAccuracy = 0x20
	ClockAccuracyNanosecond100  ClockAccuracy = 0x21
	ClockAccuracyNanosecond250  ClockAccuracy = 0x22
	ClockAccuracyMicrosecond1   ClockAccuracy = 0x23
	ClockAccuracyMicrosecond100 ClockAccuracy = 0x27
	ClockAccuracyMillisecond1   ClockAccuracy = 0x29
	ClockAccuracyUnknown        ClockAccuracy = 0xFE
)

// ClockQuality groups the quality attributes compared by the BMCA
type ClockQuality struct {
	ClockClass              ClockClass    `json:"clock_class" yaml:"clock_class"`
	ClockAccuracy           ClockAccuracy `json:"clock_accuracy" yaml:"clock_accuracy"`
	OffsetScaledLogVariance uint16        `json:"offset_scaled_log_variance" yaml:"offset_scaled_log_variance"`
}

// TimeSource is the timeSource attribute
type TimeSource uint8

// Table 6 timeSource values
const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xa0
)

// LogInterval is log2 of a period in seconds
type LogInterval int8

// Duration returns the period
func (i LogInterval) Duration() time.Duration {
	if i >= 0 {
		return time.Second << uint(i)
	}
	return time.Second >> uint(-i)
}

// PortState is the portState enumeration of Table 20
type PortState uint8

// Table 20 values
const (
	PortStateInitializing PortState = iota + 1
	PortStateFaulty
	PortStateDisabled
	PortStateListening
	PortStatePreMaster
	PortStateMaster
	PortStatePassive
	PortStateUncalibrated
	PortStateSlave
)

var portStateToString = map[PortState]string{
	PortStateInitializing: "INITIALIZING",
	PortStateFaulty:       "FAULTY",
	PortStateDisabled:     "DISABLED",
	PortStateListening:    "LISTENING",
	PortStatePreMaster:    "PRE_MASTER",
	PortStateMaster:       "MASTER",
	PortStatePassive:      "PASSIVE",
	PortStateUncalibrated: "UNCALIBRATED",
	PortStateSlave:        "SLAVE",
}

func (ps PortState) String() string {
	return portStateToString[ps]
}
