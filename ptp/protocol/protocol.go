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

/*
Package protocol implements the IEEE 1588-2019 messages used by the
engine, plus the White Rabbit organization-extension TLV.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// what version of PTP protocol we implement
const (
	MajorVersion     uint8 = 2
	MinorVersion     uint8 = 1
	Version          uint8 = MinorVersion<<4 | MajorVersion
	MajorVersionMask uint8 = 0x0f
)

// UDP ports and multicast group for PTP over IPv4
const (
	PortEvent      = 319
	PortGeneral    = 320
	MulticastGroup = "224.0.1.129"
)

// flagField bits, Table 37
const (
	FlagAlternateMaster uint16 = 1 << (8 + 0)
	FlagTwoStep         uint16 = 1 << (8 + 1)
	FlagUnicast         uint16 = 1 << (8 + 2)
	FlagLeap61          uint16 = 1 << 0
	FlagLeap59          uint16 = 1 << 1
	FlagUTCOffsetValid  uint16 = 1 << 2
	FlagPTPTimescale    uint16 = 1 << 3
	FlagTimeTraceable   uint16 = 1 << 4
	FlagFreqTraceable   uint16 = 1 << 5
	FlagSyncUncertain   uint16 = 1 << 6
)

// ErrShortPacket is returned when a buffer cannot hold the message it claims to contain
var ErrShortPacket = errors.New("packet too short")

// BinaryMarshalerTo is implemented by types that can encode themselves into a buffer
type BinaryMarshalerTo interface {
	MarshalBinaryTo([]byte) (int, error)
}

type sizer interface {
	size() int
}

const headerSize = 34

// Header is the common PTP message header, Table 35
type Header struct {
	SdoIDAndMsgType     SdoIDAndMsgType
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField           uint16
	CorrectionField     Correction
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  LogInterval
}

// MessageType returns the message type
func (p *Header) MessageType() MessageType {
	return p.SdoIDAndMsgType.MsgType()
}

// SetSequence sets the sequence ID
func (p *Header) SetSequence(seq uint16) {
	p.SequenceID = seq
}

// Flag reports whether a flagField bit is set
func (p *Header) Flag(f uint16) bool {
	return p.FlagField&f != 0
}

func headerMarshalBinaryTo(p *Header, b []byte) {
	b[0] = byte(p.SdoIDAndMsgType)
	b[1] = p.Version
	binary.BigEndian.PutUint16(b[2:], p.MessageLength)
	b[4] = p.DomainNumber
	b[5] = p.MinorSdoID
	binary.BigEndian.PutUint16(b[6:], p.FlagField)
	binary.BigEndian.PutUint64(b[8:], uint64(p.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], p.MessageTypeSpecific)
	binary.BigEndian.PutUint64(b[20:], uint64(p.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], p.SourcePortIdentity.PortNumber)
	binary.BigEndian.PutUint16(b[30:], p.SequenceID)
	b[32] = p.ControlField
	b[33] = byte(p.LogMessageInterval)
}

func unmarshalHeader(p *Header, b []byte) error {
	if len(b) < headerSize {
		return fmt.Errorf("decoding header: %w", ErrShortPacket)
	}
	p.SdoIDAndMsgType = SdoIDAndMsgType(b[0])
	p.Version = b[1]
	p.MessageLength = binary.BigEndian.Uint16(b[2:])
	p.DomainNumber = b[4]
	p.MinorSdoID = b[5]
	p.FlagField = binary.BigEndian.Uint16(b[6:])
	p.CorrectionField = Correction(binary.BigEndian.Uint64(b[8:]))
	p.MessageTypeSpecific = binary.BigEndian.Uint32(b[16:])
	p.SourcePortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	p.SourcePortIdentity.PortNumber = binary.BigEndian.Uint16(b[28:])
	p.SequenceID = binary.BigEndian.Uint16(b[30:])
	p.ControlField = b[32]
	p.LogMessageInterval = LogInterval(b[33])
	if p.Version&MajorVersionMask != MajorVersion {
		return fmt.Errorf("unsupported PTP version %d", p.Version&MajorVersionMask)
	}
	if int(p.MessageLength) > len(b) {
		return fmt.Errorf("header claims %d bytes, have %d: %w", p.MessageLength, len(b), ErrShortPacket)
	}
	return nil
}

// DecodeHeader decodes only the common header
func DecodeHeader(b []byte) (*Header, error) {
	h := &Header{}
	if err := unmarshalHeader(h, b); err != nil {
		return nil, err
	}
	return h, nil
}

const timestampSize = 10

func timestampMarshalBinaryTo(t *Timestamp, b []byte) {
	copy(b[0:6], t.Seconds[:])
	binary.BigEndian.PutUint32(b[6:], t.Nanoseconds)
}

func unmarshalTimestamp(t *Timestamp, b []byte) {
	copy(t.Seconds[:], b[0:6])
	t.Nanoseconds = binary.BigEndian.Uint32(b[6:])
}

const portIdentitySize = 10

func portIdentityMarshalBinaryTo(p *PortIdentity, b []byte) {
	binary.BigEndian.PutUint64(b, uint64(p.ClockIdentity))
	binary.BigEndian.PutUint16(b[8:], p.PortNumber)
}

func unmarshalPortIdentity(p *PortIdentity, b []byte) {
	p.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b))
	p.PortNumber = binary.BigEndian.Uint16(b[8:])
}

// AnnounceBody Table 43 Announce message fields
type AnnounceBody struct {
	OriginTimestamp         Timestamp
	CurrentUTCOffset        int16
	Reserved                uint8
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ClockIdentity
	StepsRemoved            uint16
	TimeSource              TimeSource
}

const announceBodySize = 30

// Announce is a full Announce packet
type Announce struct {
	Header
	AnnounceBody
	TLVs []TLV
}

func (p *Announce) msgSize() (int, error) {
	n, err := tlvsSize(p.TLVs)
	return headerSize + announceBodySize + n, err
}

// MarshalBinaryTo marshals Announce into b
func (p *Announce) MarshalBinaryTo(b []byte) (int, error) {
	size, err := p.msgSize()
	if err != nil {
		return 0, err
	}
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write Announce")
	}
	p.MessageLength = uint16(size)
	headerMarshalBinaryTo(&p.Header, b)
	o := b[headerSize:]
	timestampMarshalBinaryTo(&p.OriginTimestamp, o)
	binary.BigEndian.PutUint16(o[10:], uint16(p.CurrentUTCOffset))
	o[12] = p.Reserved
	o[13] = p.GrandmasterPriority1
	o[14] = byte(p.GrandmasterClockQuality.ClockClass)
	o[15] = byte(p.GrandmasterClockQuality.ClockAccuracy)
	binary.BigEndian.PutUint16(o[16:], p.GrandmasterClockQuality.OffsetScaledLogVariance)
	o[18] = p.GrandmasterPriority2
	binary.BigEndian.PutUint64(o[19:], uint64(p.GrandmasterIdentity))
	binary.BigEndian.PutUint16(o[27:], p.StepsRemoved)
	o[29] = byte(p.TimeSource)
	n, err := writeTLVs(p.TLVs, b[headerSize+announceBodySize:])
	return headerSize + announceBodySize + n, err
}

// UnmarshalBinary decodes an Announce
func (p *Announce) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if p.MessageLength < headerSize+announceBodySize {
		return fmt.Errorf("decoding announce: %w", ErrShortPacket)
	}
	o := b[headerSize:]
	unmarshalTimestamp(&p.OriginTimestamp, o)
	p.CurrentUTCOffset = int16(binary.BigEndian.Uint16(o[10:]))
	p.Reserved = o[12]
	p.GrandmasterPriority1 = o[13]
	p.GrandmasterClockQuality.ClockClass = ClockClass(o[14])
	p.GrandmasterClockQuality.ClockAccuracy = ClockAccuracy(o[15])
	p.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(o[16:])
	p.GrandmasterPriority2 = o[18]
	p.GrandmasterIdentity = ClockIdentity(binary.BigEndian.Uint64(o[19:]))
	p.StepsRemoved = binary.BigEndian.Uint16(o[27:])
	p.TimeSource = TimeSource(o[29])
	var err error
	p.TLVs, err = readTLVs(nil, b[headerSize+announceBodySize:p.MessageLength])
	return err
}

// SyncDelayReq is a Sync or Delay_Req, they share the layout
type SyncDelayReq struct {
	Header
	OriginTimestamp Timestamp
}

// MarshalBinaryTo marshals Sync or Delay_Req into b
func (p *SyncDelayReq) MarshalBinaryTo(b []byte) (int, error) {
	size := headerSize + timestampSize
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write SyncDelayReq")
	}
	p.MessageLength = uint16(size)
	headerMarshalBinaryTo(&p.Header, b)
	timestampMarshalBinaryTo(&p.OriginTimestamp, b[headerSize:])
	return size, nil
}

// UnmarshalBinary decodes Sync or Delay_Req
func (p *SyncDelayReq) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if p.MessageLength < headerSize+timestampSize {
		return fmt.Errorf("decoding %s: %w", p.MessageType(), ErrShortPacket)
	}
	unmarshalTimestamp(&p.OriginTimestamp, b[headerSize:])
	return nil
}

// FollowUp Table 45
type FollowUp struct {
	Header
	PreciseOriginTimestamp Timestamp
}

// MarshalBinaryTo marshals FollowUp into b
func (p *FollowUp) MarshalBinaryTo(b []byte) (int, error) {
	size := headerSize + timestampSize
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write FollowUp")
	}
	p.MessageLength = uint16(size)
	headerMarshalBinaryTo(&p.Header, b)
	timestampMarshalBinaryTo(&p.PreciseOriginTimestamp, b[headerSize:])
	return size, nil
}

// UnmarshalBinary decodes FollowUp
func (p *FollowUp) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if p.MessageLength < headerSize+timestampSize {
		return fmt.Errorf("decoding follow up: %w", ErrShortPacket)
	}
	unmarshalTimestamp(&p.PreciseOriginTimestamp, b[headerSize:])
	return nil
}

// DelayResp Table 46
type DelayResp struct {
	Header
	ReceiveTimestamp       Timestamp
	RequestingPortIdentity PortIdentity
}

// MarshalBinaryTo marshals DelayResp into b
func (p *DelayResp) MarshalBinaryTo(b []byte) (int, error) {
	size := headerSize + timestampSize + portIdentitySize
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write DelayResp")
	}
	p.MessageLength = uint16(size)
	headerMarshalBinaryTo(&p.Header, b)
	timestampMarshalBinaryTo(&p.ReceiveTimestamp, b[headerSize:])
	portIdentityMarshalBinaryTo(&p.RequestingPortIdentity, b[headerSize+timestampSize:])
	return size, nil
}

// UnmarshalBinary decodes DelayResp
func (p *DelayResp) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if p.MessageLength < headerSize+timestampSize+portIdentitySize {
		return fmt.Errorf("decoding delay resp: %w", ErrShortPacket)
	}
	unmarshalTimestamp(&p.ReceiveTimestamp, b[headerSize:])
	unmarshalPortIdentity(&p.RequestingPortIdentity, b[headerSize+timestampSize:])
	return nil
}

// Signaling Table 51, targetPortIdentity followed by TLVs
type Signaling struct {
	Header
	TargetPortIdentity PortIdentity
	TLVs               []TLV
}

// MarshalBinaryTo marshals Signaling into b
func (p *Signaling) MarshalBinaryTo(b []byte) (int, error) {
	n, err := tlvsSize(p.TLVs)
	if err != nil {
		return 0, err
	}
	size := headerSize + portIdentitySize + n
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write Signaling")
	}
	p.MessageLength = uint16(size)
	headerMarshalBinaryTo(&p.Header, b)
	portIdentityMarshalBinaryTo(&p.TargetPortIdentity, b[headerSize:])
	n, err = writeTLVs(p.TLVs, b[headerSize+portIdentitySize:])
	return headerSize + portIdentitySize + n, err
}

// UnmarshalBinary decodes Signaling
func (p *Signaling) UnmarshalBinary(b []byte) error {
	if err := unmarshalHeader(&p.Header, b); err != nil {
		return err
	}
	if p.MessageLength < headerSize+portIdentitySize {
		return fmt.Errorf("decoding signaling: %w", ErrShortPacket)
	}
	unmarshalPortIdentity(&p.TargetPortIdentity, b[headerSize:])
	var err error
	p.TLVs, err = readTLVs(nil, b[headerSize+portIdentitySize:p.MessageLength])
	return err
}

// Packet is any message this package can encode
type Packet interface {
	BinaryMarshalerTo
	MessageType() MessageType
	SetSequence(uint16)
}

// Bytes encodes p into a new buffer
func Bytes(p Packet) ([]byte, error) {
	b := make([]byte, 512)
	n, err := p.MarshalBinaryTo(b)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// DecodePacket decodes any supported message. Pdelay and Management
// messages are decoded as header only.
func DecodePacket(b []byte) (Packet, error) {
	msgType, err := ProbeMsgType(b)
	if err != nil {
		return nil, err
	}
	var p interface {
		Packet
		UnmarshalBinary([]byte) error
	}
	switch msgType {
	case MessageSync, MessageDelayReq:
		p = &SyncDelayReq{}
	case MessageFollowUp:
		p = &FollowUp{}
	case MessageDelayResp:
		p = &DelayResp{}
	case MessageAnnounce:
		p = &Announce{}
	case MessageSignaling:
		p = &Signaling{}
	case MessagePDelayReq, MessagePDelayResp, MessagePDelayRespFollowUp, MessageManagement:
		h := &HeaderOnly{}
		if err := unmarshalHeader(&h.Header, b); err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported message type %s", msgType)
	}
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return p, nil
}

// HeaderOnly is a recognised message whose body is not used
type HeaderOnly struct {
	Header
}

// MarshalBinaryTo marshals just the header
func (p *HeaderOnly) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize {
		return 0, fmt.Errorf("not enough buffer to write header")
	}
	p.MessageLength = headerSize
	headerMarshalBinaryTo(&p.Header, b)
	return headerSize, nil
}
