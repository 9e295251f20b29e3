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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSync(t *testing.T) {
	raw := []uint8{
		0x10, 0x02, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0x63, 0xff,
		0xff, 0x00, 0x09, 0xba, 0x00, 0x01, 0x00, 0x74,
		0x00, 0x00, 0x00, 0x00, 0x45, 0xb1, 0x11, 0x5a,
		0x0a, 0x64, 0xfa, 0xb0, 0x00, 0x00,
	}
	packet := new(SyncDelayReq)
	require.NoError(t, packet.UnmarshalBinary(raw))
	want := SyncDelayReq{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageSync, 1),
			Version:         MajorVersion,
			MessageLength:   44,
			SourcePortIdentity: PortIdentity{
				PortNumber:    1,
				ClockIdentity: 36138748164966842,
			},
			SequenceID: 116,
		},
		OriginTimestamp: Timestamp{
			Seconds:     [6]byte{0x0, 0x00, 0x45, 0xb1, 0x11, 0x5a},
			Nanoseconds: 174389936,
		},
	}
	require.Equal(t, want, *packet)
	b, err := Bytes(packet)
	require.NoError(t, err)
	require.Equal(t, raw[:44], b)

	pp, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, &want, pp)
}

func TestParseAnnounce(t *testing.T) {
	raw := []uint8{
		0xb, 0x2, 0x0, 0x40, 0x0, 0x0, 0x4, 0x8, 0x0,
		0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
		0x0, 0x0, 0x0, 0x80, 0x63, 0xff, 0xff, 0x0,
		0x9, 0xba, 0x0, 0x1, 0x0, 0x0, 0x5, 0x0, 0x0,
		0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
		0x0, 0x0, 0x0, 0x80, 0x6, 0x21, 0x59, 0xe0,
		0x80, 0x0, 0x80, 0x63, 0xff, 0xff, 0x0,
		0x9, 0xba, 0x0, 0x0, 0x20, 0x0, 0x0,
	}
	packet := new(Announce)
	require.NoError(t, packet.UnmarshalBinary(raw))
	want := Announce{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageAnnounce, 0),
			Version:         MajorVersion,
			MessageLength:   64,
			FlagField:       FlagUnicast | FlagPTPTimescale,
			SourcePortIdentity: PortIdentity{
				PortNumber:    1,
				ClockIdentity: 36138748164966842,
			},
			ControlField: 5,
		},
		AnnounceBody: AnnounceBody{
			GrandmasterPriority1: 128,
			GrandmasterClockQuality: ClockQuality{
				ClockClass:              6,
				ClockAccuracy:           ClockAccuracyNanosecond100,
				OffsetScaledLogVariance: 23008,
			},
			GrandmasterPriority2: 128,
			GrandmasterIdentity:  36138748164966842,
			TimeSource:           TimeSourceGNSS,
		},
	}
	require.Equal(t, want, *packet)
	require.True(t, packet.Flag(FlagPTPTimescale))
	require.False(t, packet.Flag(FlagTwoStep))
	b, err := Bytes(packet)
	require.NoError(t, err)
	require.Equal(t, raw[:64], b)
}

func TestParseDelayResp(t *testing.T) {
	raw := []uint8{
		0x9, 0x2, 0x0, 0x36, 0x0, 0x0, 0x4, 0x0, 0x0,
		0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
		0x0, 0x0, 0x0, 0x80, 0x63, 0xff, 0xff, 0x0,
		0x9, 0xba, 0x0, 0x1, 0x0, 0xa, 0x3, 0x7f,
		0x0, 0x0, 0x45, 0xb1, 0x11, 0x5e, 0x4, 0x5d,
		0xd2, 0x6e, 0xb8, 0x59, 0x9f, 0xff, 0xfe,
		0x55, 0xaf, 0x4e, 0x0, 0x1, 0x0, 0x0,
	}
	pp, err := DecodePacket(raw)
	require.NoError(t, err)
	packet, ok := pp.(*DelayResp)
	require.True(t, ok)
	require.Equal(t, uint16(10), packet.SequenceID)
	require.Equal(t, LogInterval(0x7f), packet.LogMessageInterval)
	require.Equal(t, uint32(73257582), packet.ReceiveTimestamp.Nanoseconds)
	require.Equal(t, uint64(0x45b1115e), packet.ReceiveTimestamp.Seconds.Seconds())
	require.Equal(t, PortIdentity{PortNumber: 1, ClockIdentity: 13283824497738493774}, packet.RequestingPortIdentity)
	b, err := Bytes(packet)
	require.NoError(t, err)
	require.Equal(t, raw[:54], b)
}

func TestFollowUpBytes(t *testing.T) {
	fup := &FollowUp{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageFollowUp, 0),
			Version:         Version,
			CorrectionField: Correction(1500 << 16),
			SequenceID:      42,
		},
		PreciseOriginTimestamp: NewTimestamp(1700000000, 999),
	}
	b, err := Bytes(fup)
	require.NoError(t, err)
	require.Len(t, b, 44)

	pp, err := DecodePacket(b)
	require.NoError(t, err)
	got := pp.(*FollowUp)
	require.Equal(t, int64(1500<<16), got.CorrectionField.Scaled())
	require.Equal(t, uint64(1700000000), got.PreciseOriginTimestamp.Seconds.Seconds())
	require.Equal(t, uint32(999), got.PreciseOriginTimestamp.Nanoseconds)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodePacket(nil)
	require.Error(t, err)

	// claims 44 bytes, has 20
	_, err = DecodePacket([]byte{0x0, 0x2, 0x0, 0x2c, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrShortPacket)

	// PTPv1
	b := make([]byte, 44)
	b[1] = 1
	b[3] = 44
	_, err = DecodePacket(b)
	require.Error(t, err)

	// unknown message type
	b[0] = 0x5
	b[1] = 2
	_, err = DecodePacket(b)
	require.Error(t, err)
}

func TestDecodePdelayHeaderOnly(t *testing.T) {
	b := make([]byte, 54)
	b[0] = byte(MessagePDelayReq)
	b[1] = Version
	b[3] = 54
	pp, err := DecodePacket(b)
	require.NoError(t, err)
	require.Equal(t, MessagePDelayReq, pp.MessageType())
}
