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

// TLV abstracts away any TLV
type TLV interface {
	Type() TLVType
}

const tlvHeadSize = 4

// TLVHead is the type and length prefix of every TLV
type TLVHead struct {
	TLVType     TLVType
	LengthField uint16 // always even
}

// Type implements TLV interface
func (t TLVHead) Type() TLVType {
	return t.TLVType
}

func tlvHeadMarshalBinaryTo(t *TLVHead, b []byte) {
	binary.BigEndian.PutUint16(b, uint16(t.TLVType))
	binary.BigEndian.PutUint16(b[2:], t.LengthField)
}

func unmarshalTLVHeader(p *TLVHead, b []byte) error {
	if len(b) < tlvHeadSize {
		return fmt.Errorf("not enough data to decode TLV header")
	}
	p.TLVType = TLVType(binary.BigEndian.Uint16(b[0:]))
	p.LengthField = binary.BigEndian.Uint16(b[2:])
	return nil
}

func checkTLVLength(p *TLVHead, l, want int) error {
	if int(p.LengthField) < want {
		return fmt.Errorf("expected TLV of type %s to have length of at least %d, got %d in the header", p.TLVType, want, p.LengthField)
	}
	if tlvHeadSize+int(p.LengthField) > l {
		return fmt.Errorf("cannot decode TLV of length %d from %d bytes", tlvHeadSize+int(p.LengthField), l)
	}
	return nil
}

// RawTLV keeps a TLV this package does not decode, so it can be forwarded untouched
type RawTLV struct {
	TLVHead
	Value []byte
}

// MarshalBinaryTo marshals bytes to RawTLV
func (t *RawTLV) MarshalBinaryTo(b []byte) (int, error) {
	size := tlvHeadSize + len(t.Value)
	if len(b) < size {
		return 0, fmt.Errorf("not enough buffer to write RawTLV")
	}
	t.LengthField = uint16(len(t.Value))
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	copy(b[tlvHeadSize:], t.Value)
	return size, nil
}

// UnmarshalBinary parses []byte and populates struct fields
func (t *RawTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 0); err != nil {
		return err
	}
	t.Value = make([]byte, t.LengthField)
	copy(t.Value, b[tlvHeadSize:tlvHeadSize+int(t.LengthField)])
	return nil
}

func tlvsSize(tlvs []TLV) (int, error) {
	size := 0
	for _, tlv := range tlvs {
		s, ok := tlv.(sizer)
		if !ok {
			return 0, fmt.Errorf("unsupported TLV %s", tlv.Type())
		}
		size += s.size()
	}
	return size, nil
}

func writeTLVs(tlvs []TLV, b []byte) (int, error) {
	pos := 0
	for _, tlv := range tlvs {
		m, ok := tlv.(BinaryMarshalerTo)
		if !ok {
			return 0, fmt.Errorf("unsupported TLV %s", tlv.Type())
		}
		n, err := m.MarshalBinaryTo(b[pos:])
		if err != nil {
			return 0, err
		}
		pos += n
	}
	return pos, nil
}

func readTLVs(tlvs []TLV, b []byte) ([]TLV, error) {
	pos := 0
	for pos+tlvHeadSize <= len(b) {
		tlvType := TLVType(binary.BigEndian.Uint16(b[pos:]))
		var tlv TLV
		var length uint16
		if tlvType == TLVOrganizationExtension && isWRTLV(b[pos:]) {
			wr := &WRTLV{}
			if err := wr.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv, length = wr, wr.LengthField
		} else {
			raw := &RawTLV{}
			if err := raw.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv, length = raw, raw.LengthField
		}
		tlvs = append(tlvs, tlv)
		pos += tlvHeadSize + int(length)
	}
	return tlvs, nil
}

func (t *RawTLV) size() int {
	return tlvHeadSize + len(t.Value)
}
