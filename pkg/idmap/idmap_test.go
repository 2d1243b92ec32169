// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bionic-linux/idmap2/pkg/arsc"
)

// goldenRaw builds a complete version-1 artifact: header, one data
// block with package 0x7f and two resource type groups.
func goldenRaw() []byte {
	var buf bytes.Buffer
	le16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	le32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	str := func(s string) {
		b := make([]byte, stringFieldSize)
		copy(b, s)
		buf.Write(b)
	}

	le32(Magic)
	le32(Version)
	le32(0x1234)
	le32(0x5678)
	str("target.apk")
	str("overlay.apk")

	le16(0x007f) // target package id
	le16(2)      // type count

	le16(0x02) // target type
	le16(0x02) // overlay type
	le16(1)    // entry count
	le16(0)    // entry offset
	le32(0)

	le16(0x03) // target type
	le16(0x03) // overlay type
	le16(3)    // entry count
	le16(3)    // entry offset
	le32(0)
	le32(NoEntry)
	le32(1)

	return buf.Bytes()
}

const (
	goldenDataOffset = 4*4 + 2*stringFieldSize // 0x210
	goldenTypeOffset = goldenDataOffset + 4    // 0x214
)

func TestCanonicalPathFor(t *testing.T) {
	require.Equal(t, "/foo/vendor@overlay@bar.apk@idmap",
		CanonicalPathFor("/foo", "/vendor/overlay/bar.apk"))
}

func TestParseHeader(t *testing.T) {
	header, err := parseHeader(bytes.NewReader(goldenRaw()))
	require.NoError(t, err)
	require.Equal(t, Magic, header.Magic())
	require.Equal(t, Version, header.Version())
	require.Equal(t, uint32(0x1234), header.TargetCRC())
	require.Equal(t, uint32(0x5678), header.OverlayCRC())
	require.Equal(t, "target.apk", header.TargetPath())
	require.Equal(t, "overlay.apk", header.OverlayPath())
}

func TestParseDataHeader(t *testing.T) {
	header, err := parseDataHeader(bytes.NewReader(goldenRaw()[goldenDataOffset:]))
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), header.TargetPackageID())
	require.Equal(t, uint16(2), header.TypeCount())
}

func TestParseResourceType(t *testing.T) {
	rt, err := parseResourceType(bytes.NewReader(goldenRaw()[goldenTypeOffset:]))
	require.NoError(t, err)
	require.Equal(t, uint8(0x02), rt.TargetType())
	require.Equal(t, uint8(0x02), rt.OverlayType())
	require.Equal(t, uint16(1), rt.EntryCount())
	require.Equal(t, uint16(0), rt.EntryOffset())
	require.Equal(t, uint32(0), rt.Entry(0))
	require.Equal(t, NoEntry, rt.Entry(1)) // out of range
}

func TestParseData(t *testing.T) {
	data, err := parseData(bytes.NewReader(goldenRaw()[goldenDataOffset:]))
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), data.Header().TargetPackageID())
	require.Equal(t, uint16(2), data.Header().TypeCount())

	types := data.ResourceTypes()
	require.Len(t, types, 2)

	require.Equal(t, uint8(0x02), types[0].TargetType())
	require.Equal(t, uint8(0x02), types[0].OverlayType())
	require.Equal(t, uint16(1), types[0].EntryCount())
	require.Equal(t, uint16(0), types[0].EntryOffset())
	require.Equal(t, uint32(0), types[0].Entry(0))

	require.Equal(t, uint8(0x03), types[1].TargetType())
	require.Equal(t, uint8(0x03), types[1].OverlayType())
	require.Equal(t, uint16(3), types[1].EntryCount())
	require.Equal(t, uint16(3), types[1].EntryOffset())
	require.Equal(t, uint32(0), types[1].Entry(0))
	require.Equal(t, NoEntry, types[1].Entry(1))
	require.Equal(t, uint32(1), types[1].Entry(2))
}

func TestParse(t *testing.T) {
	m, err := Parse(bytes.NewReader(goldenRaw()))
	require.NoError(t, err)

	require.Equal(t, Magic, m.Header().Magic())
	require.Equal(t, Version, m.Header().Version())
	require.Equal(t, uint32(0x1234), m.Header().TargetCRC())
	require.Equal(t, uint32(0x5678), m.Header().OverlayCRC())
	require.Equal(t, "target.apk", m.Header().TargetPath())
	require.Equal(t, "overlay.apk", m.Header().OverlayPath())

	require.Len(t, m.Data(), 1)
	data := m.Data()[0]
	require.Equal(t, uint8(0x7f), data.Header().TargetPackageID())
	require.Len(t, data.ResourceTypes(), 2)
}

func TestParseTruncated(t *testing.T) {
	m, err := Parse(bytes.NewReader(goldenRaw()[:10]))
	require.Error(t, err)
	require.Nil(t, m)
	require.Contains(t, err.Error(), "failed to parse idmap header")
}

func TestParseBadMagic(t *testing.T) {
	raw := goldenRaw()
	raw[0] ^= 0xff
	m, err := Parse(bytes.NewReader(raw))
	require.Error(t, err)
	require.Nil(t, m)
	require.Contains(t, err.Error(), "failed to parse idmap header")
	require.Contains(t, err.Error(), "bad magic")
}

func TestParseBadVersion(t *testing.T) {
	raw := goldenRaw()
	raw[4] = 0x42
	_, err := Parse(bytes.NewReader(raw))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported version")
}

func TestParseTruncatedEntryArray(t *testing.T) {
	raw := goldenRaw()
	m, err := Parse(bytes.NewReader(raw[:len(raw)-2]))
	require.Error(t, err)
	require.Nil(t, m)
	require.Contains(t, err.Error(), "failed to parse data block 0")
}

func TestBinaryRoundTrip(t *testing.T) {
	raw := goldenRaw()
	m1, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m1))
	require.Equal(t, raw, buf.Bytes())

	m2, err := Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, m1.Header().TargetCRC(), m2.Header().TargetCRC())
	require.Equal(t, m1.Header().TargetPath(), m2.Header().TargetPath())
	require.Len(t, m2.Data(), len(m1.Data()))
	for i, d1 := range m1.Data() {
		d2 := m2.Data()[i]
		require.Equal(t, d1.Header().TargetPackageID(), d2.Header().TargetPackageID())
		require.Len(t, d2.ResourceTypes(), len(d1.ResourceTypes()))
		for j, t1 := range d1.ResourceTypes() {
			t2 := d2.ResourceTypes()[j]
			require.Equal(t, t1.TargetType(), t2.TargetType())
			require.Equal(t, t1.OverlayType(), t2.OverlayType())
			require.Equal(t, t1.EntryOffset(), t2.EntryOffset())
			require.Equal(t, t1.EntryCount(), t2.EntryCount())
			for k := 0; k < int(t1.EntryCount()); k++ {
				require.Equal(t, t1.Entry(k), t2.Entry(k))
			}
		}
	}
}

func TestPackageIDHighByteRoundTrip(t *testing.T) {
	// The stored package id field is 16 bits wide with only the low 8
	// meaningful; a nonzero high byte must survive re-serialization
	// untouched and be ignored by lookups.
	raw := goldenRaw()
	raw[goldenDataOffset+1] = 0xff // package id field becomes 0xff7f

	m, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), m.Data()[0].Header().TargetPackageID())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	require.Equal(t, raw, buf.Bytes())

	overlayID, ok := m.Lookup(arsc.ResID(0x7f020000))
	require.True(t, ok)
	require.Equal(t, arsc.ResID(0x7f020000), overlayID)
}

func TestWriteRefusesOverlongPath(t *testing.T) {
	m := &Idmap{
		header: &Header{
			magic:      Magic,
			version:    Version,
			targetPath: strings.Repeat("a", 300),
		},
		data: []*Data{{header: &DataHeader{}}},
	}
	var buf bytes.Buffer
	require.Error(t, Write(&buf, m))
}

func TestLookup(t *testing.T) {
	m, err := Parse(bytes.NewReader(goldenRaw()))
	require.NoError(t, err)

	overlayID, ok := m.Lookup(arsc.ResID(0x7f020000))
	require.True(t, ok)
	require.Equal(t, arsc.ResID(0x7f020000), overlayID)

	overlayID, ok = m.Lookup(arsc.ResID(0x7f030003))
	require.True(t, ok)
	require.Equal(t, arsc.ResID(0x7f030000), overlayID)

	_, ok = m.Lookup(arsc.ResID(0x7f030004)) // sentinel slot
	require.False(t, ok)

	overlayID, ok = m.Lookup(arsc.ResID(0x7f030005))
	require.True(t, ok)
	require.Equal(t, arsc.ResID(0x7f030001), overlayID)

	_, ok = m.Lookup(arsc.ResID(0x7f030006)) // past the span
	require.False(t, ok)

	_, ok = m.Lookup(arsc.ResID(0x7e030003)) // wrong package
	require.False(t, ok)
}

type recordingVisitor struct {
	events []string
}

func (v *recordingVisitor) VisitIdmap(*Idmap)               { v.events = append(v.events, "Idmap") }
func (v *recordingVisitor) VisitHeader(*Header)             { v.events = append(v.events, "Header") }
func (v *recordingVisitor) VisitData(*Data)                 { v.events = append(v.events, "Data") }
func (v *recordingVisitor) VisitDataHeader(*DataHeader)     { v.events = append(v.events, "DataHeader") }
func (v *recordingVisitor) VisitResourceType(*ResourceType) { v.events = append(v.events, "ResourceType") }

func TestVisitorTraversalOrder(t *testing.T) {
	m, err := Parse(bytes.NewReader(goldenRaw()))
	require.NoError(t, err)

	v := &recordingVisitor{}
	m.Accept(v)
	require.Equal(t, []string{
		"Idmap",
		"Header",
		"Data",
		"DataHeader",
		"ResourceType",
		"ResourceType",
	}, v.events)
}
