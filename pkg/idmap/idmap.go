// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package idmap builds, parses, serializes and dumps idmap artifacts:
// binary files correlating the resources of a target APK with the
// resources of an overlay APK that replaces some of them.
package idmap

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/bionic-linux/idmap2/pkg/arsc"
)

const (
	// Magic identifies an idmap artifact ("IDMP" read little-endian).
	Magic uint32 = 0x504d4449

	// Version is the current artifact format version.
	Version uint32 = 0x01

	// NoEntry marks a target entry with no overlay mapping.
	NoEntry uint32 = 0xffffffff

	// MaxEntryCount is the largest entry array a resource type group can
	// hold; the count is stored as a 16-bit field on the wire.
	MaxEntryCount = 0xffff
)

// Header is the idmap artifact header. Immutable once constructed.
type Header struct {
	magic       uint32
	version     uint32
	targetCRC   uint32
	overlayCRC  uint32
	targetPath  string
	overlayPath string
}

func (h *Header) Magic() uint32       { return h.magic }
func (h *Header) Version() uint32     { return h.version }
func (h *Header) TargetCRC() uint32   { return h.targetCRC }
func (h *Header) OverlayCRC() uint32  { return h.overlayCRC }
func (h *Header) TargetPath() string  { return h.targetPath }
func (h *Header) OverlayPath() string { return h.overlayPath }

// DataHeader heads one data block: the target package the block applies
// to and the number of resource type groups that follow. The package id
// is kept as stored on the wire, 16 bits wide; only the low 8 bits are
// meaningful.
type DataHeader struct {
	targetPackageID uint16
	typeCount       uint16
}

func (h *DataHeader) TargetPackageID() uint8 { return uint8(h.targetPackageID) }
func (h *DataHeader) TypeCount() uint16      { return h.typeCount }

// ResourceType is one resource type group: a dense run of target entries
// of a single type, starting at entryOffset. Each slot holds either the
// overlay entry id target entry (entryOffset + slot) maps to, or NoEntry.
type ResourceType struct {
	targetType  uint8
	overlayType uint8
	entryOffset uint16
	entries     []uint32
}

func (t *ResourceType) TargetType() uint8   { return t.targetType }
func (t *ResourceType) OverlayType() uint8  { return t.overlayType }
func (t *ResourceType) EntryOffset() uint16 { return t.entryOffset }
func (t *ResourceType) EntryCount() uint16  { return uint16(len(t.entries)) }

// Entry returns the value of slot i, or NoEntry when i is out of range.
func (t *ResourceType) Entry(i int) uint32 {
	if i < 0 || i >= len(t.entries) {
		return NoEntry
	}
	return t.entries[i]
}

// Data is one data block: its header and resource type groups in order.
type Data struct {
	header *DataHeader
	types  []*ResourceType
}

func (d *Data) Header() *DataHeader            { return d.header }
func (d *Data) ResourceTypes() []*ResourceType { return d.types }

// Idmap is a complete mapping artifact. Version 1 artifacts hold exactly
// one data block; the structure keeps an ordered sequence so the format
// can grow without reshaping the tree.
type Idmap struct {
	header *Header
	data   []*Data
}

func (m *Idmap) Header() *Header { return m.header }
func (m *Idmap) Data() []*Data   { return m.data }

// Lookup maps a target resource identifier through the idmap, returning
// the overlay resource identifier that replaces it.
func (m *Idmap) Lookup(target arsc.ResID) (arsc.ResID, bool) {
	for _, d := range m.data {
		if d.header.TargetPackageID() != target.PackageID() {
			continue
		}
		for _, t := range d.types {
			if t.targetType != target.TypeID() {
				continue
			}
			entry := target.EntryID()
			if entry < t.entryOffset || int(entry-t.entryOffset) >= len(t.entries) {
				continue
			}
			v := t.entries[entry-t.entryOffset]
			if v == NoEntry {
				continue
			}
			return arsc.MakeResID(target.PackageID(), t.overlayType, uint16(v)), true
		}
	}
	return 0, false
}

func parseHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	var err error
	if h.magic, err = read32(r); err != nil {
		return nil, err
	}
	if h.magic != Magic {
		return nil, errors.Errorf("bad magic 0x%08x", h.magic)
	}
	if h.version, err = read32(r); err != nil {
		return nil, err
	}
	if h.version != Version {
		return nil, errors.Errorf("unsupported version 0x%08x", h.version)
	}
	if h.targetCRC, err = read32(r); err != nil {
		return nil, err
	}
	if h.overlayCRC, err = read32(r); err != nil {
		return nil, err
	}
	if h.targetPath, err = readString(r); err != nil {
		return nil, err
	}
	if h.overlayPath, err = readString(r); err != nil {
		return nil, err
	}
	return h, nil
}

func parseDataHeader(r io.Reader) (*DataHeader, error) {
	packageID, err := read16(r)
	if err != nil {
		return nil, err
	}
	typeCount, err := read16(r)
	if err != nil {
		return nil, err
	}
	return &DataHeader{targetPackageID: packageID, typeCount: typeCount}, nil
}

func parseResourceType(r io.Reader) (*ResourceType, error) {
	targetType, err := read16(r)
	if err != nil {
		return nil, err
	}
	overlayType, err := read16(r)
	if err != nil {
		return nil, err
	}
	entryCount, err := read16(r)
	if err != nil {
		return nil, err
	}
	entryOffset, err := read16(r)
	if err != nil {
		return nil, err
	}
	t := &ResourceType{
		targetType:  uint8(targetType),
		overlayType: uint8(overlayType),
		entryOffset: entryOffset,
		entries:     make([]uint32, 0, entryCount),
	}
	for i := 0; i < int(entryCount); i++ {
		entry, err := read32(r)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d of %d", i, entryCount)
		}
		t.entries = append(t.entries, entry)
	}
	return t, nil
}

func parseData(r io.Reader) (*Data, error) {
	header, err := parseDataHeader(r)
	if err != nil {
		return nil, err
	}
	d := &Data{header: header}
	for i := 0; i < int(header.typeCount); i++ {
		t, err := parseResourceType(r)
		if err != nil {
			return nil, errors.Wrapf(err, "resource type group %d", i)
		}
		d.types = append(d.types, t)
	}
	return d, nil
}

// Parse reconstructs an idmap from its binary representation. Parsing is
// all-or-nothing: any truncated or corrupt field fails the whole parse
// and no partial artifact is ever returned.
func Parse(r io.Reader) (*Idmap, error) {
	header, err := parseHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse idmap header")
	}
	m := &Idmap{header: header}
	// Version 1 does not store the number of data blocks that follow the
	// header; exactly one is assumed.
	for i := 0; i < 1; i++ {
		d, err := parseData(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse data block %d", i)
		}
		m.data = append(m.data, d)
	}
	return m, nil
}

// CanonicalPathFor derives the canonical idmap artifact path for an
// overlay APK: the APK path with its separators replaced by '@', rooted
// in dir and suffixed "@idmap". Both arguments must be absolute paths
// without trailing separators; callers are expected to guarantee this.
func CanonicalPathFor(dir, apkPath string) string {
	return dir + "/" + strings.ReplaceAll(strings.TrimPrefix(apkPath, "/"), "/", "@") + "@idmap"
}
