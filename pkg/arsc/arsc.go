// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package arsc reads compiled Android resource tables (resources.arsc).
// It decodes just enough of the format to support idmap generation:
// package chunks, type/key string pools and entry keys. Resource values
// are not decoded.
package arsc

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// Chunk types, from ResourceTypes.h.
const (
	chunkStringPool = 0x0001
	chunkTable      = 0x0002
	chunkPackage    = 0x0200
	chunkType       = 0x0201
	chunkTypeSpec   = 0x0202
)

const (
	stringPoolUTF8Flag = 0x0100
	typeFlagSparse     = 0x01
	noEntry            = 0xffffffff
)

// Table is a parsed resource table. It is read-only after Parse returns.
type Table struct {
	packages []*Package
}

// Package is one package chunk of a resource table.
type Package struct {
	id        uint8
	name      string
	typeNames *stringPool
	keyNames  *stringPool
	specs     []*typeSpec
	types     []*typeChunk
}

type typeSpec struct {
	id         uint8
	entryCount uint32
}

// typeChunk is one configuration of a resource type. entryKeys holds the
// key-pool index for each entry slot, or -1 where the configuration does
// not define the entry.
type typeChunk struct {
	id        uint8
	entryKeys []int32
}

type stringPool struct {
	strings []string
}

// cursor reads little-endian fields out of a byte slice. The first
// out-of-bounds read latches err and subsequent reads return zero values,
// so chunk parsers only need to check err at their boundaries.
type cursor struct {
	data []byte
	off  int
	err  error
}

func (c *cursor) u8() uint8 {
	if c.err != nil || c.off+1 > len(c.data) {
		c.setErr()
		return 0
	}
	v := c.data[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if c.err != nil || c.off+2 > len(c.data) {
		c.setErr()
		return 0
	}
	v := binary.LittleEndian.Uint16(c.data[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if c.err != nil || c.off+4 > len(c.data) {
		c.setErr()
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.off:])
	c.off += 4
	return v
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil || n < 0 || c.off+n > len(c.data) {
		c.setErr()
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) seek(off int) {
	if c.err != nil {
		return
	}
	if off < 0 || off > len(c.data) {
		c.setErr()
		return
	}
	c.off = off
}

func (c *cursor) setErr() {
	if c.err == nil {
		c.err = errors.New("unexpected end of chunk")
	}
}

// Parse parses a resource table from raw resources.arsc bytes.
func Parse(data []byte) (*Table, error) {
	c := &cursor{data: data}
	chunkType16 := c.u16()
	headerSize := c.u16()
	size := c.u32()
	if c.err != nil {
		return nil, errors.Wrap(c.err, "parse table header")
	}
	if chunkType16 != chunkTable {
		return nil, errors.Errorf("not a resource table: chunk type 0x%04x", chunkType16)
	}
	c.u32() // package count; actual packages are discovered by walking chunks
	if int(size) > len(data) {
		return nil, errors.Errorf("table size %d exceeds input size %d", size, len(data))
	}

	table := &Table{}
	off := int(headerSize)
	for off+8 <= int(size) {
		ct := binary.LittleEndian.Uint16(data[off:])
		csize := binary.LittleEndian.Uint32(data[off+4:])
		if csize < 8 || off+int(csize) > int(size) {
			return nil, errors.Errorf("malformed chunk at offset 0x%x", off)
		}
		if ct == chunkPackage {
			pkg, err := parsePackage(data[off : off+int(csize)])
			if err != nil {
				return nil, errors.Wrapf(err, "parse package chunk at offset 0x%x", off)
			}
			table.packages = append(table.packages, pkg)
		}
		off += int(csize)
	}
	return table, nil
}

func parsePackage(data []byte) (*Package, error) {
	c := &cursor{data: data}
	c.u16() // chunk type, checked by caller
	headerSize := c.u16()
	c.u32() // chunk size == len(data)
	id := c.u32()
	name, err := decodePackageName(c.bytes(256))
	if err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}

	pkg := &Package{id: uint8(id), name: name}
	off := int(headerSize)
	for off+8 <= len(data) {
		ct := binary.LittleEndian.Uint16(data[off:])
		csize := binary.LittleEndian.Uint32(data[off+4:])
		if csize < 8 || off+int(csize) > len(data) {
			return nil, errors.Errorf("malformed subchunk at offset 0x%x", off)
		}
		chunk := data[off : off+int(csize)]
		switch ct {
		case chunkStringPool:
			pool, err := parseStringPool(chunk)
			if err != nil {
				return nil, errors.Wrapf(err, "parse string pool at offset 0x%x", off)
			}
			// The type-name pool precedes the key-name pool.
			if pkg.typeNames == nil {
				pkg.typeNames = pool
			} else if pkg.keyNames == nil {
				pkg.keyNames = pool
			}
		case chunkTypeSpec:
			spec, err := parseTypeSpec(chunk)
			if err != nil {
				return nil, errors.Wrapf(err, "parse type spec at offset 0x%x", off)
			}
			pkg.specs = append(pkg.specs, spec)
		case chunkType:
			t, err := parseType(chunk)
			if err != nil {
				return nil, errors.Wrapf(err, "parse type at offset 0x%x", off)
			}
			if t != nil {
				pkg.types = append(pkg.types, t)
			}
		}
		off += int(csize)
	}
	if pkg.typeNames == nil || pkg.keyNames == nil {
		return nil, errors.New("package is missing its string pools")
	}
	return pkg, nil
}

// decodePackageName decodes the fixed 256-byte UTF-16LE package name field.
func decodePackageName(raw []byte) (string, error) {
	if len(raw) != 256 {
		return "", errors.New("short package name field")
	}
	var units []uint16
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

func parseStringPool(data []byte) (*stringPool, error) {
	c := &cursor{data: data}
	c.u16() // chunk type
	headerSize := c.u16()
	c.u32() // chunk size
	strCount := c.u32()
	c.u32() // style count, styles are not needed
	flags := c.u32()
	strStart := c.u32()
	c.u32() // style start
	if c.err != nil {
		return nil, c.err
	}
	// The count is untrusted; the offset array it sizes must fit in the
	// chunk or a corrupt table could demand an arbitrary allocation.
	if max := (len(data) - int(headerSize)) / 4; max < 0 || int64(strCount) > int64(max) {
		return nil, errors.Errorf("string count %d exceeds chunk size %d", strCount, len(data))
	}

	c.seek(int(headerSize))
	offsets := make([]uint32, strCount)
	for i := range offsets {
		offsets[i] = c.u32()
	}
	if c.err != nil {
		return nil, c.err
	}

	pool := &stringPool{strings: make([]string, strCount)}
	utf8 := flags&stringPoolUTF8Flag != 0
	for i, off := range offsets {
		s, err := decodePoolString(data, int(strStart)+int(off), utf8)
		if err != nil {
			return nil, errors.Wrapf(err, "string %d", i)
		}
		pool.strings[i] = s
	}
	return pool, nil
}

func decodePoolString(data []byte, off int, utf8 bool) (string, error) {
	c := &cursor{data: data}
	c.seek(off)
	if utf8 {
		// Leading UTF-16 length, then byte length; each is one byte or,
		// with the high bit set, two.
		if c.u8()&0x80 != 0 {
			c.u8()
		}
		n := int(c.u8())
		if n&0x80 != 0 {
			n = (n&0x7f)<<8 | int(c.u8())
		}
		b := c.bytes(n)
		if c.err != nil {
			return "", c.err
		}
		return string(b), nil
	}
	n := int(c.u16())
	if n&0x8000 != 0 {
		n = (n&0x7fff)<<16 | int(c.u16())
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = c.u16()
	}
	if c.err != nil {
		return "", c.err
	}
	return string(utf16.Decode(units)), nil
}

func parseTypeSpec(data []byte) (*typeSpec, error) {
	c := &cursor{data: data}
	c.u16() // chunk type
	headerSize := c.u16()
	c.u32() // chunk size
	id := c.u8()
	c.u8()  // res0
	c.u16() // res1
	entryCount := c.u32()
	if c.err != nil {
		return nil, c.err
	}
	if id == 0 {
		return nil, errors.New("type spec with id 0")
	}
	// The spec chunk holds one configuration-flag word per entry.
	if max := (len(data) - int(headerSize)) / 4; max < 0 || int64(entryCount) > int64(max) {
		return nil, errors.Errorf("entry count %d exceeds chunk size %d", entryCount, len(data))
	}
	return &typeSpec{id: id, entryCount: entryCount}, nil
}

// parseType parses one ResTable_type chunk. Sparse type chunks are not
// used by the resource tables idmap targets; they are skipped (nil, nil).
func parseType(data []byte) (*typeChunk, error) {
	c := &cursor{data: data}
	c.u16() // chunk type
	headerSize := c.u16()
	c.u32() // chunk size
	id := c.u8()
	flags := c.u8()
	c.u16() // reserved
	entryCount := c.u32()
	entriesStart := c.u32()
	if c.err != nil {
		return nil, c.err
	}
	if id == 0 {
		return nil, errors.New("type chunk with id 0")
	}
	if flags&typeFlagSparse != 0 {
		return nil, nil
	}
	if max := (len(data) - int(headerSize)) / 4; max < 0 || int64(entryCount) > int64(max) {
		return nil, errors.Errorf("entry count %d exceeds chunk size %d", entryCount, len(data))
	}

	c.seek(int(headerSize))
	offsets := make([]uint32, entryCount)
	for i := range offsets {
		offsets[i] = c.u32()
	}
	if c.err != nil {
		return nil, c.err
	}

	t := &typeChunk{id: id, entryKeys: make([]int32, entryCount)}
	for i := range t.entryKeys {
		t.entryKeys[i] = -1
	}
	for i, off := range offsets {
		if off == noEntry {
			continue
		}
		e := &cursor{data: data}
		e.seek(int(entriesStart) + int(off))
		e.u16() // entry size
		e.u16() // entry flags
		key := e.u32()
		if e.err != nil {
			return nil, errors.Wrapf(e.err, "entry %d", i)
		}
		t.entryKeys[i] = int32(key)
	}
	return t, nil
}

// PackageZero returns the first package defined by the table, by
// construction order, or nil if the table defines none. Idmap version 1
// always uses the first package, never a package matched by name.
func (t *Table) PackageZero() *Package {
	if len(t.packages) == 0 {
		return nil
	}
	return t.packages[0]
}

// QualifiedName maps a resource identifier back to its "type/entry" name.
func (t *Table) QualifiedName(id ResID) (string, bool) {
	for _, pkg := range t.packages {
		if pkg.id != id.PackageID() {
			continue
		}
		typeName, ok := pkg.typeName(id.TypeID())
		if !ok {
			return "", false
		}
		entryName, ok := pkg.entryName(id.TypeID(), id.EntryID())
		if !ok {
			return "", false
		}
		return typeName + "/" + entryName, true
	}
	return "", false
}

// ResourceID resolves a fully qualified "package:type/entry" name to a
// resource identifier, or 0 if the table defines no such resource.
func (t *Table) ResourceID(name string) ResID {
	pkgName, rest, found := strings.Cut(name, ":")
	if !found {
		rest = name
		pkgName = ""
	}
	typeName, entryName, found := strings.Cut(rest, "/")
	if !found {
		return 0
	}
	for _, pkg := range t.packages {
		if pkgName != "" && pkg.name != pkgName {
			continue
		}
		if id := pkg.resourceID(typeName, entryName); id != 0 {
			return id
		}
	}
	return 0
}

// ID returns the package id (0x7f for application packages).
func (p *Package) ID() uint8 {
	return p.id
}

// Name returns the package name, e.g. "com.android.settings".
func (p *Package) Name() string {
	return p.name
}

// ResourceIDs enumerates every resource defined by the package, in
// ascending order.
func (p *Package) ResourceIDs() []ResID {
	var ids []ResID
	for _, spec := range p.specs {
		for entry := uint32(0); entry < spec.entryCount; entry++ {
			if _, ok := p.entryKey(spec.id, uint16(entry)); ok {
				ids = append(ids, MakeResID(p.id, spec.id, uint16(entry)))
			}
		}
	}
	return ids
}

func (p *Package) typeName(typeID uint8) (string, bool) {
	idx := int(typeID) - 1
	if idx < 0 || idx >= len(p.typeNames.strings) {
		return "", false
	}
	return p.typeNames.strings[idx], true
}

// entryKey returns the key-pool index of the entry, looking across all
// configurations of the type.
func (p *Package) entryKey(typeID uint8, entry uint16) (int32, bool) {
	for _, t := range p.types {
		if t.id != typeID || int(entry) >= len(t.entryKeys) {
			continue
		}
		if key := t.entryKeys[entry]; key >= 0 {
			return key, true
		}
	}
	return 0, false
}

func (p *Package) entryName(typeID uint8, entry uint16) (string, bool) {
	key, ok := p.entryKey(typeID, entry)
	if !ok || int(key) >= len(p.keyNames.strings) {
		return "", false
	}
	return p.keyNames.strings[key], true
}

func (p *Package) resourceID(typeName, entryName string) ResID {
	typeID := uint8(0)
	for i, name := range p.typeNames.strings {
		if name == typeName {
			typeID = uint8(i + 1)
			break
		}
	}
	if typeID == 0 {
		return 0
	}
	for _, t := range p.types {
		if t.id != typeID {
			continue
		}
		for entry, key := range t.entryKeys {
			if key >= 0 && int(key) < len(p.keyNames.strings) &&
				p.keyNames.strings[key] == entryName {
				return MakeResID(p.id, typeID, uint16(entry))
			}
		}
	}
	return 0
}
