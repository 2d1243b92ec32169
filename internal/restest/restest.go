// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package restest builds small resources.arsc blobs and APK archives for
// tests. The generated tables use one package with UTF-8 string pools and
// one configuration per type.
package restest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"testing"
	"unicode/utf16"
)

// Type describes one resource type of a generated table. Entries holds
// the entry names in entry-id order; an empty string leaves a hole (no
// entry defined at that id).
type Type struct {
	Name    string
	Entries []string
}

// Table serializes a resource table with a single package.
func Table(pkgName string, pkgID uint8, types []Type) []byte {
	typeNames := make([]string, len(types))
	var keyNames []string
	keyIndex := map[string]uint32{}
	for i, t := range types {
		typeNames[i] = t.Name
		for _, e := range t.Entries {
			if e == "" {
				continue
			}
			if _, ok := keyIndex[e]; !ok {
				keyIndex[e] = uint32(len(keyNames))
				keyNames = append(keyNames, e)
			}
		}
	}

	var pkgBody bytes.Buffer
	pkgBody.Write(stringPool(typeNames))
	pkgBody.Write(stringPool(keyNames))
	for i, t := range types {
		id := uint8(i + 1)
		pkgBody.Write(typeSpec(id, len(t.Entries)))
		pkgBody.Write(typeChunk(id, t.Entries, keyIndex))
	}

	var pkg bytes.Buffer
	const pkgHeaderSize = 288
	chunkHeader(&pkg, 0x0200, pkgHeaderSize, pkgHeaderSize+pkgBody.Len())
	le32(&pkg, uint32(pkgID))
	pkg.Write(packageName(pkgName))
	le32(&pkg, pkgHeaderSize)                                     // type strings offset
	le32(&pkg, uint32(len(typeNames)))                            // last public type
	le32(&pkg, uint32(pkgHeaderSize+len(stringPool(typeNames)))) // key strings offset
	le32(&pkg, uint32(len(keyNames)))                             // last public key
	le32(&pkg, 0)                                                 // type id offset
	pkg.Write(pkgBody.Bytes())

	globalPool := stringPool(nil)

	var table bytes.Buffer
	chunkHeader(&table, 0x0002, 12, 12+len(globalPool)+pkg.Len())
	le32(&table, 1) // package count
	table.Write(globalPool)
	table.Write(pkg.Bytes())
	return table.Bytes()
}

// WriteAPK writes a zip archive containing the given files, using the
// store method so entry CRCs are trivially inspectable.
func WriteAPK(tb testing.TB, path string, files map[string][]byte) {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			tb.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}

func chunkHeader(buf *bytes.Buffer, chunkType uint16, headerSize, size int) {
	le16(buf, chunkType)
	le16(buf, uint16(headerSize))
	le32(buf, uint32(size))
}

// stringPool serializes a UTF-8 string pool chunk.
func stringPool(strs []string) []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(data.Len())
		data.WriteByte(byte(len(s))) // UTF-16 length, ASCII only in tests
		data.WriteByte(byte(len(s))) // byte length
		data.WriteString(s)
		data.WriteByte(0)
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	const headerSize = 28
	strStart := headerSize + 4*len(strs)
	var buf bytes.Buffer
	chunkHeader(&buf, 0x0001, headerSize, strStart+data.Len())
	le32(&buf, uint32(len(strs)))
	le32(&buf, 0)      // style count
	le32(&buf, 0x0100) // UTF-8 flag
	le32(&buf, uint32(strStart))
	le32(&buf, 0) // style start
	for _, off := range offsets {
		le32(&buf, off)
	}
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func packageName(name string) []byte {
	raw := make([]byte, 256)
	for i, u := range utf16.Encode([]rune(name)) {
		if 2*i+1 >= len(raw)-2 {
			break
		}
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	return raw
}

func typeSpec(id uint8, entryCount int) []byte {
	var buf bytes.Buffer
	chunkHeader(&buf, 0x0202, 16, 16+4*entryCount)
	buf.WriteByte(id)
	buf.WriteByte(0)
	le16(&buf, 0)
	le32(&buf, uint32(entryCount))
	for i := 0; i < entryCount; i++ {
		le32(&buf, 0)
	}
	return buf.Bytes()
}

func typeChunk(id uint8, entries []string, keyIndex map[string]uint32) []byte {
	const configSize = 36
	const headerSize = 20 + configSize
	entriesStart := headerSize + 4*len(entries)

	var body bytes.Buffer
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if e == "" {
			offsets[i] = 0xffffffff
			continue
		}
		offsets[i] = uint32(body.Len())
		le16(&body, 8)               // entry size
		le16(&body, 0)               // entry flags
		le32(&body, keyIndex[e])     // key
		le16(&body, 8)               // value size
		body.WriteByte(0)            // res0
		body.WriteByte(0x10)         // TYPE_INT_DEC
		le32(&body, uint32(i))       // value data, arbitrary
	}

	var buf bytes.Buffer
	chunkHeader(&buf, 0x0201, headerSize, entriesStart+body.Len())
	buf.WriteByte(id)
	buf.WriteByte(0) // flags
	le16(&buf, 0)    // reserved
	le32(&buf, uint32(len(entries)))
	le32(&buf, uint32(entriesStart))
	le32(&buf, configSize)
	buf.Write(make([]byte, configSize-4))
	for _, off := range offsets {
		le32(&buf, off)
	}
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func le16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func le32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
