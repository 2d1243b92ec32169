// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import "io"

// BinaryStreamVisitor serializes an idmap to the version-1 binary
// format. The first write failure latches; later visits are no-ops.
type BinaryStreamVisitor struct {
	w   io.Writer
	err error
}

func NewBinaryStreamVisitor(w io.Writer) *BinaryStreamVisitor {
	return &BinaryStreamVisitor{w: w}
}

// Err returns the first error encountered while writing, if any.
func (v *BinaryStreamVisitor) Err() error {
	return v.err
}

func (v *BinaryStreamVisitor) VisitIdmap(*Idmap) {}

func (v *BinaryStreamVisitor) VisitData(*Data) {}

func (v *BinaryStreamVisitor) VisitHeader(h *Header) {
	v.put32(h.magic)
	v.put32(h.version)
	v.put32(h.targetCRC)
	v.put32(h.overlayCRC)
	v.putString(h.targetPath)
	v.putString(h.overlayPath)
}

func (v *BinaryStreamVisitor) VisitDataHeader(h *DataHeader) {
	v.put16(h.targetPackageID)
	v.put16(h.typeCount)
}

func (v *BinaryStreamVisitor) VisitResourceType(t *ResourceType) {
	v.put16(uint16(t.targetType))
	v.put16(uint16(t.overlayType))
	v.put16(t.EntryCount())
	v.put16(t.entryOffset)
	for _, entry := range t.entries {
		v.put32(entry)
	}
}

func (v *BinaryStreamVisitor) put16(value uint16) {
	if v.err == nil {
		v.err = write16(v.w, value)
	}
}

func (v *BinaryStreamVisitor) put32(value uint32) {
	if v.err == nil {
		v.err = write32(v.w, value)
	}
}

func (v *BinaryStreamVisitor) putString(value string) {
	if v.err == nil {
		v.err = writeString(v.w, value)
	}
}

// Write serializes the idmap to w in the version-1 binary format.
func Write(w io.Writer, m *Idmap) error {
	v := NewBinaryStreamVisitor(w)
	m.Accept(v)
	return v.Err()
}
