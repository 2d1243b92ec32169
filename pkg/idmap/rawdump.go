// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"fmt"
	"io"

	"github.com/bionic-linux/idmap2/pkg/arsc"
)

// RawPrintVisitor dumps every primitive field of an idmap, one line per
// field, tagged with its byte offset in the binary representation.
// Mapped entry slots are additionally annotated with the packed target
// and overlay resource identifiers and, when the target APK named by the
// header can still be loaded, the resolved resource name. A missing
// target APK degrades the dump: the lines lose their name annotation.
type RawPrintVisitor struct {
	w             io.Writer
	loadTable     TableLoader
	table         ResourceTable
	offset        int
	lastPackageID uint8
}

func NewRawPrintVisitor(w io.Writer) *RawPrintVisitor {
	return &RawPrintVisitor{w: w, loadTable: LoadTargetTable}
}

// NewRawPrintVisitorWithLoader overrides how the target resource table
// is loaded for name annotation.
func NewRawPrintVisitorWithLoader(w io.Writer, loader TableLoader) *RawPrintVisitor {
	return &RawPrintVisitor{w: w, loadTable: loader}
}

func (v *RawPrintVisitor) VisitIdmap(*Idmap) {}

func (v *RawPrintVisitor) VisitData(*Data) {}

func (v *RawPrintVisitor) VisitHeader(h *Header) {
	v.print32(h.magic, "magic")
	v.print32(h.version, "version")
	v.print32(h.targetCRC, "target crc")
	v.print32(h.overlayCRC, "overlay crc")
	v.printString(h.targetPath, "target path")
	v.printString(h.overlayPath, "overlay path")

	if table, err := v.loadTable(h.targetPath); err == nil {
		v.table = table
	}
}

func (v *RawPrintVisitor) VisitDataHeader(h *DataHeader) {
	v.print16(h.targetPackageID, "target package id")
	v.print16(h.typeCount, "type count")
	v.lastPackageID = h.TargetPackageID()
}

func (v *RawPrintVisitor) VisitResourceType(t *ResourceType) {
	v.print16(uint16(t.targetType), "target type")
	v.print16(uint16(t.overlayType), "overlay type")
	v.print16(t.EntryCount(), "entry count")
	v.print16(t.entryOffset, "entry offset")

	for i := 0; i < int(t.EntryCount()); i++ {
		entry := t.Entry(i)
		if entry == NoEntry {
			v.print32(entry, "no entry")
			continue
		}
		targetID := arsc.MakeResID(v.lastPackageID, t.targetType, t.entryOffset+uint16(i))
		overlayID := arsc.MakeResID(v.lastPackageID, t.overlayType, uint16(entry))
		label := fmt.Sprintf("0x%08x -> 0x%08x", uint32(targetID), uint32(overlayID))
		if v.table != nil {
			if name, ok := v.table.QualifiedName(targetID); ok {
				label += " " + name
			}
		}
		v.print32(entry, label)
	}
}

func (v *RawPrintVisitor) print16(value uint16, label string) {
	fmt.Fprintf(v.w, "%08x:     %04x  %s\n", v.offset, value, label)
	v.offset += 2
}

func (v *RawPrintVisitor) print32(value uint32, label string) {
	fmt.Fprintf(v.w, "%08x: %08x  %s\n", v.offset, value, label)
	v.offset += 4
}

func (v *RawPrintVisitor) printString(value string, label string) {
	fmt.Fprintf(v.w, "%08x: ........ %s: %s\n", v.offset, label, value)
	v.offset += stringFieldSize
}
