// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"fmt"
	"io"

	"github.com/bionic-linux/idmap2/pkg/arsc"
)

// PrettyPrintVisitor dumps an idmap as one line per mapped resource,
// skipping the sentinel slots entirely. Lines carry the resolved
// resource name when the target APK named by the header can still be
// loaded; otherwise just the packed identifiers.
type PrettyPrintVisitor struct {
	w             io.Writer
	loadTable     TableLoader
	table         ResourceTable
	lastPackageID uint8
}

func NewPrettyPrintVisitor(w io.Writer) *PrettyPrintVisitor {
	return &PrettyPrintVisitor{w: w, loadTable: LoadTargetTable}
}

// NewPrettyPrintVisitorWithLoader overrides how the target resource
// table is loaded for name annotation.
func NewPrettyPrintVisitorWithLoader(w io.Writer, loader TableLoader) *PrettyPrintVisitor {
	return &PrettyPrintVisitor{w: w, loadTable: loader}
}

func (v *PrettyPrintVisitor) VisitIdmap(*Idmap) {}

func (v *PrettyPrintVisitor) VisitData(*Data) {}

func (v *PrettyPrintVisitor) VisitHeader(h *Header) {
	fmt.Fprintf(v.w, "target apk path  : %s\n", h.targetPath)
	fmt.Fprintf(v.w, "overlay apk path : %s\n", h.overlayPath)

	if table, err := v.loadTable(h.targetPath); err == nil {
		v.table = table
	}
}

func (v *PrettyPrintVisitor) VisitDataHeader(h *DataHeader) {
	v.lastPackageID = h.TargetPackageID()
}

func (v *PrettyPrintVisitor) VisitResourceType(t *ResourceType) {
	for i := 0; i < int(t.EntryCount()); i++ {
		entry := t.Entry(i)
		if entry == NoEntry {
			continue
		}
		targetID := arsc.MakeResID(v.lastPackageID, t.targetType, t.entryOffset+uint16(i))
		overlayID := arsc.MakeResID(v.lastPackageID, t.overlayType, uint16(entry))
		if v.table != nil {
			if name, ok := v.table.QualifiedName(targetID); ok {
				fmt.Fprintf(v.w, "0x%08x -> 0x%08x %s\n", uint32(targetID), uint32(overlayID), name)
				continue
			}
		}
		fmt.Fprintf(v.w, "0x%08x -> 0x%08x\n", uint32(targetID), uint32(overlayID))
	}
}
