// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/bionic-linux/idmap2/pkg/apk"
	"github.com/bionic-linux/idmap2/pkg/arsc"
)

// ResourceTable is the view of a loaded resource table the matcher and
// the dump visitors need.
type ResourceTable interface {
	// ResourceID resolves a fully qualified "package:type/entry" name,
	// returning 0 when the table defines no such resource.
	ResourceID(name string) arsc.ResID

	// QualifiedName maps a resource identifier to its "type/entry" name.
	QualifiedName(id arsc.ResID) (string, bool)

	// PackageZero returns the first package of the table, by construction
	// order, or nil when the table defines none. Idmap version 1 always
	// uses the first package; it never matches packages by name.
	PackageZero() ResourcePackage
}

// ResourcePackage is one package of a resource table.
type ResourcePackage interface {
	ID() uint8
	Name() string
	ResourceIDs() []arsc.ResID
}

// arscTable adapts *arsc.Table to the ResourceTable interface.
type arscTable struct {
	t *arsc.Table
}

func (a arscTable) ResourceID(name string) arsc.ResID { return a.t.ResourceID(name) }

func (a arscTable) QualifiedName(id arsc.ResID) (string, bool) { return a.t.QualifiedName(id) }

func (a arscTable) PackageZero() ResourcePackage {
	if p := a.t.PackageZero(); p != nil {
		return p
	}
	return nil
}

// TableLoader loads the resource table of the APK at path. The dump
// visitors use it to annotate mappings with resource names.
type TableLoader func(path string) (ResourceTable, error)

// LoadTargetTable is the default TableLoader, reading the table out of
// the APK on the local filesystem.
func LoadTargetTable(path string) (ResourceTable, error) {
	t, err := apk.LoadResourceTable(path)
	if err != nil {
		return nil, err
	}
	return arscTable{t}, nil
}

// FromAPKs builds a new idmap from the target and overlay APKs at the
// given paths.
func FromAPKs(targetPath, overlayPath string) (*Idmap, error) {
	targetZip, err := apk.Open(targetPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open target as zip")
	}
	defer targetZip.Close()

	overlayZip, err := apk.Open(overlayPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open overlay as zip")
	}
	defer overlayZip.Close()

	targetTable, err := loadTable(targetZip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load target resources.arsc")
	}
	overlayTable, err := loadTable(overlayZip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load overlay resources.arsc")
	}

	targetCRC, err := targetZip.EntryCRC32(apk.ResourceTableEntry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get zip crc for target")
	}
	overlayCRC, err := overlayZip.EntryCRC32(apk.ResourceTableEntry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get zip crc for overlay")
	}

	return FromAssets(targetPath, arscTable{targetTable}, targetCRC,
		overlayPath, arscTable{overlayTable}, overlayCRC)
}

func loadTable(r *apk.Reader) (*arsc.Table, error) {
	data, err := r.ReadEntry(apk.ResourceTableEntry)
	if err != nil {
		return nil, err
	}
	return arsc.Parse(data)
}

type matchPair struct {
	target  arsc.ResID
	overlay arsc.ResID
}

// FromAssets computes a new idmap from already loaded target and overlay
// resource tables. Overlay resources whose names cannot be resolved, or
// that override nothing in the target, are silently skipped: they are
// simply not matches.
func FromAssets(targetPath string, target ResourceTable, targetCRC uint32,
	overlayPath string, overlay ResourceTable, overlayCRC uint32) (*Idmap, error) {

	targetPkg := target.PackageZero()
	if targetPkg == nil {
		return nil, errors.New("failed to load target package from resources.arsc")
	}
	overlayPkg := overlay.PackageZero()
	if overlayPkg == nil {
		return nil, errors.New("failed to load overlay package from resources.arsc")
	}

	// Find the resources that exist, by qualified name, in both packages.
	matches := map[uint8][]matchPair{}
	for _, overlayID := range overlayPkg.ResourceIDs() {
		name, ok := overlay.QualifiedName(overlayID)
		if !ok {
			continue
		}
		targetID := target.ResourceID(targetPkg.Name() + ":" + name)
		if targetID == 0 {
			continue
		}
		typeID := targetID.TypeID()
		matches[typeID] = append(matches[typeID], matchPair{target: targetID, overlay: overlayID})
	}

	typeIDs := make([]int, 0, len(matches))
	for typeID := range matches {
		typeIDs = append(typeIDs, int(typeID))
	}
	sort.Ints(typeIDs)

	// Encode each type group as a dense, offset-based run over the span
	// from its first to its last matched target entry, with NoEntry
	// filling the holes.
	data := &Data{}
	for _, id := range typeIDs {
		typeID := uint8(id)
		pairs := matches[typeID]
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].target != pairs[j].target {
				return pairs[i].target < pairs[j].target
			}
			return pairs[i].overlay < pairs[j].overlay
		})

		t := &ResourceType{
			targetType:  typeID,
			overlayType: pairs[0].overlay.TypeID(),
			entryOffset: pairs[0].target.EntryID(),
		}
		lastEntry := -1
		for _, p := range pairs {
			entry := int(p.target.EntryID())
			if entry == lastEntry {
				continue
			}
			if lastEntry >= 0 {
				for gap := entry - lastEntry - 1; gap > 0; gap-- {
					t.entries = append(t.entries, NoEntry)
				}
			}
			t.entries = append(t.entries, uint32(p.overlay.EntryID()))
			lastEntry = entry
		}
		if len(t.entries) > MaxEntryCount {
			return nil, errors.Errorf("type 0x%02x spans %d entries, exceeding the format maximum %d",
				typeID, len(t.entries), MaxEntryCount)
		}
		data.types = append(data.types, t)
	}
	data.header = &DataHeader{
		targetPackageID: uint16(targetPkg.ID()),
		typeCount:       uint16(len(data.types)),
	}

	return &Idmap{
		header: &Header{
			magic:       Magic,
			version:     Version,
			targetCRC:   targetCRC,
			overlayCRC:  overlayCRC,
			targetPath:  targetPath,
			overlayPath: overlayPath,
		},
		data: []*Data{data},
	}, nil
}
