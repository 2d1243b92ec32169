// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arsc

import "fmt"

// ResID is a packed Android resource identifier: an 8-bit package id in
// bits 24-31, an 8-bit type id in bits 16-23 and a 16-bit entry id in
// bits 0-15.
type ResID uint32

// MakeResID packs a package id, type id and entry id into a ResID.
func MakeResID(pkg uint8, typ uint8, entry uint16) ResID {
	return ResID(uint32(pkg)<<24 | uint32(typ)<<16 | uint32(entry))
}

// PackageID returns the package id part of the resource identifier.
func (r ResID) PackageID() uint8 {
	return uint8((uint32(r) >> 24) & 0xff)
}

// TypeID returns the type id part of the resource identifier.
func (r ResID) TypeID() uint8 {
	return uint8((uint32(r) >> 16) & 0xff)
}

// EntryID returns the entry id part of the resource identifier.
func (r ResID) EntryID() uint16 {
	return uint16(uint32(r) & 0xffff)
}

func (r ResID) String() string {
	return fmt.Sprintf("0x%08x", uint32(r))
}
