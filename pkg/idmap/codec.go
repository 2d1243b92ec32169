// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Wire primitives for the idmap binary format. The format is fixed as
// little-endian on both write and read; the C++ implementation wrote
// host byte order, which is little-endian on every supported device, so
// existing artifacts parse unchanged.

const (
	// stringFieldSize is the on-wire size of a path field. The field is
	// NUL-terminated and zero-padded; the final byte is always zero.
	stringFieldSize = 256
	maxStringLength = stringFieldSize - 1
)

func read16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func read32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	var b [stringFieldSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	if n := bytes.IndexByte(b[:], 0); n >= 0 {
		return string(b[:n]), nil
	}
	// No terminator means a corrupt writer; take the whole field.
	return string(b[:]), nil
}

func write16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func write32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// writeString writes s as a zero-padded 256-byte field. Strings longer
// than 255 bytes are refused: a truncated path would silently break the
// dump visitors' reload of the target APK.
func writeString(w io.Writer, s string) error {
	if len(s) > maxStringLength {
		return errors.Errorf("string exceeds %d bytes: %q", maxStringLength, s)
	}
	var b [stringFieldSize]byte
	copy(b[:], s)
	_, err := w.Write(b[:])
	return err
}
