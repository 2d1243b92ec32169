// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package apk provides read access to APK archives: individual entry
// contents and the entry checksums recorded in the zip central directory.
package apk

import (
	"archive/zip"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"

	"github.com/bionic-linux/idmap2/pkg/arsc"
)

// ResourceTableEntry is the zip entry holding the compiled resource table.
const ResourceTableEntry = "resources.arsc"

// ErrNotFound is returned when the archive has no entry with the
// requested name.
var ErrNotFound = errors.New("entry not found in archive")

// Reader reads entries out of one APK archive.
type Reader struct {
	path string
	zr   *zip.ReadCloser
}

// Open opens the APK at path for reading.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s as zip", path)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	return &Reader{path: path, zr: zr}, nil
}

// Close releases the underlying archive.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Path returns the path the archive was opened from.
func (r *Reader) Path() string {
	return r.path
}

func (r *Reader) find(name string) *zip.File {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReadEntry returns the uncompressed contents of the named entry, or
// ErrNotFound if the archive has no such entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f := r.find(name)
	if f == nil {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open entry %s", name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %s", name)
	}
	return data, nil
}

// EntryCRC32 returns the CRC32 of the named entry as recorded in the zip
// central directory, without decompressing the entry.
func (r *Reader) EntryCRC32(name string) (uint32, error) {
	f := r.find(name)
	if f == nil {
		return 0, errors.Wrap(ErrNotFound, name)
	}
	return f.CRC32, nil
}

// LoadResourceTable opens the APK at path and parses its resources.arsc.
func LoadResourceTable(path string) (*arsc.Table, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := r.ReadEntry(ResourceTableEntry)
	if err != nil {
		return nil, err
	}
	table, err := arsc.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s of %s", ResourceTableEntry, path)
	}
	return table, nil
}
