// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

import (
	"github.com/pkg/errors"

	"github.com/bionic-linux/idmap2/pkg/apk"
)

// CheckUpToDate reports whether the artifact still matches the target
// and overlay APKs it was built from: the APKs named by the header must
// exist and their resources.arsc checksums must equal the recorded ones.
func (h *Header) CheckUpToDate() error {
	if h.magic != Magic {
		return errors.Errorf("bad magic: 0x%08x", h.magic)
	}
	if h.version != Version {
		return errors.Errorf("bad version: 0x%08x", h.version)
	}
	if err := checkCRC(h.targetPath, h.targetCRC); err != nil {
		return errors.Wrap(err, "target apk")
	}
	if err := checkCRC(h.overlayPath, h.overlayCRC); err != nil {
		return errors.Wrap(err, "overlay apk")
	}
	return nil
}

func checkCRC(path string, want uint32) error {
	r, err := apk.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	crc, err := r.EntryCRC32(apk.ResourceTableEntry)
	if err != nil {
		return err
	}
	if crc != want {
		return errors.Errorf("%s: crc 0x%08x does not match recorded crc 0x%08x", path, crc, want)
	}
	return nil
}
