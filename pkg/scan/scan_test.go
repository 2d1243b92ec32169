// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package scan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bionic-linux/idmap2/internal/restest"
	"github.com/bionic-linux/idmap2/pkg/idmap"
	"github.com/bionic-linux/idmap2/pkg/scan"
)

func writeScanFixture(t *testing.T) (targetAPK, inputDir, overlayAPK string) {
	t.Helper()
	dir := t.TempDir()

	targetAPK = filepath.Join(dir, "target.apk")
	restest.WriteAPK(t, targetAPK, map[string][]byte{
		"resources.arsc": restest.Table("target", 0x7f, []restest.Type{
			{Name: "string", Entries: []string{"str1", "str2"}},
		}),
	})

	inputDir = filepath.Join(dir, "overlays")
	require.NoError(t, os.MkdirAll(filepath.Join(inputDir, "sub"), 0755))

	// A real overlay of the target.
	overlayAPK = filepath.Join(inputDir, "sub", "overlay.apk")
	restest.WriteAPK(t, overlayAPK, map[string][]byte{
		"resources.arsc": restest.Table("overlay", 0x7f, []restest.Type{
			{Name: "string", Entries: []string{"str2"}},
		}),
	})

	// An APK that overrides nothing in the target.
	restest.WriteAPK(t, filepath.Join(inputDir, "unrelated.apk"), map[string][]byte{
		"resources.arsc": restest.Table("other", 0x7f, []restest.Type{
			{Name: "color", Entries: []string{"accent"}},
		}),
	})

	// Not a zip at all; scan must skip it, not fail.
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "junk.apk"), []byte("junk"), 0644))

	// Non-APK files are never candidates.
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "readme.txt"), []byte("hi"), 0644))

	return targetAPK, inputDir, overlayAPK
}

func TestFindAPKs(t *testing.T) {
	_, inputDir, overlayAPK := writeScanFixture(t)

	apks, err := scan.FindAPKs(inputDir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(inputDir, "junk.apk"),
		overlayAPK,
		filepath.Join(inputDir, "unrelated.apk"),
	}, apks)
}

func TestRun(t *testing.T) {
	targetAPK, inputDir, overlayAPK := writeScanFixture(t)
	outputDir := t.TempDir()

	paths, err := scan.Run(scan.Options{
		TargetAPK: targetAPK,
		InputDir:  inputDir,
		OutputDir: outputDir,
		Workers:   2,
	})
	require.NoError(t, err)
	require.Equal(t, []string{idmap.CanonicalPathFor(outputDir, overlayAPK)}, paths)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()

	m, err := idmap.Parse(f)
	require.NoError(t, err)
	require.Equal(t, targetAPK, m.Header().TargetPath())
	require.Equal(t, overlayAPK, m.Header().OverlayPath())

	types := m.Data()[0].ResourceTypes()
	require.Len(t, types, 1)
	require.Equal(t, uint16(1), types[0].EntryCount())
	require.Equal(t, uint16(1), types[0].EntryOffset()) // str2 is entry 1 in the target
	require.Equal(t, uint32(0), types[0].Entry(0))
}

func TestRunEmptyDirectory(t *testing.T) {
	targetAPK, _, _ := writeScanFixture(t)

	paths, err := scan.Run(scan.Options{
		TargetAPK: targetAPK,
		InputDir:  t.TempDir(),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Empty(t, paths)
}
