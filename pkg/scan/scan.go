// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package scan discovers overlay APKs under a directory tree and
// generates idmap artifacts for the ones that actually override
// resources of a given target APK.
package scan

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bionic-linux/idmap2/pkg/idmap"
)

// Options configures one scan run.
type Options struct {
	// TargetAPK is the path of the target APK the overlays apply to.
	TargetAPK string

	// InputDir is walked recursively for *.apk overlay candidates.
	InputDir string

	// OutputDir receives one idmap artifact per matching overlay, at
	// idmap.CanonicalPathFor(OutputDir, overlay).
	OutputDir string

	// Workers caps concurrent idmap builds; 0 means one per candidate.
	Workers int
}

// FindAPKs returns the APK files under dir, sorted by path.
func FindAPKs(dir string) ([]string, error) {
	var apks []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".apk") {
			apks = append(apks, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}
	sort.Strings(apks)
	return apks, nil
}

// Run scans Options.InputDir and writes one idmap artifact per overlay
// that overrides at least one target resource. Candidates that fail to
// build (not a zip, no resource table) are logged and skipped: a scan
// directory routinely holds APKs that are not overlays of the target.
// It returns the artifact paths written, sorted by overlay path.
func Run(opts Options) ([]string, error) {
	overlays, err := FindAPKs(opts.InputDir)
	if err != nil {
		return nil, err
	}

	written := make([]string, len(overlays))
	var g errgroup.Group
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, overlay := range overlays {
		i, overlay := i, overlay
		g.Go(func() error {
			m, err := idmap.FromAPKs(opts.TargetAPK, overlay)
			if err != nil {
				logrus.WithError(err).Warnf("skipping %s", overlay)
				return nil
			}
			if !overridesAnything(m) {
				logrus.Debugf("%s overrides nothing in %s", overlay, opts.TargetAPK)
				return nil
			}
			path := idmap.CanonicalPathFor(opts.OutputDir, overlay)
			var buf bytes.Buffer
			if err := idmap.Write(&buf, m); err != nil {
				return errors.Wrapf(err, "serialize idmap for %s", overlay)
			}
			if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
				return errors.Wrapf(err, "write idmap for %s", overlay)
			}
			logrus.Infof("wrote %s", path)
			written[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var paths []string
	for _, p := range written {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func overridesAnything(m *idmap.Idmap) bool {
	for _, d := range m.Data() {
		if len(d.ResourceTypes()) > 0 {
			return true
		}
	}
	return false
}
