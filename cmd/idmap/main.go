// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// The idmap CLI tool creates, inspects and verifies idmap artifacts:
// binary files mapping the resources of a target APK to the resources
// of an overlay APK that replaces some of them.
package main

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bionic-linux/idmap2/pkg/arsc"
	"github.com/bionic-linux/idmap2/pkg/idmap"
	"github.com/bionic-linux/idmap2/pkg/scan"
)

var versionGitCommit string
var versionBuildTime string

func parseIdmapFile(path string) (*idmap.Idmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return idmap.Parse(f)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)

	app := &cli.App{
		Name:    "idmap",
		Usage:   "Idmap resource overlay mapping tool",
		Version: version,
	}

	logLevelFlag := &cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)",
	}
	setLogLevel := func(c *cli.Context) error {
		level, err := logrus.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:  "create",
			Usage: "Create an idmap artifact from a target and an overlay APK",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "target-apk-path", Required: true, Usage: "Path of the target APK whose resources are overridden"},
				&cli.StringFlag{Name: "overlay-apk-path", Required: true, Usage: "Path of the overlay APK supplying replacement resources"},
				&cli.StringFlag{Name: "idmap-path", Required: true, Usage: "Path to write the idmap artifact to"},
			},
			Action: func(c *cli.Context) error {
				if err := setLogLevel(c); err != nil {
					return err
				}
				m, err := idmap.FromAPKs(c.String("target-apk-path"), c.String("overlay-apk-path"))
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := idmap.Write(&buf, m); err != nil {
					return err
				}
				if err := os.WriteFile(c.String("idmap-path"), buf.Bytes(), 0644); err != nil {
					return err
				}
				logrus.Infof("wrote %s", c.String("idmap-path"))
				return nil
			},
		},
		{
			Name:  "dump",
			Usage: "Dump an idmap artifact as text",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "idmap-path", Required: true, Usage: "Path of the idmap artifact to dump"},
				&cli.BoolFlag{Name: "verbose", Usage: "Dump every field with its byte offset instead of the resolved mappings"},
			},
			Action: func(c *cli.Context) error {
				if err := setLogLevel(c); err != nil {
					return err
				}
				m, err := parseIdmapFile(c.String("idmap-path"))
				if err != nil {
					return err
				}
				var v idmap.Visitor
				if c.Bool("verbose") {
					v = idmap.NewRawPrintVisitor(os.Stdout)
				} else {
					v = idmap.NewPrettyPrintVisitor(os.Stdout)
				}
				m.Accept(v)
				return nil
			},
		},
		{
			Name:  "lookup",
			Usage: "Map a target resource identifier through an idmap artifact",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "idmap-path", Required: true, Usage: "Path of the idmap artifact"},
				&cli.StringFlag{Name: "resid", Required: true, Usage: "Target resource identifier, e.g. 0x7f010002"},
			},
			Action: func(c *cli.Context) error {
				if err := setLogLevel(c); err != nil {
					return err
				}
				resid, err := strconv.ParseUint(c.String("resid"), 0, 32)
				if err != nil {
					return errors.Wrap(err, "parse resid")
				}
				m, err := parseIdmapFile(c.String("idmap-path"))
				if err != nil {
					return err
				}
				overlayID, ok := m.Lookup(arsc.ResID(resid))
				if !ok {
					return errors.Errorf("0x%08x has no overlay mapping", resid)
				}
				fmt.Printf("0x%08x -> 0x%08x\n", resid, uint32(overlayID))
				return nil
			},
		},
		{
			Name:  "scan",
			Usage: "Generate idmap artifacts for every overlay APK under a directory",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "target-apk-path", Required: true, Usage: "Path of the target APK the overlays apply to"},
				&cli.StringFlag{Name: "input-directory", Required: true, Usage: "Directory to scan recursively for overlay APKs"},
				&cli.StringFlag{Name: "output-directory", Required: true, Usage: "Directory to write idmap artifacts to"},
				&cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "Maximum concurrent idmap builds"},
			},
			Action: func(c *cli.Context) error {
				if err := setLogLevel(c); err != nil {
					return err
				}
				paths, err := scan.Run(scan.Options{
					TargetAPK: c.String("target-apk-path"),
					InputDir:  c.String("input-directory"),
					OutputDir: c.String("output-directory"),
					Workers:   c.Int("workers"),
				})
				if err != nil {
					return err
				}
				for _, path := range paths {
					fmt.Println(path)
				}
				return nil
			},
		},
		{
			Name:  "verify",
			Usage: "Check that an idmap artifact is still up to date",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "idmap-path", Required: true, Usage: "Path of the idmap artifact to verify"},
			},
			Action: func(c *cli.Context) error {
				if err := setLogLevel(c); err != nil {
					return err
				}
				m, err := parseIdmapFile(c.String("idmap-path"))
				if err != nil {
					return err
				}
				if err := m.Header().CheckUpToDate(); err != nil {
					return errors.Wrap(err, "idmap is stale")
				}
				logrus.Infof("%s is up to date", c.String("idmap-path"))
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
