// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/hpctoolkit/hpcdb"
)

const unknown = "unknown"

var getRevision = sync.OnceValue(func() string {
	rev := unknown

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	var modified bool
	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value
		case "vcs.modified":
			modified = v.Value == "true"
		}
	}
	if modified {
		rev += "-dirty"
	}
	return rev
})

type version struct {
	Release  string
	Revision string
	Go       goInfo
}

func newVersion() version {
	v := version{
		Release:  hpcdb.Version(),
		Revision: getRevision(),
		Go:       newGoInfo(),
	}
	return v
}

func (v version) String() string {
	return fmt.Sprintf("hpcdbcmp %s (revision %s, %s %s/%s)", v.Release, v.Revision, v.Go.Version, v.Go.OS, v.Go.Arch)
}

type goInfo struct {
	Version string
	OS      string
	Arch    string
}

func newGoInfo() goInfo {
	return goInfo{
		Version: runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}
