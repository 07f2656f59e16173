//go:build linux

/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package kernelinfo probes the running kernel version at startup and
// turns it into feature gates the session server consults, adapted from
// the teacher's pkg/kernel + pkg/linux/init.go version-gated capability
// table (there used to pick the right TCP_INFO struct layout; here used
// to decide whether SO_REUSEPORT listener sharding is available).
package kernelinfo

import (
	"fmt"

	"github.com/docker/docker/pkg/parsers/kernel"
)

// reusePortMinVersion is the kernel version that introduced SO_REUSEPORT
// (3.9), the only capability this server gates on.
var reusePortMinVersion = kernel.VersionInfo{Kernel: 3, Major: 9, Minor: 0}

// Info is the detected kernel capability set relevant to this server.
type Info struct {
	Version           string
	SupportsReusePort bool
}

// Detect probes the running kernel's version and derives feature gates.
// Mirrors pkg/linux/init.go's adaptToKernelVersion, reduced to the one
// capability this server needs.
func Detect() (Info, error) {
	v, err := kernel.GetKernelVersion()
	if err != nil {
		return Info{}, fmt.Errorf("kernelinfo: get kernel version: %w", err)
	}

	return Info{
		Version:           v.String(),
		SupportsReusePort: kernel.CompareKernelVersion(*v, reusePortMinVersion) >= 0,
	}, nil
}
