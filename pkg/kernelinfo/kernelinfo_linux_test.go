//go:build linux

/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package kernelinfo

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDetectReturnsARealVersionString(t *testing.T) {
	info, err := Detect()
	assert.NilError(t, err)
	assert.Assert(t, info.Version != "")
}
