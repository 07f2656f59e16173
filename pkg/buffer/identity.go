/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package buffer

import "unsafe"

// storagePointer returns the address of a byte slice's backing array,
// used only to let tests assert that two chains alias the same storage
// without copying (spec property: zero-copy SET/GET).
func storagePointer(b []byte) unsafe.Pointer {
	if len(b) == 0 && cap(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}
