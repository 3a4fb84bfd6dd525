//go:build !linux

package discover

import "errors"

func systemMemory() (MemInfo, error) {
	return MemInfo{}, errors.ErrUnsupported
}
