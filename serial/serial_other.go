//go:build !linux

package serial

import "errors"

// Open is only implemented on Linux.
func Open(path string, mode Mode) (*Port, error) {
	return nil, errors.ErrUnsupported
}
