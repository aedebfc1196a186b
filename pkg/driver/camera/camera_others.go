//go:build !linux

package camera

import "github.com/pion/dcamera/pkg/driver"

// Discover is a no-op, v4l2 is only available on Linux.
func Discover(*driver.Manager) {}
