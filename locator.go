package qpipe

import (
	"errors"
	"os"
	"runtime"
)

const (
	// EnvServicePath overrides the native service component location.
	EnvServicePath = "QPIPE_SERVICE_PATH"

	defaultServiceDir = "/qpipe/service/"
)

var (
	// ErrUnsupportedPlatform when no native service component path is known for the current os
	ErrUnsupportedPlatform = errors.New("unsupported os")
)

// Locator resolves the on-disk location of the native service component
// that backs a HandleProvider. Loading the component is the integrator's
// business, the core only resolves a validated path.
type Locator interface {
	ServicePath() (string, error)
}

// NewLocator returns the default Locator: the EnvServicePath variable wins,
// otherwise a fixed per-OS default path.
func NewLocator() Locator {
	return osLocator{getenv: os.Getenv, goos: runtime.GOOS}
}

type osLocator struct {
	getenv func(string) string
	goos   string
}

func (lo osLocator) ServicePath() (string, error) {
	if path := lo.getenv(EnvServicePath); path != "" {
		return path, nil
	}

	switch lo.goos {
	case "linux":
		return defaultServiceDir + "libqpipe_service.so", nil
	case "darwin":
		return defaultServiceDir + "libqpipe_service.dylib", nil
	}
	return "", ErrUnsupportedPlatform
}
