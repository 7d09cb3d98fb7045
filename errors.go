package consumer

import (
	"errors"

	"github.com/hugolhafner/go-consumer/offsets"
	"github.com/hugolhafner/go-consumer/route"
)

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

// Configuration and offset errors surface under the root package so callers
// do not need to import the internals that raise them.
type (
	InvalidConfigurationError   = route.InvalidConfigurationError
	InvalidTimeBasedOffsetError = offsets.InvalidTimeBasedOffsetError
)

// InvalidLicenseTokenError reports a license token that could not be decoded.
type InvalidLicenseTokenError struct {
	Reason string
}

func (e InvalidLicenseTokenError) Error() string {
	return "invalid license token: " + e.Reason
}

// ExpiredLicenseTokenError reports a license token past its expiry date.
type ExpiredLicenseTokenError struct {
	ExpiredOn string
}

func (e ExpiredLicenseTokenError) Error() string {
	return "license token expired on " + e.ExpiredOn
}
