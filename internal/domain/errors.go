package domain

import "errors"

// Domain errors represent business-level errors that can occur during a bootstrap run.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Disk errors
	ErrDeviceNotFound = errors.New("block device not found")
	ErrNotBlockDevice = errors.New("path is not a block device")
	ErrProbeFailed    = errors.New("failed to probe device for a filesystem signature")
	ErrFormatFailed   = errors.New("failed to format device")
	ErrMountFailed    = errors.New("failed to apply mount records")

	// Image errors
	ErrImagePullFailed    = errors.New("failed to pull image")
	ErrInvalidImageFormat = errors.New("invalid image format")

	// Registry errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrCredentialsNotSet = errors.New("registry credentials not set")

	// Network errors
	ErrNetworkExists  = errors.New("network already exists")
	ErrEngineNotReady = errors.New("container engine not ready")

	// Supervisor errors
	ErrUnitRegistration = errors.New("failed to register unit")
	ErrUnitNotFound     = errors.New("unit not found")
	ErrUnitStartFailed  = errors.New("unit start job did not complete")
	ErrDependencyCycle  = errors.New("service dependency cycle")
	ErrUnknownService   = errors.New("unknown service dependency")

	// Config errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrConfigLoadFailed = errors.New("failed to load configuration")
	ErrRenderFailed     = errors.New("failed to render configuration")
)
