package domain

import "errors"

var (
	// ErrRemoteUnavailable covers network, quota, permission and backend
	// availability failures on the remote path.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrNotFound reports that the target document does not exist remotely.
	ErrNotFound = errors.New("task not found")
	// ErrAuthUnavailable reports that no scope token could be resolved.
	ErrAuthUnavailable = errors.New("identity unavailable")
	// ErrInvalidTask rejects input before any store is called.
	ErrInvalidTask = errors.New("invalid task")
	// ErrCacheCorrupt marks an undecodable cache blob. It never leaves the cache.
	ErrCacheCorrupt = errors.New("cache corrupt")
)

// IsConnectivity reports whether err should be treated as "remote not usable right now".
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrAuthUnavailable)
}
