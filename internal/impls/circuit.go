package impls

import "context"

// CircuitProcess owns the lifecycle of the anonymizing daemon.
type CircuitProcess interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// CircuitRotator asks the running daemon for a fresh circuit.
type CircuitRotator interface {
	Rotate(ctx context.Context) error
}

// ExitProbe reports the address the outside world currently sees.
type ExitProbe interface {
	ExitIP(ctx context.Context) (string, error)
}
