package ports

import (
	"context"

	"github.com/mikey/threat-scorer/internal/core"
)

// Analyzer is the end-to-end scoring path the outer surfaces depend on
type Analyzer interface {
	// Process scores a raw message and records it in the history
	Process(ctx context.Context, raw []byte) (*core.Analysis, error)
}

// EmailFilter defines the interface for email filtering
type EmailFilter interface {
	// ProcessMessage analyzes one raw message and returns the result
	ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}

// ActionRecorder counts what a filter did with each message
type ActionRecorder interface {
	FilterAction(action string)
}
