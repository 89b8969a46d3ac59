// Package backend builds the receipt source selected by configuration.
package backend

import (
	"context"
	"time"

	"kvitto/internal/source"
)

// SourceResult contains the source instance and the backend that built it
type SourceResult struct {
	Source  source.Source
	Backend BackendType
}

// Factory creates receipt sources based on configuration
type Factory interface {
	CreateSource(ctx context.Context, config Config) (*SourceResult, error)
}

// Config holds configuration for source creation
type Config struct {
	Type BackendType

	// Remote API
	BaseURL           string
	Token             string
	ActorKey          string
	RequestsPerSecond float64
	RequestTimeout    time.Duration

	// Memory backend fixture directory
	SeedDir string
}

// BackendType represents the type of backend
type BackendType string

const (
	KivraBackend  BackendType = "kivra"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case KivraBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
