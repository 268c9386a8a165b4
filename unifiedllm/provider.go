package unifiedllm

import "context"

// ProviderAdapter talks to one model backend. Adapters translate Request
// into the backend's wire format and map its failures onto this package's
// error types.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold connections or other
// resources; Client.Close calls it.
type Closer interface {
	Close() error
}
