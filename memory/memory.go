// Package memory implements the agent's two-tier memory: a bounded,
// volatile conversation window and a durable key/value store that survives
// process restarts.
//
// The window is compacted by asking the model for a summary (see
// Window.SummarizationPrompt and Window.ApplySummary). The store writes its
// whole document on every mutation, so a value is durable as soon as Set or
// Delete returns.
package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	DefaultMaxShortTerm     = 20
	DefaultSummaryThreshold = 15
)

// Memory bundles the conversation window with the durable store.
type Memory struct {
	*Window
	store *Store
}

// Option configures a Memory.
type Option func(*options)

type options struct {
	maxShortTerm     int
	summaryThreshold int
	storeFile        string
	logger           *zap.Logger
}

// WithMaxShortTerm sets the window cap.
func WithMaxShortTerm(n int) Option {
	return func(o *options) { o.maxShortTerm = n }
}

// WithSummaryThreshold sets the window length that triggers compaction.
func WithSummaryThreshold(n int) Option {
	return func(o *options) { o.summaryThreshold = n }
}

// WithStoreFile overrides the backing file name. It must be a relative path
// that stays inside the workspace.
func WithStoreFile(name string) Option {
	return func(o *options) { o.storeFile = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates the workspace directory if needed and loads durable state.
func New(workspace string, opts ...Option) (*Memory, error) {
	o := options{
		maxShortTerm:     DefaultMaxShortTerm,
		summaryThreshold: DefaultSummaryThreshold,
		storeFile:        DefaultStoreFile,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(workspace, storeDirMode); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	window, err := NewWindow(o.maxShortTerm, o.summaryThreshold)
	if err != nil {
		return nil, err
	}

	if !filepath.IsLocal(o.storeFile) {
		return nil, fmt.Errorf("memory file %q must be a relative path inside the workspace", o.storeFile)
	}
	store, err := OpenStore(filepath.Join(workspace, o.storeFile), o.logger.Named("store"))
	if err != nil {
		return nil, err
	}

	return &Memory{Window: window, store: store}, nil
}

// Store returns the durable tier.
func (m *Memory) Store() *Store { return m.store }

// Set stores a long-term value.
func (m *Memory) Set(key, value string) error { return m.store.Set(key, value) }

// Get returns a long-term value or def.
func (m *Memory) Get(key, def string) string { return m.store.Get(key, def) }

// Lookup returns a long-term value and whether it exists.
func (m *Memory) Lookup(key string) (string, bool) { return m.store.Lookup(key) }

// Delete removes a long-term value and reports whether it existed.
func (m *Memory) Delete(key string) (bool, error) { return m.store.Delete(key) }

// Keys returns the sorted long-term keys.
func (m *Memory) Keys() []string { return m.store.Keys() }
