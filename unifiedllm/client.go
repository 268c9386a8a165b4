package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultTemperature is used by Chat when no temperature option is given.
const DefaultTemperature = 0.7

// Handler performs one completion.
type Handler func(ctx context.Context, req Request) (*Response, error)

// Middleware wraps every completion. Middleware registered first sees the
// request first.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes requests to registered provider adapters through the
// middleware chain. It holds no conversation state.
type Client struct {
	mu              sync.RWMutex
	providers       map[string]ProviderAdapter
	defaultProvider string
	defaultModel    string
	middleware      []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) { c.providers[name] = adapter }
}

// WithDefaultProvider names the adapter used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.defaultProvider = name }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) { c.defaultModel = model }
}

// WithMiddleware appends middleware to the chain.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) { c.middleware = append(c.middleware, mw...) }
}

// NewClient creates a Client. With a single registered provider and no
// explicit default, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: map[string]ProviderAdapter{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds or replaces an adapter. The first adapter registered
// on a client without a default becomes the default.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

func (c *Client) adapterFor(provider string) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if provider == "" {
		provider = c.defaultProvider
	}
	if provider == "" {
		return nil, &ConfigurationError{SDKError{Message: "no provider requested and no default provider set"}}
	}
	adapter, ok := c.providers[provider]
	if !ok {
		return nil, &ConfigurationError{SDKError{Message: fmt.Sprintf("provider %q is not registered", provider)}}
	}
	return adapter, nil
}

// Complete fills in provider and model defaults, then sends req through the
// middleware chain to its adapter.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.adapterFor(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	return chain(adapter.Complete, c.middleware)(ctx, req)
}

// chain wraps h so that mws[0] runs outermost.
func chain(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], h
		h = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}
	return h
}

// ChatOption adjusts a single Chat call.
type ChatOption func(*Request)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) ChatOption {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens caps the reply length. Without it the endpoint default applies.
func WithMaxTokens(n int) ChatOption {
	return func(r *Request) {
		if n > 0 {
			r.MaxTokens = &n
		}
	}
}

// WithModel overrides the model for one call.
func WithModel(model string) ChatOption {
	return func(r *Request) { r.Model = model }
}

// Chat sends messages and returns the reply text. Temperature defaults to
// DefaultTemperature. Failures are returned as-is; install RetryMiddleware
// to retry them.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	t := DefaultTemperature
	req := Request{Messages: messages, Temperature: &t}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Close closes every adapter that holds resources and reports all failures.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for name, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
