package convert

import (
	"strings"
	"sync"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// Registry holds converters in declaration order; the first one whose
// CanHandle returns true wins (spec §4.4 tie-break rule).
type Registry struct {
	mu         sync.RWMutex
	converters []Converter
}

// NewRegistry returns a registry populated with the engine's two
// built-in converters, in the order spec §4.5 lists them: Markdown
// passthrough first, plain-text shell as the catch-all.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewMarkdownConverter())
	r.Register(NewPlainTextConverter())
	return r
}

// Register appends a converter, making it lower-priority than every
// converter already registered.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters = append(r.converters, c)
}

// Select returns the first registered converter able to handle
// (mime, ext), in declaration order.
func (r *Registry) Select(mime, ext string) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	for _, c := range r.converters {
		if c.CanHandle(mime, ext) {
			return c, nil
		}
	}
	return nil, kerrors.New(kerrors.KindIngestError, "no converter handles mime=%q ext=%q", mime, ext)
}

// Convert selects a converter for input and runs it.
func (r *Registry) Convert(input Input) (*Result, error) {
	c, err := r.Select(input.Mime, input.Ext)
	if err != nil {
		return nil, err
	}
	result, err := c.Convert(input)
	if err != nil {
		return nil, err
	}
	return result, nil
}
