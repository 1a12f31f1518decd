// Package metadata resolves a product's opaque metadata reference into the
// display attributes shown to subscribers. The billing engine never
// interprets references itself.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnresolvable means the reference could not be fetched or decoded.
var ErrUnresolvable = errors.New("pullpay: metadata unresolvable")

// Metadata is the off-ledger description of a product.
type Metadata struct {
	Icon        string `json:"icon"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Webhook     string `json:"webhook,omitempty"`
}

// Resolver fetches metadata for a reference.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*Metadata, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (*Metadata, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, ref string) (*Metadata, error) {
	return f(ctx, ref)
}

// Decode parses a metadata document. A document without a label is rejected.
func Decode(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnresolvable, err)
	}
	if strings.TrimSpace(md.Label) == "" {
		return nil, fmt.Errorf("%w: missing label", ErrUnresolvable)
	}
	return &md, nil
}

// Mux dispatches references to resolvers by URI scheme.
type Mux struct {
	resolvers map[string]Resolver
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{resolvers: make(map[string]Resolver)}
}

// Handle registers r for scheme (e.g. "ipfs", "https", "s3").
func (m *Mux) Handle(scheme string, r Resolver) *Mux {
	m.resolvers[strings.ToLower(scheme)] = r
	return m
}

// Resolve implements Resolver.
func (m *Mux) Resolve(ctx context.Context, ref string) (*Metadata, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q is not a URI", ErrUnresolvable, ref)
	}
	r, ok := m.resolvers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: no resolver for scheme %q", ErrUnresolvable, u.Scheme)
	}
	return r.Resolve(ctx, ref)
}
