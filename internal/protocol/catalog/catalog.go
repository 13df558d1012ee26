// Package catalog serves the built-in message layouts.
//
// The registry and codec are built once on first use and shared read-only
// by every caller.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/danmuck/gridwire/internal/protocol/template"
)

//go:embed message_template.msg
var source string

// Source returns the embedded template text.
func Source() string {
	return source
}

var load = sync.OnceValues(func() (*template.Template, error) {
	t, err := template.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return t, nil
})

var registry = sync.OnceValues(func() (*protocol.Registry, error) {
	t, err := load()
	if err != nil {
		return nil, err
	}
	return t.Registry()
})

// Template returns the parsed embedded template.
func Template() (*template.Template, error) {
	return load()
}

// Registry returns the process-wide registry of built-in messages.
func Registry() (*protocol.Registry, error) {
	return registry()
}

// Codec returns a codec over the built-in registry with the given limits.
func Codec(limits protocol.Limits) (*protocol.Codec, error) {
	r, err := Registry()
	if err != nil {
		return nil, err
	}
	return protocol.NewCodec(r, limits), nil
}

// MustRegistry panics if the embedded template does not load.
func MustRegistry() *protocol.Registry {
	r, err := Registry()
	if err != nil {
		panic(err)
	}
	return r
}

// Names returns every built-in message name in wire order.
func Names() []string {
	descs := MustRegistry().List()
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

// Open loads a registry from an external template, falling back to the
// embedded one when path is empty.
func Open(readFile func(string) ([]byte, error), path string) (*protocol.Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Registry()
	}
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	t, err := template.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return t.Registry()
}
