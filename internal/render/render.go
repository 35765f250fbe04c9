// Package render turns parsed request bodies into console text.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

type Format string

const (
	// FormatInspect mimics Node's console.log output.
	FormatInspect Format = "inspect"
	// FormatJSON prints indented JSON with big integers kept exact.
	FormatJSON Format = "json"
	// FormatDump prints the Go types behind each value.
	FormatDump Format = "dump"
)

// DefaultDepth is how many levels of nesting inspect shows before
// collapsing to [Object] or [Array].
const DefaultDepth = 2

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatInspect, FormatJSON, FormatDump:
		return f, nil
	case "":
		return FormatInspect, nil
	}
	return "", fmt.Errorf("unknown render format %q", s)
}

type Options struct {
	Format Format
	// Depth limits inspect nesting. Negative means unlimited.
	Depth  int
	Colors bool
}

type Renderer struct {
	opts Options

	mu        sync.Mutex
	inspector *inspector
	dumper    *spew.ConfigState
}

func New(opts Options) (*Renderer, error) {
	if opts.Format == "" {
		opts.Format = FormatInspect
	}
	if _, err := ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	return &Renderer{
		opts:      opts,
		inspector: newInspector(opts.Depth, opts.Colors),
		dumper: &spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		},
	}, nil
}

func (r *Renderer) Format() Format {
	return r.opts.Format
}

// Render returns v as text for the console. It is safe for concurrent use.
func (r *Renderer) Render(v any) string {
	switch r.opts.Format {
	case FormatJSON:
		return renderJSON(v)
	case FormatDump:
		return strings.TrimSuffix(r.dumper.Sdump(v), "\n")
	}

	// The inspector keeps per-call layout state.
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inspector.inspect(v)
}

func renderJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
