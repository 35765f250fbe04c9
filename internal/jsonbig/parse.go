// Package jsonbig decodes JSON strictly while keeping integers that do not fit
// in a float64 exact.
package jsonbig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// MaxSafeInteger is the largest integer a float64 holds without rounding.
const MaxSafeInteger = 1<<53 - 1

// MaxDepth bounds how deeply arrays and objects may nest.
const MaxDepth = 10000

var (
	ErrEmpty        = errors.New("unexpected end of JSON input")
	ErrTrailingData = errors.New("unexpected data after top-level value")
	ErrTooDeep      = errors.New("exceeded max nesting depth")
)

// DuplicateKeyError is returned when an object repeats a key.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q", e.Key)
}

// NumberError is returned for a numeric literal that overflows a float64.
type NumberError struct {
	Literal string
}

func (e *NumberError) Error() string {
	return fmt.Sprintf("bad number %s", e.Literal)
}

// Parse decodes exactly one JSON value from data.
//
// The result is nil, bool, string, int64, float64, *big.Int, []any or Object.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	p := &parser{dec: dec}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}

	v, err := p.value(tok)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, err
		}
		return nil, ErrTrailingData
	}

	return v, nil
}

type parser struct {
	dec   *json.Decoder
	depth int
}

func (p *parser) value(tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return p.object()
		case '[':
			return p.array()
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		return parseNumber(string(t))
	case string, bool, nil:
		return t, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func (p *parser) next() (any, error) {
	tok, err := p.dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	return p.value(tok)
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return ErrTooDeep
	}
	return nil
}

func (p *parser) object() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	obj := Object{}
	seen := make(map[string]struct{})
	for p.dec.More() {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", tok)
		}
		if _, dup := seen[key]; dup {
			return nil, &DuplicateKeyError{Key: key}
		}
		seen[key] = struct{}{}

		v, err := p.next()
		if err != nil {
			return nil, err
		}
		obj = append(obj, Member{Key: key, Value: v})
	}
	if err := p.closing('}'); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *parser) array() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	arr := []any{}
	for p.dec.More() {
		v, err := p.next()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if err := p.closing(']'); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *parser) closing(want json.Delim) error {
	tok, err := p.dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func parseNumber(lit string) (any, error) {
	if strings.ContainsAny(lit, ".eE") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, &NumberError{Literal: lit}
		}
		return f, nil
	}

	if lit == "-0" {
		return math.Copysign(0, -1), nil
	}

	if n, err := strconv.ParseInt(lit, 10, 64); err == nil && n >= -MaxSafeInteger && n <= MaxSafeInteger {
		return n, nil
	}

	n, ok := new(big.Int).SetString(lit, 10)
	if !ok {
		return nil, &NumberError{Literal: lit}
	}
	return n, nil
}
