package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Parser turns an uploaded file into a typed table.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte, name string, opt analysis.Options) (*analysis.Table, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

func init() {
	Register(csvParser{})
}

// ErrUnsupported indicates a file type no parser accepts.
var ErrUnsupported = errors.New("unsupported file type")

// ParseError reports why a file could not be loaded.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse selects a parser by filename and loads raw into a table named after
// the file. Columns are typed but not yet classified.
func Parse(raw []byte, filename string, opt analysis.Options) (*analysis.Table, error) {
	for _, p := range registry {
		if p.CanParse(filename) {
			t, err := p.Parse(raw, filepath.Base(filename), opt)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					return nil, err
				}
				return nil, &ParseError{File: filename, Err: err}
			}
			return t, nil
		}
	}
	return nil, &ParseError{File: filename, Err: ErrUnsupported}
}

// ParseFile reads path from disk and parses it.
func ParseFile(path string, opt analysis.Options) (*analysis.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data, path, opt)
}
