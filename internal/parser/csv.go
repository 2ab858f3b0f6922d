package parser

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// errNotUTF8 is returned for CSV content that is not valid UTF-8.
var errNotUTF8 = errors.New("file is not valid UTF-8 text")

type csvParser struct{}

func (csvParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".csv")
}

func (csvParser) Parse(content []byte, name string, opt analysis.Options) (*analysis.Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return nil, &ParseError{File: name, Err: errNotUTF8}
	}
	t, err := analysis.LoadCSV(bytes.NewReader(content), strings.TrimSuffix(name, ".csv"), opt)
	if err != nil {
		return nil, &ParseError{File: name, Err: err}
	}
	return t, nil
}
