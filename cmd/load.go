package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/parser"
)

// loadFlags are the CSV loading options shared by dataset commands.
type loadFlags struct {
	delimiter string
	decimal   string
	thousands string
	maxRows   int
	threshold float64
}

func (f *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	cmd.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	cmd.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum rows to load (0 = config value)")
	cmd.Flags().Float64Var(&f.threshold, "date-threshold", 0, "fraction of values that must parse as dates (0 = config value)")
}

func (f *loadFlags) options() (analysis.Options, error) {
	opt := analysisOptions()
	if f.maxRows > 0 {
		opt.MaxRows = f.maxRows
	}
	if f.threshold != 0 {
		if f.threshold < 0 || f.threshold > 1 {
			return opt, fmt.Errorf("invalid --date-threshold: %v (use a value in (0,1])", f.threshold)
		}
		opt.DateThreshold = f.threshold
	}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(f.thousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	return opt, nil
}

// load parses and classifies the dataset at path.
func (f *loadFlags) load(path string) (*analysis.Table, analysis.ColumnKinds, error) {
	opt, err := f.options()
	if err != nil {
		return nil, nil, err
	}
	t, err := parser.ParseFile(path, opt)
	if err != nil {
		return nil, nil, err
	}
	kinds := analysis.Classify(t, opt)
	logger.Debug("dataset loaded", "file", path, "rows", t.Rows(), "cols", t.Cols())
	return t, kinds, nil
}
