package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/report"
	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

// readFlags are the file-reading flags shared by every command that loads a
// dataset from disk.
type readFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',', ';', 'tab' (default: sniffed)")
	cmd.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for locale numbers: '.'|'comma' (default: strict parsing)")
	cmd.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for locale numbers: ','|'.'|'space'")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum rows to read (default from config)")
	cmd.Flags().StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to read")
	cmd.Flags().IntVar(&f.sheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used when --sheet-name is empty)")
}

// options resolves the flags against configured defaults.
func (f *readFlags) options() (ingest.Options, error) {
	opt := ingest.DefaultOptions()
	if c := settings(); c.MaxRows > 0 {
		opt.MaxRows = c.MaxRows
	}
	if f.maxRows > 0 {
		opt.MaxRows = f.maxRows
	}
	if f.delimiter != "" {
		r, ok := ingest.ParseSeparator(f.delimiter)
		if !ok || (r != ',' && r != ';' && r != '\t') {
			return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
		}
		opt.Delimiter = r
	}
	r, ok := ingest.ParseSeparator(f.decimal)
	if !ok || (r != 0 && r != '.' && r != ',') {
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	opt.DecimalSeparator = r
	r, ok = ingest.ParseSeparator(f.thousands)
	if !ok || (r != 0 && r != ',' && r != '.' && r != ' ') {
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	opt.ThousandsSeparator = r
	if opt.DecimalSeparator != 0 && opt.DecimalSeparator == opt.ThousandsSeparator {
		return opt, fmt.Errorf("--decimal and --thousands must differ")
	}
	opt.SheetName = strings.TrimSpace(f.sheetName)
	if f.sheetIndex > 0 {
		opt.SheetIndex = f.sheetIndex
	}
	return opt, nil
}

// formatExt maps an output format to its file extension.
var formatExt = map[string]string{
	"markdown": "md",
	"json":     "json",
	"yaml":     "yaml",
	"html":     "html",
}

func checkFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "md" {
		f = "markdown"
	}
	if _, ok := formatExt[f]; !ok {
		return "", fmt.Errorf("unsupported --format: %s (use markdown|json|yaml|html)", format)
	}
	return f, nil
}

// render serializes a report in the given (already checked) format.
func render(rep *report.Report, format string) ([]byte, error) {
	switch format {
	case "json":
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case "yaml":
		b, err := yaml.Marshal(rep)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml: %w", err)
		}
		return b, nil
	case "html":
		return rep.HTML(), nil
	default:
		return []byte(rep.Markdown()), nil
	}
}
