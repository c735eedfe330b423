package ratetable

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// Format is a supported import file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json", ".csv" or a file name such as "rates-2024.csv".
func ParseFormat(s string) (Format, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(f); ext != "" {
		f = ext
	}
	switch strings.TrimPrefix(f, ".") {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", generic.Invalid("format", "unsupported file format %q, expected json or csv", s)
}

// csvRow is the single data row of a rate table CSV file.
type csvRow struct {
	Version       string `csv:"version"`
	EffectiveDate string `csv:"effectiveDate"`
	ExpiryDate    string `csv:"expiryDate"`
	LaborRate     string `csv:"laborRate"`
	HealthRate    string `csv:"healthRate"`
}

// Parse decodes content into a RateTable tagged with SourceFile.
func Parse(content []byte, format Format) (RateTable, error) {
	var (
		rt  RateTable
		err error
	)
	switch format {
	case FormatJSON:
		rt, err = parseJSON(content)
	case FormatCSV:
		rt, err = parseCSV(content)
	default:
		return RateTable{}, generic.Invalid("format", "unsupported file format %q", format)
	}
	if err != nil {
		return RateTable{}, err
	}
	rt.ID = ""
	rt.Source = SourceFile
	return rt, nil
}

func parseJSON(content []byte) (RateTable, error) {
	var rt RateTable
	dec := json.NewDecoder(bytes.NewReader(content))
	if err := dec.Decode(&rt); err != nil {
		return RateTable{}, generic.Invalid("file", "malformed JSON rate table: %v", err)
	}
	return rt, nil
}

func parseCSV(content []byte) (RateTable, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	var rows []*csvRow
	if err := gocsv.UnmarshalBytes(content, &rows); err != nil {
		return RateTable{}, generic.Invalid("file", "malformed CSV rate table: %v", err)
	}
	if len(rows) != 1 {
		return RateTable{}, generic.Invalid("file", "CSV rate table needs a header and exactly one data row, got %d rows", len(rows))
	}
	row := rows[0]

	effective, err := generic.ParseDate(row.EffectiveDate)
	if err != nil {
		return RateTable{}, generic.Invalid("effectiveDate", "%v", err)
	}
	var expiry *generic.TimePoint
	if s := strings.TrimSpace(row.ExpiryDate); s != "" {
		tp, err := generic.ParseDate(s)
		if err != nil {
			return RateTable{}, generic.Invalid("expiryDate", "%v", err)
		}
		expiry = &tp
	}
	labor, err := decimal.NewFromString(strings.TrimSpace(row.LaborRate))
	if err != nil {
		return RateTable{}, generic.Invalid("laborRate", "not a number: %q", row.LaborRate)
	}
	health, err := decimal.NewFromString(strings.TrimSpace(row.HealthRate))
	if err != nil {
		return RateTable{}, generic.Invalid("healthRate", "not a number: %q", row.HealthRate)
	}

	return RateTable{
		Version:             strings.TrimSpace(row.Version),
		EffectiveDate:       effective,
		ExpiryDate:          expiry,
		LaborInsuranceRate:  labor,
		HealthInsuranceRate: health,
	}, nil
}

// ImportFromFile parses a rate table file and creates it.
func (r *Registry) ImportFromFile(ctx context.Context, content []byte, format string, actor generic.Actor) (RateTable, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return RateTable{}, err
	}
	rt, err := Parse(content, f)
	if err != nil {
		return RateTable{}, err
	}
	return r.Create(ctx, rt, actor)
}
