// Package sheet reads domains from and writes resolved addresses to xlsx workbooks.
package sheet

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"
	"github.com/xuri/excelize/v2"
)

// ResultColumn is the 1-based column where address columns start (O).
const ResultColumn = 15

// HeaderPrefix names the address columns: resolved_address_1, resolved_address_2, ...
const HeaderPrefix = "resolved_address_"

// OutputPath derives the output workbook path from the input path.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_with_ipv6.xlsx"
}

// ReadDomains returns the trimmed, non-empty first-column values of the
// active sheet from row 2 on. Names that are not valid domain names are
// logged and kept so positions stay stable.
func ReadDomains(path string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: open %s: %w", path, err)
	}
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("sheet: read rows: %w", err)
	}

	domains := make([]string, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		d := strings.TrimSpace(row[0])
		if d == "" {
			continue
		}
		if _, ok := dns.IsDomainName(d); !ok {
			logger.Warn("input row does not look like a domain name", "row", i+1, "value", d)
		}
		domains = append(domains, d)
	}
	return domains, nil
}

// WriteResults copies the input workbook to out, adding one column per
// address starting at ResultColumn. Only rows whose domain appears in
// results are filled.
func WriteResults(in, out string, results map[string][]string) error {
	f, err := excelize.OpenFile(in)
	if err != nil {
		return fmt.Errorf("sheet: open %s: %w", in, err)
	}
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())

	width := 0
	for _, addrs := range results {
		width = max(width, len(addrs))
	}
	for i := 0; i < width; i++ {
		cell, err := excelize.CoordinatesToCellName(ResultColumn+i, 1)
		if err != nil {
			return fmt.Errorf("sheet: header cell: %w", err)
		}
		if err := f.SetCellValue(name, cell, fmt.Sprintf("%s%d", HeaderPrefix, i+1)); err != nil {
			return fmt.Errorf("sheet: write header: %w", err)
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("sheet: read rows: %w", err)
	}
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		addrs, ok := results[strings.TrimSpace(row[0])]
		if !ok {
			continue
		}
		for j, addr := range addrs {
			cell, err := excelize.CoordinatesToCellName(ResultColumn+j, i+1)
			if err != nil {
				return fmt.Errorf("sheet: result cell: %w", err)
			}
			if err := f.SetCellValue(name, cell, addr); err != nil {
				return fmt.Errorf("sheet: write %s: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(out); err != nil {
		return fmt.Errorf("sheet: save %s: %w", out, err)
	}
	return nil
}

// WriteDomains creates a workbook with a header row and one domain per row.
func WriteDomains(path, header string, domains []string) error {
	f := excelize.NewFile()
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetCellValue(name, "A1", header); err != nil {
		return fmt.Errorf("sheet: write header: %w", err)
	}
	for i, d := range domains {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("sheet: domain cell: %w", err)
		}
		if err := f.SetCellValue(name, cell, d); err != nil {
			return fmt.Errorf("sheet: write %s: %w", cell, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("sheet: save %s: %w", path, err)
	}
	return nil
}
