package sheet

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadDomains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.xlsx")
	if err := WriteDomains(path, "domain", []string{"www.example.cn", "  api.example.cn  ", "", "not a domain!"}); err != nil {
		t.Fatalf("WriteDomains failed: %v", err)
	}

	got, err := ReadDomains(path, nil)
	if err != nil {
		t.Fatalf("ReadDomains failed: %v", err)
	}
	want := []string{"www.example.cn", "api.example.cn", "not a domain!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestReadDomains_Missing(t *testing.T) {
	if _, err := ReadDomains(filepath.Join(t.TempDir(), "none.xlsx"), nil); err == nil {
		t.Fatal("expected error for missing workbook")
	}
}

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "domains.xlsx")
	out := OutputPath(in)
	if err := WriteDomains(in, "domain", []string{"a.example", "b.example", "c.example"}); err != nil {
		t.Fatal(err)
	}

	results := map[string][]string{
		"a.example": {"240e:6b0:ab0:11:1::1086", "240e:6b0:ab0:11:1::1087"},
		"b.example": {},
	}
	if err := WriteResults(in, out, results); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	name := f.GetSheetName(f.GetActiveSheetIndex())

	cells := map[string]string{
		"A1": "domain",
		"O1": "resolved_address_1",
		"P1": "resolved_address_2",
		"O2": "240e:6b0:ab0:11:1::1086",
		"P2": "240e:6b0:ab0:11:1::1087",
		"O3": "",
		"O4": "",
		"A4": "c.example",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue(name, cell)
		if err != nil {
			t.Fatalf("GetCellValue %s: %v", cell, err)
		}
		if got != want {
			t.Errorf("%s: expected %q, got %q", cell, want, got)
		}
	}
}

func TestOutputPath(t *testing.T) {
	if got := OutputPath("/data/domains.xlsx"); got != "/data/domains_with_ipv6.xlsx" {
		t.Errorf("unexpected output path %q", got)
	}
}
