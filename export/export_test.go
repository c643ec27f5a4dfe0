package export

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/models"
)

func mustRecords(t *testing.T, payload string) []*crawl.Record {
	t.Helper()
	recs, err := crawl.ParseCandidates([]byte(payload))
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	return recs
}

func TestSplitBrand(t *testing.T) {
	tests := []struct {
		title, brand, rest string
	}{
		{"Mercator Ikuu Pendant Light", "Mercator", "Ikuu Pendant Light"},
		{"Arlec", "Arlec", ""},
		{"  Brilliant   LED  Oyster ", "Brilliant", "LED Oyster"},
		{"", "", ""},
	}
	for _, tt := range tests {
		brand, rest := SplitBrand(tt.title)
		if brand != tt.brand || rest != tt.rest {
			t.Errorf("SplitBrand(%q) = %q, %q; want %q, %q", tt.title, brand, rest, tt.brand, tt.rest)
		}
	}
}

func TestBuildTable(t *testing.T) {
	recs := mustRecords(t, `[
		{"title":"Mercator Ikuu Pendant","price":"$49","reviews":12},
		{"title":"Arlec Oyster","price":"$19","reviews":3,"error":true,"colour":"white"}
	]`)

	tbl := BuildTable(recs, "")
	wantCols := []string{"brand", "title", "price", "reviews", "error", "colour"}
	if !reflect.DeepEqual(tbl.Columns, wantCols) {
		t.Fatalf("columns = %v, want %v", tbl.Columns, wantCols)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d", len(tbl.Rows))
	}
	if got := tbl.Rows[0][0].Text(); got != "Mercator" {
		t.Errorf("brand = %q", got)
	}
	if got := tbl.Rows[0][1].Text(); got != "Ikuu Pendant" {
		t.Errorf("title = %q", got)
	}
	if tbl.Rows[0][5].Kind() != crawl.KindNull {
		t.Error("missing cell should be null")
	}
	if got := tbl.Rows[1][4].Text(); got != "true" {
		t.Errorf("error cell = %q", got)
	}

	// Source records are untouched.
	if recs[0].Text("title") != "Mercator Ikuu Pendant" {
		t.Error("BuildTable mutated its input")
	}
}

func TestWriteCSV(t *testing.T) {
	recs := mustRecords(t, `[{"title":"Mercator Ikuu, Pendant","price":"$49","reviews":12}]`)
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, BuildTable(recs, "title")); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [][]string{
		{"brand", "title", "price", "reviews"},
		{"Mercator", "Ikuu, Pendant", "$49", "12"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestWriteJSON(t *testing.T) {
	recs := mustRecords(t, `[{"title":"Arlec Oyster","reviews":3},{"title":"HPM Batten","price":"$9"}]`)
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, BuildTable(recs, "title")); err != nil {
		t.Fatal(err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0]["brand"] != "Arlec" || got[0]["reviews"] != float64(3) {
		t.Errorf("got %v", got)
	}
	if _, ok := got[0]["price"]; ok {
		t.Error("null cells should be omitted")
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "xlsx", &Table{})
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeInvalidInput {
		t.Errorf("err = %v", err)
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]string{
		"complete_lights.csv": FormatCSV,
		"out/lights.JSON":     FormatJSON,
		"lights.db":           FormatSQLite,
		"lights.sqlite":       FormatSQLite,
		"lights":              FormatCSV,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSave_CSVReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "complete_lights.csv")
	first := mustRecords(t, `[{"title":"A one"},{"title":"B two"}]`)
	second := mustRecords(t, `[{"title":"C three"}]`)

	if err := Save(path, first, "title"); err != nil {
		t.Fatal(err)
	}
	if err := Save(path, second, "title"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "brand,title\nC,three\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestSave_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.db")
	recs := mustRecords(t, `[
		{"title":"Mercator Ikuu Pendant","price":"$49","reviews":12},
		{"title":"Arlec Oyster","reviews":3}
	]`)
	if err := Save(path, recs, "title"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A second save replaces the table rather than failing on it.
	if err := Save(path, recs, "title"); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	var brand, title string
	var price sql.NullString
	err = db.QueryRow(`SELECT brand, title, price FROM records WHERE brand = 'Arlec'`).Scan(&brand, &title, &price)
	if err != nil {
		t.Fatal(err)
	}
	if title != "Oyster" || price.Valid {
		t.Errorf("row = %q %q %v", brand, title, price)
	}
}

func TestSave_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := Save(filepath.Join(blocker, "out.csv"), nil, "")
	if models.CodeOf(err) != models.ErrCodeExport {
		t.Errorf("err = %v, want export failure", err)
	}
}
