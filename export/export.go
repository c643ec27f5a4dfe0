package export

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/models"
)

// Output formats.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// TableName is the SQLite table records are written to.
const TableName = "records"

// FormatFor picks the output format from the file extension. Unknown
// extensions fall back to CSV.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatCSV
	}
}

// Save writes records to path in the format implied by its extension,
// replacing any existing file.
func Save(path string, records []*crawl.Record, titleField string) error {
	t := BuildTable(records, titleField)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewCrawlError(models.ErrCodeExport, "create output directory", err)
		}
	}

	if FormatFor(path) == FormatSQLite {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return models.NewCrawlError(models.ErrCodeExport, "replace output file", err)
		}
		if err := WriteSQLite(path, t); err != nil {
			return models.NewCrawlError(models.ErrCodeExport, "write sqlite", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return models.NewCrawlError(models.ErrCodeExport, "create output file", err)
	}
	if err := Write(f, FormatFor(path), t); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return models.NewCrawlError(models.ErrCodeExport, "close output file", err)
	}
	return nil
}

// Write renders t to w as CSV or JSON.
func Write(w io.Writer, format string, t *Table) error {
	var err error
	switch format {
	case FormatCSV, "":
		err = WriteCSV(w, t)
	case FormatJSON:
		err = WriteJSON(w, t)
	default:
		return models.NewCrawlError(models.ErrCodeInvalidInput, fmt.Sprintf("unsupported export format %q", format), nil)
	}
	if err != nil {
		return models.NewCrawlError(models.ErrCodeExport, "write "+format, err)
	}
	return nil
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	line := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			line[i] = v.Text()
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes an array of objects with keys in column order. Null
// cells are omitted.
func WriteJSON(w io.Writer, t *Table) error {
	out := make([]*crawl.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := crawl.NewRecord()
		for i, v := range row {
			if v.Kind() == crawl.KindNull {
				continue
			}
			r.Set(t.Columns[i], v)
		}
		out = append(out, r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteSQLite creates the records table at path and inserts every row in
// one transaction. All columns are TEXT; null cells stay NULL.
func WriteSQLite(path string, t *Table) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s TEXT)", quoteIdent(TableName), strings.Join(cols, " TEXT, "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(TableName), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			if v.Kind() == crawl.KindNull {
				args[i] = nil
			} else {
				args[i] = v.Text()
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
