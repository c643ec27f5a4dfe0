// Package export writes crawl results to CSV, JSON or SQLite.
package export

import (
	"strings"

	"github.com/use-agent/listcrawl/crawl"
)

// BrandColumn is the leading column derived from the title.
const BrandColumn = "brand"

// SplitBrand returns the first whitespace-delimited token of title and the
// remaining words joined by single spaces.
func SplitBrand(title string) (brand, rest string) {
	words := strings.Fields(title)
	if len(words) == 0 {
		return "", ""
	}
	return words[0], strings.Join(words[1:], " ")
}

// Table is the tabular form of a result set.
type Table struct {
	Columns []string
	Rows    [][]crawl.Value
}

// BuildTable lays records out as rows. The brand column comes first, the
// title field is replaced by the title minus its brand, and the remaining
// columns are the union of record keys in first-seen order. Missing cells
// are null.
func BuildTable(records []*crawl.Record, titleField string) *Table {
	if titleField == "" {
		titleField = crawl.DefaultIdentityField
	}

	t := &Table{Columns: []string{BrandColumn}}
	index := map[string]int{BrandColumn: 0}
	for _, r := range records {
		for _, k := range r.Keys() {
			if _, ok := index[k]; ok {
				continue
			}
			index[k] = len(t.Columns)
			t.Columns = append(t.Columns, k)
		}
	}

	for _, r := range records {
		row := make([]crawl.Value, len(t.Columns))
		for _, k := range r.Keys() {
			if k == BrandColumn {
				continue
			}
			v, _ := r.Get(k)
			row[index[k]] = v
		}
		brand, rest := SplitBrand(r.Text(titleField))
		row[0] = crawl.StringValue(brand)
		if i, ok := index[titleField]; ok {
			row[i] = crawl.StringValue(rest)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
