// File: internal/pipeline/input.go
package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// keyColumnNames are the accepted spellings of the lot-key column,
// compared case-insensitively. The input files come from several hands and
// the header is never spelled the same way twice.
var keyColumnNames = []string{
	"SOURCELOT", "SOURCE LOT", "SOURCE_LOT", "SOURCELOTS", "SOURCE LOTS", "LOT",
}

// ReadItems parses the run input: a tabular file with a lot-key column and
// optional part-type, quantity and per-unit columns. Rows with an empty
// key are skipped, matching the original operator workflow where blank
// rows in hand-edited sheets are routine.
func ReadItems(path string) ([]*WorkflowItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing input %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("input %s is empty", path)
	}

	header := records[0]
	keyCol := -1
	partCol, qtyCol, unitsCol := -1, -1, -1
	for i, col := range header {
		name := strings.ToUpper(strings.TrimSpace(col))
		switch {
		case keyCol < 0 && isKeyColumn(name):
			keyCol = i
		case name == "PARTTYPE" || name == "PART TYPE" || name == "PART_TYPE":
			partCol = i
		case name == "QUANTITY" || name == "QTY" || name == "UNITS COUNT":
			qtyCol = i
		case name == "UNITS" || name == "UNIT IDS":
			unitsCol = i
		}
	}
	if keyCol < 0 {
		return nil, fmt.Errorf("no lot-key column found in %s; header: %v", path, header)
	}

	var items []*WorkflowItem
	for _, record := range records[1:] {
		if keyCol >= len(record) {
			continue
		}
		key := strings.TrimSpace(record[keyCol])
		if key == "" {
			continue
		}
		item := &WorkflowItem{Key: key}
		if partCol >= 0 && partCol < len(record) {
			item.PartType = strings.TrimSpace(record[partCol])
		}
		if qtyCol >= 0 && qtyCol < len(record) {
			if q, err := strconv.Atoi(strings.TrimSpace(record[qtyCol])); err == nil {
				item.Quantity = q
			}
		}
		if unitsCol >= 0 && unitsCol < len(record) {
			for _, u := range strings.Split(record[unitsCol], ";") {
				if u = strings.TrimSpace(u); u != "" {
					item.ExpectedUnits = append(item.ExpectedUnits, u)
				}
			}
		}
		if item.Quantity == 0 {
			item.Quantity = len(item.ExpectedUnits)
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("input %s contains no usable rows", path)
	}
	return items, nil
}

func isKeyColumn(name string) bool {
	for _, k := range keyColumnNames {
		if name == k {
			return true
		}
	}
	return false
}
