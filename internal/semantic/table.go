package semantic

import (
	"strconv"
	"time"
)

// Table names, also used as CSV file stems
const (
	TableFacts      = "flight_facts"
	TableAltitude   = "altitude_dimension"
	TableBay        = "bay_dimension"
	TableResolution = "resolution_dimension"
	TableSpeed      = "speed_dimension"
	TableDistance   = "distance_dimension"
	TableAngle      = "angle_dimension"
)

// TableNames lists every table in output order
var TableNames = []string{TableFacts, TableAltitude, TableBay, TableResolution, TableSpeed, TableDistance, TableAngle}

// Row maps column name to a scalar: string, float64, int, int64, bool,
// time.Time or nil.
type Row map[string]any

// Table is an ordered set of rows with a fixed column order
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

func newTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Record returns row i as strings in column order
func (t *Table) Record(i int) []string {
	out := make([]string, len(t.Columns))
	for c, col := range t.Columns {
		out[c] = FormatValue(t.Rows[i][col])
	}
	return out
}

// Column returns every value of one column
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// FormatValue renders a scalar for CSV output. nil becomes "".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case Provenance:
		return string(x)
	}
	return ""
}

// dimension builds one dimension table keyed by natural value.
// First sight of a key inserts the row; later sights are ignored.
type dimension struct {
	table *Table
	key   string
	seen  map[string]bool
}

func newDimension(t *Table, key string) *dimension {
	return &dimension{table: t, key: key, seen: make(map[string]bool)}
}

func (d *dimension) add(key string, build func() Row) {
	if key == "" || d.seen[key] {
		return
	}
	d.seen[key] = true
	row := build()
	row[d.key] = key
	d.table.Rows = append(d.table.Rows, row)
}
