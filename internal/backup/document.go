package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

// Document is the on-disk snapshot format. Every table is an array of rows,
// each row itself a JSON-encoded object stored as a string.
type Document struct {
	ExportDate  ExportDate  `json:"exportDate"`
	Notes       []Row       `json:"notes"`
	Schedules   []Row       `json:"schedules"`
	Routines    []Row       `json:"routines"`
	Expenses    []Row       `json:"expenses"`
	Categories  []Row       `json:"categories"`
	Budgets     []Row       `json:"budgets,omitempty"`
	Preferences Preferences `json:"preferences"`

	// Malformed lists the tables that were present on decode but could not
	// be read as arrays. Their rows are lost; the rest of the document is not.
	Malformed []string `json:"-"`
}

// UnmarshalJSON decodes each table on its own so that one table of the
// wrong shape does not discard the others.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("backup document is empty")
	}

	*d = Document{}
	if v, ok := raw["exportDate"]; ok {
		if err := d.ExportDate.UnmarshalJSON(v); err != nil {
			return err
		}
	}

	tables := []struct {
		name string
		dst  *[]Row
	}{
		{"notes", &d.Notes},
		{"schedules", &d.Schedules},
		{"routines", &d.Routines},
		{"expenses", &d.Expenses},
		{"categories", &d.Categories},
		{"budgets", &d.Budgets},
	}
	for _, t := range tables {
		v, ok := raw[t.name]
		if !ok || isNull(v) {
			continue
		}
		rows, err := decodeRows(v)
		if err != nil {
			d.Malformed = append(d.Malformed, t.name)
			continue
		}
		*t.dst = rows
	}

	if v, ok := raw["preferences"]; ok && !isNull(v) {
		if err := d.Preferences.UnmarshalJSON(v); err != nil {
			d.Malformed = append(d.Malformed, "preferences")
		}
	}
	return nil
}

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// Rows returns the number of table rows in the document.
func (d *Document) Rows() int {
	return len(d.Notes) + len(d.Schedules) + len(d.Routines) + len(d.Expenses) + len(d.Categories) + len(d.Budgets)
}

// Row is one serialized record. On decode, array elements that are plain
// JSON objects are accepted as well as strings. A null element decodes to
// the empty row.
type Row string

// errEmptyRow marks a null, blank or empty-object row.
var errEmptyRow = errors.New("empty row")

func decodeRows(b []byte) ([]Row, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(elems))
	for _, e := range elems {
		e = bytes.TrimSpace(e)
		switch {
		case isNull(e):
			rows = append(rows, "")
		case len(e) > 0 && e[0] == '"':
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				return nil, err
			}
			rows = append(rows, Row(s))
		default:
			rows = append(rows, Row(e))
		}
	}
	return rows, nil
}

func encodeRow(v any) (Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Row(b), nil
}

func (r Row) decode(v any) error {
	b := bytes.TrimSpace([]byte(r))
	if len(b) == 0 || isNull(b) {
		return errEmptyRow
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return errEmptyRow
	}
	return json.Unmarshal(b, v)
}

// ExportDate accepts RFC 3339 strings or epoch milliseconds. Anything else
// decodes to the zero time rather than failing the document.
type ExportDate struct {
	time.Time
}

func (d ExportDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339))
}

func (d *ExportDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			d.Time = t
		}
		return nil
	}
	if ms, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		d.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}

// Preferences is a flat string map. Non-string values are kept in their
// JSON text form and nulls are dropped.
type Preferences map[string]string

func (p *Preferences) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Preferences, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || string(v) == "null":
			continue
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				continue
			}
			out[k] = s
		default:
			out[k] = string(v)
		}
	}
	*p = out
	return nil
}

// routineRow embeds a routine's progress history.
type routineRow struct {
	model.Routine
	Logs []model.RoutineLog `json:"logs,omitempty"`
}

// Result reports the outcome of an import. Merged counts labels that
// matched an existing label and were reused instead of created.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Merged   int            `json:"merged"`
	Tables   map[string]int `json:"tables,omitempty"`
}

func failed(msg string) Result {
	return Result{Success: false, Message: msg}
}
