package sheets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/taras/graphsheets/internal/store"
)

// notAvailable is what a lookup formula renders when it matches nothing.
const notAvailable = "#N/A"

// parseValue normalizes one cell read back from a sheet. Empty cells and
// #N/A read as null.
func parseValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" || t == notAvailable {
			return nil
		}
		return t
	default:
		return v
	}
}

// zip pairs headers with values. Missing trailing values read as null.
func zip(headers []string, values []any) store.Record {
	rec := make(store.Record, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		var v any
		if i < len(values) {
			v = values[i]
		}
		rec[h] = parseValue(v)
	}
	return rec
}

// align orders a record's values by header. Fields the record lacks become
// empty cells; fields with no column are dropped.
func align(headers []string, rec store.Record) []any {
	row := make([]any, len(headers))
	for i, h := range headers {
		if v, ok := rec[h]; ok && v != nil {
			row[i] = v
		} else {
			row[i] = ""
		}
	}
	return row
}

// tableResponse is the visualization query payload.
type tableResponse struct {
	Status string `json:"status"`
	Errors []struct {
		Reason       string `json:"reason"`
		Message      string `json:"message"`
		DetailedText string `json:"detailed_message"`
	} `json:"errors"`
	Table struct {
		Cols []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
			Type  string `json:"type"`
		} `json:"cols"`
		Rows []struct {
			C []*struct {
				V any    `json:"v"`
				F string `json:"f"`
			} `json:"c"`
		} `json:"rows"`
	} `json:"table"`
}

// decodeTable strips the JavaScript wrapper around a visualization query
// response and converts each row to a record keyed by column label.
func decodeTable(body []byte) ([]store.Record, error) {
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, errors.New("table query response has no JSON payload")
	}
	var resp tableResponse
	if err := json.Unmarshal(body[start:end+1], &resp); err != nil {
		return nil, fmt.Errorf("failed to decode table query response: %w", err)
	}
	if resp.Status == "error" {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("table query failed: %s", strings.Join(msgs, "; "))
	}

	headers := make([]string, len(resp.Table.Cols))
	for i, c := range resp.Table.Cols {
		headers[i] = strings.TrimSpace(c.Label)
	}
	out := make([]store.Record, 0, len(resp.Table.Rows))
	for _, row := range resp.Table.Rows {
		values := make([]any, len(row.C))
		for i, cell := range row.C {
			if cell != nil {
				values[i] = cell.V
			}
		}
		out = append(out, zip(headers, values))
	}
	return out, nil
}

// selectByID builds the query selecting rows whose id column matches any of
// ids. Ids that no query literal can express are left out since no stored id
// contains both quote characters. The boolean is false when nothing is left.
func selectByID(column string, ids []string) (string, bool) {
	where := make([]string, 0, len(ids))
	for _, id := range ids {
		lit, ok := quoteLiteral(id)
		if !ok {
			continue
		}
		where = append(where, column+"="+lit)
	}
	if len(where) == 0 {
		return "", false
	}
	return "SELECT * WHERE " + strings.Join(where, " OR "), true
}

// quoteLiteral quotes a string for the query language, which has no escape
// sequences: a value holding a single quote is wrapped in double quotes.
func quoteLiteral(s string) (string, bool) {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'", true
	case !strings.Contains(s, `"`):
		return `"` + s + `"`, true
	default:
		return "", false
	}
}

// columnName converts a zero-based column index to its A1 letters.
func columnName(i int) string {
	name := ""
	for i++; i > 0; i = (i - 1) / 26 {
		name = string(rune('A'+(i-1)%26)) + name
	}
	return name
}
