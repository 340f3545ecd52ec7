// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"database/sql/driver"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"datatwin/cli/internal/model"
)

// normalizeValue converts a driver value into something that marshals to JSON
// and prints readably in a prompt. textBytes is set for database/sql drivers,
// which return text columns as []byte.
func normalizeValue(v any, textBytes bool) any {
	switch val := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		if textBytes && utf8.Valid(val) {
			return string(val)
		}
		if len(val) == 16 {
			return uuid.UUID(val).String()
		}
		return fmt.Sprintf("\\x%x", val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return normalizeValue(inner, textBytes)
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

// collector keeps the head of a result and counts the rest.
type collector struct {
	columns []string
	rows    [][]any
	total   int
}

func (c *collector) add(row []any) {
	c.total++
	if len(c.rows) < model.FullResultLimit {
		c.rows = append(c.rows, row)
	}
}

// result applies the sampling rule to what was collected.
func (c *collector) result() *model.ResultSet {
	if c.total <= model.FullResultLimit {
		return model.NewResultSet(c.columns, c.rows)
	}
	rs := model.NewResultSet(c.columns, c.rows[:model.TruncatedSampleSize])
	rs.TotalRows = c.total
	rs.Truncated = true
	return rs
}
