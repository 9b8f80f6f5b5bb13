package source

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// decodeValues turns a Sheets "values" response into a table. A response
// without "values" is an empty range, not an error.
func decodeValues(body []byte) (sheet.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	values := gjson.GetBytes(body, "values")
	if !values.Exists() {
		return sheet.Table{}, nil
	}
	if !values.IsArray() {
		return nil, fmt.Errorf("values is %s, want an array", values.Type)
	}

	var (
		table sheet.Table
		err   error
	)
	values.ForEach(func(_, row gjson.Result) bool {
		if !row.IsArray() {
			err = fmt.Errorf("row %d is %s, want an array", len(table), row.Type)
			return false
		}
		cells := make([]string, 0, len(row.Array()))
		row.ForEach(func(_, cell gjson.Result) bool {
			cells = append(cells, cell.String())
			return true
		})
		table = append(table, cells)
		return true
	})
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = sheet.Table{}
	}
	return table, nil
}

// apiErrorMessage extracts the message of a Google API error body.
func apiErrorMessage(body []byte) string {
	return gjson.GetBytes(body, "error.message").String()
}
