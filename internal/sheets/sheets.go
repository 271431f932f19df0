// Package sheets reads tabular data from Google Sheets.
//
// The Sheets API returns cell values as [][]interface{}; they are converted to
// strings here so nothing past this package deals with untyped cells.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ReadOnlyScope is the OAuth scope a GoogleReader needs.
const ReadOnlyScope = sheets.SpreadsheetsReadonlyScope

// Row is an ordered sequence of cells.
type Row []string

// Table is an ordered sequence of rows. A read that yields no rows returns an
// empty, non-nil Table.
type Table []Row

// Reader fetches a range of cells. Every call goes to the provider; nothing is
// cached.
type Reader interface {
	ReadTable(ctx context.Context, sheetID, rng string) (Table, error)
}

// GoogleReader reads ranges with the Sheets v4 API.
type GoogleReader struct {
	service *sheets.Service
}

// NewGoogleReader creates a GoogleReader. opts are passed through to the
// underlying Sheets client, allowing credential injection.
func NewGoogleReader(ctx context.Context, opts ...option.ClientOption) (*GoogleReader, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create Sheets client: %w", err)
	}
	return &GoogleReader{service: service}, nil
}

func (r *GoogleReader) ReadTable(ctx context.Context, sheetID, rng string) (Table, error) {
	resp, err := r.service.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return toTable(resp.Values), nil
}

func toTable(values [][]interface{}) Table {
	table := make(Table, 0, len(values))
	for _, cells := range values {
		row := make(Row, 0, len(cells))
		for _, cell := range cells {
			row = append(row, fmt.Sprint(cell))
		}
		table = append(table, row)
	}
	return table
}
