// Package sheets stores records and the edge index in a Google spreadsheet:
// one sheet per object type with a header row of field names, plus the
// RELATIONSHIPS sheet holding one edge per row.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultQueryBase serves visualization queries against a spreadsheet.
const DefaultQueryBase = "https://docs.google.com/spreadsheets/d"

const spreadsheetFields = "spreadsheetId,properties.title,sheets.properties(sheetId,title,index,hidden)"

// client wraps the Sheets service. Visualization queries have no SDK
// binding and go through the authorized HTTP client directly.
type client struct {
	svc       *sheetsapi.Service
	http      *http.Client
	queryBase string
	limiter   *rate.Limiter
}

func (c *client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// get fetches sheet titles.
func (c *client) get(ctx context.Context, spreadsheetID string) (*sheetsapi.Spreadsheet, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.svc.Spreadsheets.Get(spreadsheetID).
		Fields(spreadsheetFields).
		Context(ctx).
		Do()
}

// values reads a range in formatted form.
func (c *client) values(ctx context.Context, spreadsheetID, a1 string) ([][]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, a1).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// append inserts rows after the last row of the sheet's table and returns
// the rows as the sheet rendered them.
func (c *client) append(ctx context.Context, spreadsheetID, sheet string, rows [][]any) ([][]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body := &sheetsapi.ValueRange{Range: sheet, MajorDimension: "ROWS", Values: rows}
	resp, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, sheet, body).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		IncludeValuesInResponse(true).
		ResponseValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if resp.Updates == nil || resp.Updates.UpdatedData == nil {
		return nil, nil
	}
	return resp.Updates.UpdatedData.Values, nil
}

// addSheets creates the described sheets in one batch.
func (c *client) addSheets(ctx context.Context, spreadsheetID string, sheets []*sheetsapi.SheetProperties) error {
	if len(sheets) == 0 {
		return nil
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	reqs := make([]*sheetsapi.Request, len(sheets))
	for i, props := range sheets {
		reqs[i] = &sheetsapi.Request{AddSheet: &sheetsapi.AddSheetRequest{Properties: props}}
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	return err
}

// writeHeaders sets the first row of each sheet in one batch.
func (c *client) writeHeaders(ctx context.Context, spreadsheetID string, headers map[string][]string, order []string) error {
	if len(order) == 0 {
		return nil
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	data := make([]*sheetsapi.ValueRange, 0, len(order))
	for _, sheet := range order {
		row := make([]any, len(headers[sheet]))
		for i, h := range headers[sheet] {
			row[i] = h
		}
		data = append(data, &sheetsapi.ValueRange{
			Range:          sheet + "!A1",
			MajorDimension: "ROWS",
			Values:         [][]any{row},
		})
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

// query runs a visualization query against one sheet. An empty tq selects
// every row.
func (c *client) query(ctx context.Context, spreadsheetID, sheet, tq string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{
		"sheet":   {sheet},
		"headers": {"1"},
		"tqx":     {"out:json"},
	}
	if tq != "" {
		params.Set("tq", tq)
	}
	u := c.queryBase + "/" + url.PathEscape(spreadsheetID) + "/gviz/tq?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read table query response: %w", err)
	}
	return body, nil
}

// isRangeError reports whether err is the API rejecting a range, which is how
// a missing sheet surfaces.
func isRangeError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
}
