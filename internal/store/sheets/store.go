package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/naming"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/store"
)

// relationshipColumns is the width of an edge row: row number plus the edge.
const relationshipColumns = 6

// Config selects the spreadsheet and how to reach it.
type Config struct {
	SpreadsheetID string
	// HTTPClient carries the OAuth2 credentials. Required.
	HTTPClient *http.Client
	// APIBase overrides the Sheets API endpoint.
	APIBase   string
	QueryBase string
	// RequestsPerSecond throttles API calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Store is a store.Store backed by one spreadsheet.
type Store struct {
	id     string
	api    *client
	logger *slog.Logger

	mu      sync.Mutex
	headers map[string][]string
}

var _ store.Store = (*Store)(nil)

// New returns a Store for cfg.SpreadsheetID.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	if cfg.HTTPClient == nil {
		return nil, errors.New("sheets: an authorized HTTP client is required")
	}
	queryBase := strings.TrimRight(cfg.QueryBase, "/")
	if queryBase == "" {
		queryBase = DefaultQueryBase
	}

	httpClient := *cfg.HTTPClient
	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient.Transport = otelhttp.NewTransport(transport)

	opts := []option.ClientOption{option.WithHTTPClient(&httpClient)}
	if base := strings.TrimRight(cfg.APIBase, "/"); base != "" {
		opts = append(opts, option.WithEndpoint(base+"/"))
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		id: cfg.SpreadsheetID,
		api: &client{
			svc:       svc,
			http:      &httpClient,
			queryBase: queryBase,
			limiter:   limiter,
		},
		logger:  logger,
		headers: make(map[string][]string),
	}, nil
}

func (s *Store) titles(ctx context.Context) ([]string, error) {
	sp, err := s.api.get(ctx, s.id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sp.Sheets))
	for _, sh := range sp.Sheets {
		if sh.Properties != nil {
			out = append(out, sh.Properties.Title)
		}
	}
	return out, nil
}

// Models lists the sheets that hold object records, in sheet order.
func (s *Store) Models(ctx context.Context) ([]string, error) {
	all, err := s.titles(ctx)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, title := range all {
		if !naming.IsReservedSheet(title) {
			models = append(models, title)
		}
	}
	return models, nil
}

// MissingModels returns the object types of sch that have no sheet yet.
func (s *Store) MissingModels(ctx context.Context, sch *schema.Schema) ([]string, error) {
	models, err := s.Models(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, td := range sch.ObjectTypes() {
		if !slices.Contains(models, td.Name) {
			missing = append(missing, td.Name)
		}
	}
	return missing, nil
}

// Provision prepares the spreadsheet for sch. It adds the hidden
// RELATIONSHIPS sheet and a sheet per object type when they are missing, and
// writes a header row of field names to every type sheet whose first row is
// empty. Existing headers are left alone. It returns the sheets it added.
func (s *Store) Provision(ctx context.Context, sch *schema.Schema) ([]string, error) {
	all, err := s.titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}

	var (
		added   []*sheetsapi.SheetProperties
		headers = make(map[string][]string)
		order   []string
	)
	if !slices.Contains(all, formula.RelationshipsSheet) {
		added = append(added, &sheetsapi.SheetProperties{
			Title:          formula.RelationshipsSheet,
			Hidden:         true,
			GridProperties: &sheetsapi.GridProperties{ColumnCount: relationshipColumns},
		})
	}
	for _, td := range sch.ObjectTypes() {
		if naming.IsReservedSheet(td.Name) {
			s.logger.Warn("object type shares a reserved sheet name, skipping", slog.String("type", td.Name))
			continue
		}
		names := make([]string, len(td.Fields))
		for i, f := range td.Fields {
			names[i] = f.Name
		}

		if !slices.Contains(all, td.Name) {
			added = append(added, &sheetsapi.SheetProperties{Title: td.Name})
			headers[td.Name] = names
			order = append(order, td.Name)
			continue
		}
		row, err := s.api.values(ctx, s.id, td.Name+"!1:1")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s headers: %w", td.Name, err)
		}
		if len(row) == 0 || len(row[0]) == 0 {
			headers[td.Name] = names
			order = append(order, td.Name)
			continue
		}
		s.warnMissingColumns(td.Name, row[0], names)
	}

	if err := s.api.addSheets(ctx, s.id, added); err != nil {
		return nil, fmt.Errorf("failed to add sheets: %w", err)
	}
	if err := s.api.writeHeaders(ctx, s.id, headers, order); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	s.mu.Lock()
	for _, sheet := range order {
		s.headers[sheet] = headers[sheet]
	}
	s.mu.Unlock()

	titles := make([]string, len(added))
	for i, props := range added {
		titles[i] = props.Title
	}
	s.logger.Info("spreadsheet provisioned",
		slog.Any("sheets_added", titles),
		slog.Any("headers_written", order),
	)
	return titles, nil
}

func (s *Store) warnMissingColumns(sheet string, row []any, fields []string) {
	have := make(map[string]bool, len(row))
	for _, v := range row {
		have[strings.TrimSpace(fmt.Sprint(v))] = true
	}
	var missing []string
	for _, f := range fields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("sheet has no column for some fields, their values are not stored",
			slog.String("sheet", sheet),
			slog.Any("fields", missing),
		)
	}
}

// Headers returns the field names in a sheet's first row. They are read once
// per sheet and cached.
func (s *Store) Headers(ctx context.Context, sheet string) ([]string, error) {
	s.mu.Lock()
	cached, ok := s.headers[sheet]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	rows, err := s.api.values(ctx, s.id, sheet+"!1:1")
	if err != nil {
		if isRangeError(err) {
			return nil, fmt.Errorf("sheet %q: %w", sheet, store.ErrUnknownType)
		}
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}
	headers := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		headers[i] = strings.TrimSpace(fmt.Sprint(v))
	}

	s.mu.Lock()
	s.headers[sheet] = headers
	s.mu.Unlock()
	return headers, nil
}

// WriteEdges appends every edge to the RELATIONSHIPS sheet in one request.
func (s *Store) WriteEdges(ctx context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error) {
	if len(edges) == 0 {
		return nil, nil
	}
	rows := make([][]any, len(edges))
	for i, e := range edges {
		rows[i] = e.Row()
	}
	written, err := s.api.append(ctx, s.id, formula.RelationshipsSheet, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to append relationships: %w", err)
	}
	out := make([]relationship.WrittenEdge, 0, len(written))
	for _, row := range written {
		w, err := relationship.FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	s.logger.Debug("relationships appended", slog.Int("count", len(out)))
	return out, nil
}

// WriteRecord appends one row ordered by the sheet's header row and returns
// the row as the sheet rendered it, with formulas already evaluated.
func (s *Store) WriteRecord(ctx context.Context, typeName string, record store.Record) (store.Record, error) {
	headers, err := s.Headers(ctx, typeName)
	if err != nil {
		return nil, err
	}
	written, err := s.api.append(ctx, s.id, typeName, [][]any{align(headers, record)})
	if err != nil {
		return nil, fmt.Errorf("failed to append %s record: %w", typeName, err)
	}
	if len(written) == 0 {
		return nil, nil
	}
	return zip(headers, written[0]), nil
}

func (s *Store) FindRecord(ctx context.Context, typeName, id string) (store.Record, error) {
	recs, err := s.FindRecords(ctx, typeName, []string{id})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindRecords loads the rows whose id is in ids with one query. Results follow
// the order of ids; ids with no row are skipped.
func (s *Store) FindRecords(ctx context.Context, typeName string, ids []string) ([]store.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	headers, err := s.Headers(ctx, typeName)
	if err != nil {
		return nil, err
	}
	col := slices.Index(headers, "id")
	if col < 0 {
		return nil, fmt.Errorf("sheet %q has no id column", typeName)
	}
	tq, ok := selectByID(columnName(col), ids)
	if !ok {
		return nil, nil
	}

	raw, err := s.api.query(ctx, s.id, typeName, tq)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", typeName, err)
	}
	recs, err := decodeTable(raw)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Record, len(recs))
	for _, r := range recs {
		if _, dup := byID[r.ID()]; !dup {
			byID[r.ID()] = r
		}
	}
	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) FindAll(ctx context.Context, typeName string) ([]store.Record, error) {
	raw, err := s.api.query(ctx, s.id, typeName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", typeName, err)
	}
	return decodeTable(raw)
}

// Ping checks that the spreadsheet is reachable with the current credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.get(ctx, s.id)
	return err
}
