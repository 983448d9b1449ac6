// Package sqlstore keeps records and the edge index in MySQL or TiDB.
//
// Records are stored as JSON documents keyed by (type, id). Reference fields
// keep their relationship formula; reads replace each formula with the target
// ids selected from the relationships table, which is the relational
// equivalent of the spreadsheet lookup.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/taras/graphsheets/internal/formula"
	"github.com/taras/graphsheets/internal/relationship"
	"github.com/taras/graphsheets/internal/store"
)

const (
	DefaultRecordsTable       = "graphsheets_records"
	DefaultRelationshipsTable = "graphsheets_relationships"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// DB is the subset of *sql.DB the store needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// Config names the tables. Empty names use the defaults.
type Config struct {
	RecordsTable       string
	RelationshipsTable string
	Logger             *slog.Logger
}

// Store is a store.Store over two tables.
type Store struct {
	db      DB
	records string
	edges   string
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps db.
func New(db DB, cfg Config) *Store {
	records := cfg.RecordsTable
	if records == "" {
		records = DefaultRecordsTable
	}
	edges := cfg.RelationshipsTable
	if edges == "" {
		edges = DefaultRelationshipsTable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		records: quoteIdentifier(records),
		edges:   quoteIdentifier(edges),
		logger:  logger,
	}
}

// Migrate creates both tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  type_name VARCHAR(255) NOT NULL,
  id VARCHAR(255) NOT NULL,
  payload JSON NOT NULL,
  UNIQUE KEY uniq_type_id (type_name, id)
)`, s.records),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  row_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  source_type VARCHAR(255) NOT NULL,
  source_id VARCHAR(255) NOT NULL,
  field_name VARCHAR(255) NOT NULL,
  target_type VARCHAR(255) NOT NULL,
  target_id VARCHAR(255) NOT NULL,
  KEY idx_source (source_type, source_id)
)`, s.edges),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// WriteEdges inserts all edges with one statement. Row ids are assigned
// consecutively from the first generated id.
func (s *Store) WriteEdges(ctx context.Context, edges []relationship.Edge) ([]relationship.WrittenEdge, error) {
	if len(edges) == 0 {
		return nil, nil
	}
	builder := sq.Insert(s.edges).
		Columns("source_type", "source_id", "field_name", "target_type", "target_id").
		PlaceholderFormat(sq.Question)
	for _, e := range edges {
		builder = builder.Values(e.SourceType, e.SourceID, e.Field, e.TargetType, e.TargetID)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert relationships: %w", err)
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := make([]relationship.WrittenEdge, len(edges))
	for i, e := range edges {
		out[i] = relationship.WrittenEdge{Row: strconv.FormatInt(first+int64(i), 10), Edge: e}
	}
	return out, nil
}

// WriteRecord inserts one record. A duplicate (type, id) writes nothing and
// yields a nil record.
func (s *Store) WriteRecord(ctx context.Context, typeName string, record store.Record) (store.Record, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", typeName, err)
	}
	query, args, err := sq.Insert(s.records).
		Columns("type_name", "id", "payload").
		Values(typeName, record.ID(), string(payload)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateEntry(err) {
			s.logger.Debug("record already exists", slog.String("type", typeName), slog.String("id", record.ID()))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert %s record: %w", typeName, err)
	}

	written := make(store.Record, len(record))
	for k, v := range record {
		written[k] = v
	}
	if err := s.evaluate(ctx, typeName, []store.Record{written}); err != nil {
		return nil, err
	}
	return written, nil
}

func (s *Store) FindRecord(ctx context.Context, typeName, id string) (store.Record, error) {
	recs, err := s.FindRecords(ctx, typeName, []string{id})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindRecords returns the records that exist, in the order of ids.
func (s *Store) FindRecords(ctx context.Context, typeName string, ids []string) ([]store.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	recs, err := s.load(ctx, sq.Eq{"type_name": typeName, "id": ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Record, len(recs))
	for _, r := range recs {
		byID[r.ID()] = r
	}
	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	if err := s.evaluate(ctx, typeName, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindAll returns every record of a type in insertion order.
func (s *Store) FindAll(ctx context.Context, typeName string) ([]store.Record, error) {
	recs, err := s.load(ctx, sq.Eq{"type_name": typeName})
	if err != nil {
		return nil, err
	}
	if err := s.evaluate(ctx, typeName, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) load(ctx context.Context, where sq.Eq) ([]store.Record, error) {
	query, args, err := sq.Select("payload").
		From(s.records).
		Where(where).
		OrderBy("seq").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec store.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// evaluate replaces relationship formulas in recs, in place, with the
// comma-joined target ids of the matching edges. One query covers all recs.
func (s *Store) evaluate(ctx context.Context, typeName string, recs []store.Record) error {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if hasFormula(r) {
			ids = append(ids, r.ID())
		}
	}
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sq.Select("source_id", "field_name", "target_type", "target_id").
		From(s.edges).
		Where(sq.Eq{"source_type": typeName, "source_id": ids}).
		OrderBy("row_id").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	targets := make(map[formula.Lookup][]string)
	for rows.Next() {
		l := formula.Lookup{SourceType: typeName}
		var target string
		if err := rows.Scan(&l.SourceID, &l.Field, &l.TargetType, &target); err != nil {
			return err
		}
		targets[l] = append(targets[l], target)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range recs {
		for k, v := range r {
			str, ok := v.(string)
			if !ok {
				continue
			}
			if l, ok := formula.Parse(str); ok {
				r[k] = store.JoinIDs(targets[l])
			}
		}
	}
	return nil
}

func hasFormula(r store.Record) bool {
	for _, v := range r {
		if formula.IsFormula(v) {
			return true
		}
	}
	return false
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// quoteIdentifier quotes a SQL identifier with backticks, escaping any
// backticks within it.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
