package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
	"github.com/hydromelvictor/gogoose/odm/postgresengine/internal/adapters"
)

// Collection is one table of the Store.
type Collection struct {
	store *Store
	name  string
	table string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// InsertOne inserts one record and returns its identity.
func (c *Collection) InsertOne(ctx context.Context, record odm.Record) (any, error) {
	ids, err := c.InsertMany(ctx, []odm.Record{record})
	if err != nil {
		return nil, err
	}

	return ids[0], nil
}

// InsertMany inserts all records in one statement; either all of them are stored or none.
// Records without an identity get a UUIDv7 string.
func (c *Collection) InsertMany(ctx context.Context, records []odm.Record) ([]any, error) {
	if len(records) == 0 {
		return []any{}, nil
	}

	if err := c.store.ensureTable(ctx, c.table); err != nil {
		return nil, err
	}

	ids := make([]any, len(records))
	rows := make([]goqu.Vals, len(records))

	for i, record := range records {
		id, ok := record[odm.IDField]
		if !ok || id == nil {
			generated, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			id = generated.String()
		}

		idValue, err := idText(id)
		if err != nil {
			return nil, err
		}

		doc, err := encodeDocument(record)
		if err != nil {
			return nil, err
		}

		ids[i] = id
		rows[i] = goqu.Vals{idValue, goqu.L(castJsonb, doc)}
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(c.table).
		Cols(colID, colDoc).
		Vals(rows...)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		c.store.logError(ctx, logMsgBuildQueryFailed, toSQLErr, logAttrTable, c.table)
		return nil, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	if _, err := c.exec(ctx, sqlQuery, logActionInsert); err != nil {
		return nil, err
	}

	return ids, nil
}

// Find selects the matching records. Sort, skip and limit run in SQL, the projection is
// applied to the decoded records.
func (c *Collection) Find(ctx context.Context, filter odm.Filter, opts odm.FindOptions) (odm.Cursor, error) {
	selectStmt, err := c.selectStatement(filter, opts.Sort)
	if err != nil {
		return nil, err
	}

	if opts.Skip != nil && *opts.Skip > 0 {
		selectStmt = selectStmt.Offset(uint(*opts.Skip))
	}

	if opts.Limit != nil && *opts.Limit != 0 {
		limit := *opts.Limit
		if limit < 0 {
			limit = -limit
		}
		selectStmt = selectStmt.Limit(uint(limit))
	}

	records, err := c.queryRecords(ctx, selectStmt, logActionFind)
	if err != nil {
		return nil, err
	}

	if len(opts.Projection) > 0 {
		for i, record := range records {
			projected, projectErr := recordops.Project(record, opts.Projection)
			if projectErr != nil {
				return nil, projectErr
			}
			records[i] = projected
		}
	}

	return recordops.NewSliceCursor(records), nil
}

// UpdateOne applies the update to the first matching record in insertion order.
func (c *Collection) UpdateOne(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	return c.update(ctx, filter, update, true)
}

// UpdateMany applies the update to every matching record.
func (c *Collection) UpdateMany(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	return c.update(ctx, filter, update, false)
}

func (c *Collection) update(ctx context.Context, filter odm.Filter, update odm.Update, single bool) (int64, error) {
	expression, err := buildUpdateExpression(update)
	if err != nil {
		return 0, err
	}

	target, err := c.target(filter, single)
	if err != nil {
		return 0, err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(c.table).
		Set(goqu.Record{colDoc: expression}).
		Where(target)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		c.store.logError(ctx, logMsgBuildQueryFailed, toSQLErr, logAttrTable, c.table)
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return c.exec(ctx, sqlQuery, logActionUpdate)
}

// DeleteOne removes the first matching record in insertion order.
func (c *Collection) DeleteOne(ctx context.Context, filter odm.Filter) (int64, error) {
	return c.delete(ctx, filter, true)
}

// DeleteMany removes every matching record.
func (c *Collection) DeleteMany(ctx context.Context, filter odm.Filter) (int64, error) {
	return c.delete(ctx, filter, false)
}

func (c *Collection) delete(ctx context.Context, filter odm.Filter, single bool) (int64, error) {
	target, err := c.target(filter, single)
	if err != nil {
		return 0, err
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(c.table).
		Where(target)

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		c.store.logError(ctx, logMsgBuildQueryFailed, toSQLErr, logAttrTable, c.table)
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return c.exec(ctx, sqlQuery, logActionDelete)
}

// target builds the WHERE expression of an update or delete. The single-row variants pick
// the first match by insertion order through a subquery on the primary key.
func (c *Collection) target(filter odm.Filter, single bool) (exp.Expression, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}

	if !single {
		return where, nil
	}

	first := goqu.Dialect(dialectPostgres).
		From(c.table).
		Select(colID).
		Where(where).
		Order(goqu.C(colSeq).Asc()).
		Limit(1)

	return goqu.C(colID).In(first), nil
}

// CountDocuments counts the matching records.
func (c *Collection) CountDocuments(ctx context.Context, filter odm.Filter) (int64, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}

	countStmt := goqu.Dialect(dialectPostgres).
		From(c.table).
		Select(goqu.COUNT(goqu.Star())).
		Where(where)

	sqlQuery, _, toSQLErr := countStmt.ToSQL()
	if toSQLErr != nil {
		c.store.logError(ctx, logMsgBuildQueryFailed, toSQLErr, logAttrTable, c.table)
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := c.query(ctx, sqlQuery, logActionCount)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	defer c.closeRows(ctx, rows)

	var count int64
	for rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			return 0, errors.Join(ErrScanningDBRowFailed, scanErr)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		if isUndefinedTable(rowsErr) {
			return 0, nil
		}
		return 0, errors.Join(ErrQueryingFailed, rowsErr)
	}

	return count, nil
}

// CreateIndex creates the collection table if needed and then an expression index over the
// key paths. Non-sparse indexes treat a missing field like null, sparse ones skip records
// that have none of the keys.
func (c *Collection) CreateIndex(ctx context.Context, index odm.IndexModel) error {
	if len(index.Keys) == 0 {
		return fmt.Errorf("%w: index without keys", odm.ErrCreatingIndexFailed)
	}

	if err := c.store.ensureTable(ctx, c.table); err != nil {
		return err
	}

	name := index.Options.Name
	if name == "" {
		name = odm.IndexName(index.Keys)
	}

	_, err := c.exec(ctx, c.indexStatement(name, index), logActionDDL)

	return err
}

func (c *Collection) indexStatement(name string, index odm.IndexModel) string {
	columns := make([]string, len(index.Keys))
	present := make([]string, 0, len(index.Keys))

	for i, key := range index.Keys {
		column := pgx.Identifier{colID}.Sanitize()

		if key.Field != odm.IDField {
			path := "(" + pgx.Identifier{colDoc}.Sanitize() + " #> " + quoteLiteral(pathLiteral(key.Field)) + ")"
			present = append(present, path+" IS NOT NULL")

			column = path
			if !index.Options.Sparse {
				column = "(COALESCE(" + path + ", 'null'::jsonb))"
			}
		}

		if key.Direction < 0 {
			column += " DESC"
		}

		columns[i] = column
	}

	var statement strings.Builder

	statement.WriteString("CREATE ")
	if index.Options.Unique {
		statement.WriteString("UNIQUE ")
	}
	statement.WriteString("INDEX IF NOT EXISTS ")
	statement.WriteString(pgx.Identifier{c.table + "_" + name}.Sanitize())
	statement.WriteString(" ON ")
	statement.WriteString(pgx.Identifier{c.table}.Sanitize())
	statement.WriteString(" (" + strings.Join(columns, ", ") + ")")

	if index.Options.Sparse && len(present) > 0 {
		statement.WriteString(" WHERE " + strings.Join(present, " OR "))
	}

	return statement.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Aggregate runs a leading $match stage in SQL and the remaining stages on the decoded records.
func (c *Collection) Aggregate(ctx context.Context, pipeline []odm.Record) ([]odm.Record, error) {
	filter := odm.Filter{}
	stages := pipeline

	if len(pipeline) > 0 && len(pipeline[0]) == 1 {
		if match, ok := pipeline[0]["$match"]; ok {
			m, isMap := recordops.AsMap(match)
			if !isMap {
				return nil, fmt.Errorf("%w: $match needs a filter document", odm.ErrInvalidPipeline)
			}
			filter = m
			stages = pipeline[1:]
		}
	}

	selectStmt, err := c.selectStatement(filter, nil)
	if err != nil {
		return nil, err
	}

	records, err := c.queryRecords(ctx, selectStmt, logActionAggregate)
	if err != nil {
		return nil, err
	}

	return recordops.RunPipeline(records, stages)
}

func (c *Collection) selectStatement(filter odm.Filter, sort odm.SortSpec) (*goqu.SelectDataset, error) {
	where, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}

	return goqu.Dialect(dialectPostgres).
		From(c.table).
		Select(colID, colDoc).
		Where(where).
		Order(orderBy(sort)...), nil
}

// queryRecords runs a select of (id, doc) and decodes the rows. A missing table reads as empty.
func (c *Collection) queryRecords(ctx context.Context, selectStmt *goqu.SelectDataset, action string) ([]odm.Record, error) {
	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		c.store.logError(ctx, logMsgBuildQueryFailed, toSQLErr, logAttrTable, c.table)
		return nil, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := c.query(ctx, sqlQuery, action)
	if err != nil {
		if isUndefinedTable(err) {
			return []odm.Record{}, nil
		}
		return nil, err
	}
	defer c.closeRows(ctx, rows)

	records := make([]odm.Record, 0)

	for rows.Next() {
		var id string
		var doc []byte

		if scanErr := rows.Scan(&id, &doc); scanErr != nil {
			c.store.logError(ctx, logMsgDBQueryFailed, scanErr, logAttrTable, c.table)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		record, decodeErr := decodeDocument(id, doc)
		if decodeErr != nil {
			return nil, decodeErr
		}

		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		if isUndefinedTable(rowsErr) {
			return []odm.Record{}, nil
		}
		return nil, errors.Join(ErrQueryingFailed, rowsErr)
	}

	return records, nil
}

// query executes a select and logs it with its duration. The returned error keeps the driver
// error reachable so that callers can inspect the SQLSTATE.
func (c *Collection) query(ctx context.Context, sqlQuery string, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := c.store.db.Query(ctx, sqlQuery)
	c.store.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		if !isUndefinedTable(queryErr) {
			c.store.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		}

		return nil, errors.Join(ErrQueryingFailed, queryErr)
	}

	return rows, nil
}

// exec executes a statement and returns the number of affected rows. Updates and deletes
// against a table that does not exist yet affect nothing.
func (c *Collection) exec(ctx context.Context, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := c.store.db.Exec(ctx, sqlQuery)
	c.store.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		switch {
		case isUndefinedTable(execErr) && (action == logActionUpdate || action == logActionDelete):
			return 0, nil
		case isUniqueViolation(execErr):
			c.store.logOperation(ctx, logMsgDuplicateKey, logAttrTable, c.table)
		default:
			c.store.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		}

		return 0, translateError(execErr, ErrExecFailed)
	}

	affected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		return 0, errors.Join(ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return affected, nil
}

func (c *Collection) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		c.store.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}
