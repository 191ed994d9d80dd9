package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/coverage"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
)

const harmonizedTable = "harmonized_records"

// metaColumns lead every harmonized_records row, before the canonical fields.
var metaColumns = []string{"release_id", "release_file", "survey_year", "survey_month", "row_number"}

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
}

func NewPostgresDBManager(ctx context.Context, pool *pgxpool.Pool) *PostgresDBManager {
	return &PostgresDBManager{dbpool: pool, ctx: ctx}
}

func (m *PostgresDBManager) rollback(tx pgx.Tx) {
	if err := tx.Rollback(m.ctx); err != nil && err != pgx.ErrTxClosed {
		log.Errorf("Error rolling back transaction: %v", err)
	}
}

func (m *PostgresDBManager) CreateReleaseRecordsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS release_records (
		id SERIAL PRIMARY KEY,
		file_name VARCHAR(255) NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'FAILED', 'PROCESSING')),
		checksum VARCHAR(64),
		run_id VARCHAR(36),
		survey_year INTEGER,
		survey_month INTEGER,
		errors jsonb
	);
	CREATE INDEX IF NOT EXISTS idx_release_records_checksum ON release_records (checksum, status);`

	_, err := m.dbpool.Exec(m.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating release_records table: %w", err)
	}

	return nil
}

func (m *PostgresDBManager) CreateFieldDiagnosticsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS field_diagnostics (
		id BIGSERIAL PRIMARY KEY,
		release_id INTEGER NOT NULL REFERENCES release_records (id) ON DELETE CASCADE,
		field VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		source_col VARCHAR(64),
		translated BOOLEAN NOT NULL,
		forced BOOLEAN NOT NULL,
		raw_nonnull INTEGER NOT NULL,
		clean_nonnull INTEGER NOT NULL,
		final_nonnull INTEGER NOT NULL,
		null_count INTEGER NOT NULL,
		retention_pct DOUBLE PRECISION NOT NULL,
		null_pct DOUBLE PRECISION NOT NULL,
		resolution_loss INTEGER NOT NULL,
		translation_loss INTEGER NOT NULL,
		candidates_searched TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_field_diagnostics_field ON field_diagnostics (field, release_id);`

	_, err := m.dbpool.Exec(m.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating field_diagnostics table: %w", err)
	}

	return nil
}

// CreateHarmonizedRecordsTable creates the harmonized_records table, list
// partitioned by survey year. Every canonical field is a nullable double.
func (m *PostgresDBManager) CreateHarmonizedRecordsTable(fields []string) error {
	columns := []string{
		"id BIGSERIAL NOT NULL",
		"release_id INTEGER NOT NULL",
		"release_file VARCHAR(255) NOT NULL",
		"survey_year INTEGER NOT NULL",
		"survey_month INTEGER",
		"row_number INTEGER NOT NULL",
	}
	for _, field := range fields {
		columns = append(columns, fmt.Sprintf("%s DOUBLE PRECISION", pgx.Identifier{fieldColumn(field)}.Sanitize()))
	}

	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		%s
	) PARTITION BY LIST (survey_year);`, harmonizedTable, strings.Join(columns, ",\n\t\t"))

	_, err := m.dbpool.Exec(m.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating %s partition table: %w", harmonizedTable, err)
	}

	return nil
}

func fieldColumn(field string) string {
	return strings.ToLower(field)
}

func getPartitionTableName(year int) string {
	return fmt.Sprintf("%s_%d", harmonizedTable, year)
}

func (m *PostgresDBManager) isPartitionAlreadyExistsError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "already exists") || strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// CreatePartitionsForYears makes sure every survey year has its partition and
// reports which ones were created by this call.
func (m *PostgresDBManager) CreatePartitionsForYears(years []int) (*models.FirstWritePartition, error) {
	if len(years) == 0 {
		return nil, nil
	}

	unique := make(map[int]bool, len(years))
	tableNames := make([]string, 0, len(years))
	createdPartitions := make(models.FirstWritePartition)
	for _, year := range years {
		if unique[year] {
			continue
		}
		unique[year] = true
		tableNames = append(tableNames, getPartitionTableName(year))
		createdPartitions[year] = true
	}

	tx, err := m.dbpool.Begin(m.ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer m.rollback(tx)

	existingTables := make(map[string]bool)
	rows, err := tx.Query(m.ctx, `SELECT tablename FROM pg_tables WHERE tablename = ANY($1)`, tableNames)
	if err != nil {
		return nil, fmt.Errorf("error checking existing partitions: %w", err)
	}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning tablename: %w", err)
		}
		existingTables[tableName] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	sorted := make([]int, 0, len(unique))
	for year := range unique {
		sorted = append(sorted, year)
	}
	sort.Ints(sorted)

	for _, year := range sorted {
		tableName := getPartitionTableName(year)
		if existingTables[tableName] {
			createdPartitions[year] = false
			log.Printf("Partition for survey year %d already exists. Skipping creation.", year)
			continue
		}

		created, err := m.createPartition(tx, tableName, year)
		if err != nil {
			return nil, err
		}
		createdPartitions[year] = created
	}

	if err := tx.Commit(m.ctx); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	return &createdPartitions, nil
}

// createPartition runs the CREATE inside a savepoint so that losing a race to
// another run leaves the outer transaction usable.
func (m *PostgresDBManager) createPartition(tx pgx.Tx, tableName string, year int) (bool, error) {
	createQuery := fmt.Sprintf(`CREATE TABLE %s PARTITION OF %s FOR VALUES IN (%d);`,
		pgx.Identifier{tableName}.Sanitize(), harmonizedTable, year)
	log.Printf("Creating partition %s for survey year %d", tableName, year)

	savepoint, err := tx.Begin(m.ctx)
	if err != nil {
		return false, fmt.Errorf("error creating savepoint for %s: %w", tableName, err)
	}

	if _, err := savepoint.Exec(m.ctx, createQuery); err != nil {
		if rbErr := savepoint.Rollback(m.ctx); rbErr != nil {
			return false, fmt.Errorf("error rolling back savepoint for %s: %w", tableName, rbErr)
		}
		if !m.isPartitionAlreadyExistsError(err) {
			return false, fmt.Errorf("error creating partition %s: %w", tableName, err)
		}
		log.Printf("Partition %s already exists, skipping creation.", tableName)
		return false, nil
	}

	if err := savepoint.Commit(m.ctx); err != nil {
		return false, fmt.Errorf("error releasing savepoint for %s: %w", tableName, err)
	}
	return true, nil
}

func (m *PostgresDBManager) InsertReleaseRecord(fileName string, processedAt time.Time, status string, checksum string, runID string) (int, error) {
	query := `
	INSERT INTO release_records (file_name, processed_at, status, checksum, run_id)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id;`

	var releaseID int
	err := m.dbpool.QueryRow(m.ctx, query, fileName, processedAt, status, checksum, runID).Scan(&releaseID)
	if err != nil {
		return 0, fmt.Errorf("error inserting release record: %w", err)
	}

	return releaseID, nil
}

func (m *PostgresDBManager) UpdateReleaseStatus(releaseID int, status string, year *int, month *int, errors any) error {
	query := `
	UPDATE release_records
	SET status = $1,
		survey_year = COALESCE($2, survey_year),
		survey_month = COALESCE($3, survey_month),
		errors = $4
	WHERE id = $5;`

	_, err := m.dbpool.Exec(m.ctx, query, status, year, month, errors, releaseID)
	if err != nil {
		return fmt.Errorf("error updating release status: %w", err)
	}

	return nil
}

func (m *PostgresDBManager) IsReleaseAlreadyProcessed(checksum string) (bool, error) {
	query := `
	SELECT id
	FROM release_records
	WHERE checksum = $1 AND status = 'DONE'
	LIMIT 1;`

	var id int
	err := m.dbpool.QueryRow(m.ctx, query, checksum).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error finding release record by checksum: %w", err)
	}

	return true, nil
}

func (m *PostgresDBManager) InsertFieldDiagnostics(releaseID int, report *models.ReleaseReport) error {
	columnNames := []string{
		"release_id", "field", "status", "source_col", "translated", "forced",
		"raw_nonnull", "clean_nonnull", "final_nonnull", "null_count",
		"retention_pct", "null_pct", "resolution_loss", "translation_loss", "candidates_searched",
	}

	fields := make([]string, 0, len(report.Columns))
	for field := range report.Columns {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	copySource := pgx.CopyFromSlice(len(fields), func(i int) ([]any, error) {
		d := report.Columns[fields[i]]
		var source any
		if d.SourceColumn != "" {
			source = d.SourceColumn
		}
		return []any{
			releaseID, fields[i], string(d.Status), source, d.Translated, d.Forced,
			d.RawNonNullCount, d.CleanNonNullCount, d.FinalNonNullCount, d.NullCount,
			d.RetentionPct, d.NullPct, d.ResolutionLoss, d.TranslationLoss, d.CandidatesSearched,
		}, nil
	})

	_, err := m.dbpool.CopyFrom(m.ctx, pgx.Identifier{"field_diagnostics"}, columnNames, copySource)
	if err != nil {
		return fmt.Errorf("error copying field diagnostics for release %d: %w", releaseID, err)
	}

	return nil
}

// CopyHarmonizedRows loads a release into harmonized_records with COPY, in
// chunks of batchSize rows, inside one transaction. When the year partition
// already existed, rows left by an earlier attempt at the same file are
// removed first.
func (m *PostgresDBManager) CopyHarmonizedRows(releaseID int, release *models.Release, table *models.HarmonizedTable, batchSize int, firstWrite bool) (int64, error) {
	if batchSize <= 0 {
		batchSize = table.Rows
	}

	columnNames := append([]string(nil), metaColumns...)
	for _, field := range table.Fields {
		columnNames = append(columnNames, fieldColumn(field))
	}

	tx, err := m.dbpool.Begin(m.ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer m.rollback(tx)

	if !firstWrite {
		tag, err := tx.Exec(m.ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE survey_year = $1 AND release_file = $2;`, harmonizedTable),
			release.Year, release.Identifier)
		if err != nil {
			return 0, fmt.Errorf("error clearing previous rows of %s: %w", release.Identifier, err)
		}
		if tag.RowsAffected() > 0 {
			log.Printf("Removed %d rows left by a previous load of %s", tag.RowsAffected(), release.Identifier)
		}
	}

	var month any
	if release.Month != nil {
		month = *release.Month
	}

	var copied int64
	for start := 0; start < table.Rows; start += batchSize {
		end := min(start+batchSize, table.Rows)
		source := pgx.CopyFromSlice(end-start, func(i int) ([]any, error) {
			r := start + i
			row := make([]any, 0, len(columnNames))
			row = append(row, releaseID, release.Identifier, release.Year, month, r+1)
			for c := range table.Columns {
				v := table.Columns[c][r]
				if v.IsMissing() {
					row = append(row, nil)
					continue
				}
				row = append(row, v.Float)
			}
			return row, nil
		})

		log.Printf("Copying rows %d-%d of %s into %s", start+1, end, release.Identifier, harmonizedTable)
		n, err := tx.CopyFrom(m.ctx, pgx.Identifier{harmonizedTable}, columnNames, source)
		if err != nil {
			return copied, fmt.Errorf("unable to copy rows of %s: %w", release.Identifier, err)
		}
		copied += n
	}

	if err := tx.Commit(m.ctx); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}

	return copied, nil
}

// GetFieldObservations returns, for every release whose latest load finished,
// what was recorded about field.
func (m *PostgresDBManager) GetFieldObservations(field string) ([]coverage.FieldObservation, error) {
	query := `
	SELECT DISTINCT ON (r.file_name)
		r.file_name, r.survey_year, r.survey_month, d.status, COALESCE(d.source_col, ''), d.retention_pct
	FROM field_diagnostics d
	JOIN release_records r ON r.id = d.release_id
	WHERE UPPER(d.field) = UPPER($1) AND r.status = 'DONE'
	ORDER BY r.file_name, r.processed_at DESC;`

	rows, err := m.dbpool.Query(m.ctx, query, field)
	if err != nil {
		return nil, fmt.Errorf("error querying field diagnostics: %w", err)
	}
	defer rows.Close()

	var observations []coverage.FieldObservation
	for rows.Next() {
		var (
			obs    coverage.FieldObservation
			year   *int
			status string
		)
		if err := rows.Scan(&obs.File, &year, &obs.Month, &status, &obs.SourceColumn, &obs.RetentionPct); err != nil {
			return nil, fmt.Errorf("error scanning field diagnostic: %w", err)
		}
		if year != nil {
			obs.Year = *year
		}
		obs.Status = models.Status(status)
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	sort.SliceStable(observations, func(i, j int) bool {
		return coverage.Chronological(observations[i].Year, observations[i].Month, observations[j].Year, observations[j].Month)
	})
	return observations, nil
}

func (m *PostgresDBManager) ListReleases() ([]models.ReleaseRecord, error) {
	query := `
	SELECT id, file_name, status, COALESCE(checksum, ''), COALESCE(run_id, ''), survey_year, survey_month, processed_at
	FROM release_records
	ORDER BY survey_year NULLS LAST, survey_month NULLS LAST, file_name, id;`

	rows, err := m.dbpool.Query(m.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying release records: %w", err)
	}
	defer rows.Close()

	records := []models.ReleaseRecord{}
	for rows.Next() {
		var (
			rec         models.ReleaseRecord
			processedAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.Status, &rec.Checksum, &rec.RunID, &rec.Year, &rec.Month, &processedAt); err != nil {
			return nil, fmt.Errorf("error scanning release record: %w", err)
		}
		rec.ProcessedAt = processedAt.Format(time.RFC3339)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return records, nil
}
