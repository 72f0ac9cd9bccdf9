package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"cinecrawler/internal/config"
	"cinecrawler/pkg/types"
)

// Catalog persists scraped records into a SQL database. The default driver is
// a local sqlite3 file; postgres is supported for shared deployments.
type Catalog struct {
	db          *sql.DB
	autoMigrate bool
}

// NewCatalog opens the configured database and prepares the schema.
func NewCatalog(cfg config.SQLConfig) (*Catalog, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	cat := &Catalog{
		db:          db,
		autoMigrate: cfg.AutoMigrate,
	}
	if cfg.AutoMigrate {
		if err := cat.ensureSchema(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return cat, nil
}

// Upsert writes one record, replacing any previous row with the same id.
func (c *Catalog) Upsert(ctx context.Context, rec *types.ScrapedRecord) error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.upsertRecord(ctx, rec); err != nil {
		if c.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := c.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := c.upsertRecord(ctx, rec); retryErr != nil {
				return fmt.Errorf("insert record: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SaveAll upserts a batch of records inside one transaction.
func (c *Catalog) SaveAll(ctx context.Context, recs []*types.ScrapedRecord) error {
	if c == nil || c.db == nil || len(recs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, rec := range recs {
		if err := upsertRecordTx(ctx, tx, rec); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *Catalog) upsertRecord(ctx context.Context, rec *types.ScrapedRecord) error {
	return upsertRecordTx(ctx, c.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertRecordTx(ctx context.Context, db execer, rec *types.ScrapedRecord) error {
	screenshots, err := json.Marshal(rec.Screenshots)
	if err != nil {
		return fmt.Errorf("encode screenshots: %w", err)
	}
	groups, err := json.Marshal(rec.DownloadGroups)
	if err != nil {
		return fmt.Errorf("encode download groups: %w", err)
	}
	query := `
        INSERT INTO records (
            id, source_url, title, image_url, quality, language, raw_language,
            content_type, status, is_adult, imdb_rating, genre, resolution,
            release_info, cast_names, storyline, screenshots, download_groups,
            visibility, views, downloads, created_at, last_updated
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
        ON CONFLICT (id) DO UPDATE SET
            source_url = EXCLUDED.source_url,
            title = EXCLUDED.title,
            image_url = EXCLUDED.image_url,
            quality = EXCLUDED.quality,
            language = EXCLUDED.language,
            raw_language = EXCLUDED.raw_language,
            content_type = EXCLUDED.content_type,
            status = EXCLUDED.status,
            is_adult = EXCLUDED.is_adult,
            imdb_rating = EXCLUDED.imdb_rating,
            genre = EXCLUDED.genre,
            resolution = EXCLUDED.resolution,
            release_info = EXCLUDED.release_info,
            cast_names = EXCLUDED.cast_names,
            storyline = EXCLUDED.storyline,
            screenshots = EXCLUDED.screenshots,
            download_groups = EXCLUDED.download_groups,
            visibility = EXCLUDED.visibility,
            views = EXCLUDED.views,
            downloads = EXCLUDED.downloads,
            last_updated = EXCLUDED.last_updated
    `
	if _, err := db.ExecContext(ctx, query,
		rec.ID,
		rec.SourceURL,
		rec.Title,
		rec.ImageURL,
		rec.Quality,
		rec.Language,
		rec.RawLanguage,
		rec.ContentType,
		rec.Status,
		rec.IsAdult,
		rec.IMDBRating,
		rec.Genre,
		rec.Resolution,
		rec.ReleaseInfo,
		rec.Cast,
		rec.Storyline,
		string(screenshots),
		string(groups),
		rec.Visibility,
		rec.Views,
		rec.Downloads,
		rec.CreatedAt,
		rec.LastUpdated,
	); err != nil {
		return err
	}
	return nil
}

// LoadAll returns every stored record in creation order. The returned slice
// is the existing dataset a run reconciles against, so the order is stable.
func (c *Catalog) LoadAll(ctx context.Context) ([]*types.ScrapedRecord, error) {
	if c == nil || c.db == nil {
		return nil, nil
	}
	query := `
        SELECT id, source_url, title, image_url, quality, language, raw_language,
               content_type, status, is_adult, imdb_rating, genre, resolution,
               release_info, cast_names, storyline, screenshots, download_groups,
               visibility, views, downloads, created_at, last_updated
        FROM records
        ORDER BY created_at, id
    `
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		if c.autoMigrate && isUndefinedTableErr(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []*types.ScrapedRecord
	for rows.Next() {
		var rec types.ScrapedRecord
		var screenshots, groups string
		if err := rows.Scan(
			&rec.ID,
			&rec.SourceURL,
			&rec.Title,
			&rec.ImageURL,
			&rec.Quality,
			&rec.Language,
			&rec.RawLanguage,
			&rec.ContentType,
			&rec.Status,
			&rec.IsAdult,
			&rec.IMDBRating,
			&rec.Genre,
			&rec.Resolution,
			&rec.ReleaseInfo,
			&rec.Cast,
			&rec.Storyline,
			&screenshots,
			&groups,
			&rec.Visibility,
			&rec.Views,
			&rec.Downloads,
			&rec.CreatedAt,
			&rec.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if screenshots != "" {
			if err := json.Unmarshal([]byte(screenshots), &rec.Screenshots); err != nil {
				return nil, fmt.Errorf("decode screenshots for %s: %w", rec.ID, err)
			}
		}
		if groups != "" {
			if err := json.Unmarshal([]byte(groups), &rec.DownloadGroups); err != nil {
				return nil, fmt.Errorf("decode download groups for %s: %w", rec.ID, err)
			}
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	if c == nil || c.db == nil {
		return 0, nil
	}
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		if c.autoMigrate && isUndefinedTableErr(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the underlying DB connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	if c == nil || c.db == nil || !c.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
		    id TEXT PRIMARY KEY,
		    source_url TEXT,
		    title TEXT,
		    image_url TEXT,
		    quality TEXT,
		    language TEXT,
		    raw_language TEXT,
		    content_type TEXT,
		    status TEXT,
		    is_adult BOOLEAN,
		    imdb_rating TEXT,
		    genre TEXT,
		    resolution TEXT,
		    release_info TEXT,
		    cast_names TEXT,
		    storyline TEXT,
		    screenshots TEXT,
		    download_groups TEXT,
		    visibility TEXT,
		    views INTEGER,
		    downloads INTEGER,
		    created_at TIMESTAMP,
		    last_updated TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "no such table") ||
		(strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"))
}
