package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

const mediaColumns = `id, project_id, kind, url, mime_type, variants, platform, external_id, ` +
	analysisColumns + `, created_at, updated_at`

func scanMedia(row pgx.Row) (*types.Media, error) {
	var m types.Media
	var kind, platform string
	var variants []byte
	var a analysisScan

	dest := []any{&m.ID, &m.ProjectID, &kind, &m.URL, &m.MIMEType, &variants, &platform, &m.ExternalID}
	dest = append(dest, a.dest()...)
	dest = append(dest, &m.CreatedAt, &m.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	m.Kind = types.ContentClass(kind)
	m.Platform = types.VideoPlatform(platform)
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &m.Variants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
		}
	}

	analysis, err := a.analysis()
	if err != nil {
		return nil, err
	}
	m.Analysis = analysis
	return &m, nil
}

// GetMedia retrieves a media item by ID
func (db *DB) GetMedia(ctx context.Context, id uuid.UUID) (*types.Media, error) {
	m, err := scanMedia(db.pool.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "media "+id.String())
	}
	return m, nil
}

// ListMediaByProject returns a project's media in display order
func (db *DB) ListMediaByProject(ctx context.Context, projectID uuid.UUID) ([]types.Media, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE project_id = $1
		 ORDER BY position, created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	var media []types.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		media = append(media, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media: %w", err)
	}
	return media, nil
}

// CreateMedia inserts a media item. ID is generated when unset.
func (db *DB) CreateMedia(ctx context.Context, m *types.Media) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	variants, err := json.Marshal(m.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	if m.Variants == nil {
		variants = []byte("[]")
	}

	var status string
	err = db.pool.QueryRow(ctx,
		`INSERT INTO media (id, project_id, kind, url, mime_type, variants, platform, external_id, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		         (SELECT COUNT(*) FROM media WHERE project_id = $2))
		 RETURNING analysis_status, created_at, updated_at`,
		m.ID, m.ProjectID, string(m.Kind), m.URL, m.MIMEType, variants, string(m.Platform), m.ExternalID,
	).Scan(&status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create media: %w", err)
	}
	m.Status = types.AnalysisStatus(status)
	return nil
}
