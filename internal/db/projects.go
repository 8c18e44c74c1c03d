package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

const projectColumns = `id, portfolio_id, title, description, ` + analysisColumns + `, created_at, updated_at`

func scanProject(row pgx.Row) (*types.Project, error) {
	var p types.Project
	var a analysisScan

	dest := []any{&p.ID, &p.PortfolioID, &p.Title, &p.Description}
	dest = append(dest, a.dest()...)
	dest = append(dest, &p.CreatedAt, &p.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	analysis, err := a.analysis()
	if err != nil {
		return nil, err
	}
	p.Analysis = analysis
	return &p, nil
}

func (db *DB) queryProjects(ctx context.Context, query string, args ...any) ([]types.Project, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// GetProject retrieves a project by ID
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "project "+id.String())
	}
	return p, nil
}

// ListProjectsByPortfolio returns every project in a portfolio
func (db *DB) ListProjectsByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]types.Project, error) {
	return db.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE portfolio_id = $1
		 ORDER BY created_at, id`,
		portfolioID,
	)
}

// ListAnalyzedProjects returns the projects in a portfolio that have both a
// summary and an embedding.
func (db *DB) ListAnalyzedProjects(ctx context.Context, portfolioID uuid.UUID) ([]types.Project, error) {
	return db.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE portfolio_id = $1 AND summary IS NOT NULL AND embedding IS NOT NULL
		 ORDER BY created_at, id`,
		portfolioID,
	)
}

// CreateProject inserts a project. ID is generated when unset.
func (db *DB) CreateProject(ctx context.Context, p *types.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var status string
	err := db.pool.QueryRow(ctx,
		`INSERT INTO projects (id, portfolio_id, title, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING analysis_status, created_at, updated_at`,
		p.ID, p.PortfolioID, p.Title, p.Description,
	).Scan(&status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	p.Status = types.AnalysisStatus(status)
	return nil
}

// GetPortfolio retrieves a portfolio by ID
func (db *DB) GetPortfolio(ctx context.Context, id uuid.UUID) (*types.Portfolio, error) {
	var p types.Portfolio
	var a analysisScan

	dest := []any{&p.ID, &p.CreatorID, &p.Title}
	dest = append(dest, a.dest()...)
	dest = append(dest, &p.CreatedAt, &p.UpdatedAt)

	err := db.pool.QueryRow(ctx,
		`SELECT id, creator_id, title, `+analysisColumns+`, created_at, updated_at
		 FROM portfolios WHERE id = $1`,
		id,
	).Scan(dest...)
	if err != nil {
		return nil, notFound(err, "portfolio "+id.String())
	}

	analysis, err := a.analysis()
	if err != nil {
		return nil, err
	}
	p.Analysis = analysis
	return &p, nil
}

// CreatePortfolio inserts a portfolio. ID is generated when unset.
func (db *DB) CreatePortfolio(ctx context.Context, p *types.Portfolio) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var status string
	err := db.pool.QueryRow(ctx,
		`INSERT INTO portfolios (id, creator_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING analysis_status, created_at, updated_at`,
		p.ID, p.CreatorID, p.Title,
	).Scan(&status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.Status = types.AnalysisStatus(status)
	return nil
}

// GetCreator retrieves a creator by ID
func (db *DB) GetCreator(ctx context.Context, id uuid.UUID) (*types.Creator, error) {
	var c types.Creator
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, role, bio FROM creators WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Role, &c.Bio)
	if err != nil {
		return nil, notFound(err, "creator "+id.String())
	}
	return &c, nil
}

// CreateCreator inserts a creator. ID is generated when unset.
func (db *DB) CreateCreator(ctx context.Context, c *types.Creator) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO creators (id, name, role, bio) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Role, c.Bio,
	)
	if err != nil {
		return fmt.Errorf("failed to create creator: %w", err)
	}
	return nil
}
