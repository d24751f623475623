package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a project has no saved analysis.
var ErrNotFound = errors.New("not found")

// Project is a project with at least one saved analysis.
type Project struct {
	Name      string `json:"name"`
	RootPath  string `json:"root_path"`
	IndexedAt string `json:"indexed_at"`
	Files     int    `json:"files"`
	Edges     int    `json:"edges"`
	DeadFiles int    `json:"dead_files"`
	Analyses  int    `json:"analyses"`
}

// UpsertProject creates or updates a project record.
func (s *Store) UpsertProject(name, rootPath string) error {
	_, err := s.q.Exec(`
		INSERT INTO projects (name, root_path, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET indexed_at=excluded.indexed_at, root_path=excluded.root_path`,
		name, rootPath, Now())
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject returns a project with its counts.
func (s *Store) GetProject(name string) (*Project, error) {
	p, err := scanProject(s.q.QueryRow(projectQuery+` WHERE p.name=?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	return p, err
}

// ListProjects returns every stored project ordered by name.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.q.Query(projectQuery + ` ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var result []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteProject deletes a project and all associated data (CASCADE).
func (s *Store) DeleteProject(name string) error {
	_, err := s.q.Exec("DELETE FROM projects WHERE name=?", name)
	return err
}

const projectQuery = `
	SELECT p.name, p.root_path, p.indexed_at,
		(SELECT COUNT(*) FROM files f WHERE f.project=p.name),
		(SELECT COUNT(*) FROM edges e WHERE e.project=p.name),
		(SELECT COUNT(*) FROM files f WHERE f.project=p.name AND f.dead=1),
		(SELECT COUNT(*) FROM analyses a WHERE a.project=p.name)
	FROM projects p`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	if err := row.Scan(&p.Name, &p.RootPath, &p.IndexedAt, &p.Files, &p.Edges, &p.DeadFiles, &p.Analyses); err != nil {
		return nil, err
	}
	return &p, nil
}
