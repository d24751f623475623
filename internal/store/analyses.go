package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DeusData/importgraph/internal/deadcode"
	"github.com/DeusData/importgraph/internal/graph"
)

const rowsBatchSize = 200

// Analysis is one saved run.
type Analysis struct {
	ID        int64            `json:"id"`
	Project   string           `json:"project"`
	CreatedAt string           `json:"created_at"`
	Snapshot  *graph.Snapshot  `json:"graph"`
	Report    *deadcode.Report `json:"report"`
}

// SaveAnalysis stores snap and report as the latest analysis of project.
// The queryable files/edges/exports tables are replaced; earlier analyses
// remain in the history.
func (s *Store) SaveAnalysis(project string, snap *graph.Snapshot, report *deadcode.Report) (int64, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	var id int64
	err = s.WithTransaction(func(tx *Store) error {
		if err := tx.UpsertProject(project, snap.Root); err != nil {
			return err
		}
		for _, table := range []string{"files", "edges", "exports"} {
			if _, err := tx.q.Exec("DELETE FROM "+table+" WHERE project=?", project); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		if err := tx.insertFiles(project, snap.Files, report); err != nil {
			return err
		}
		if err := tx.insertEdges(project, snap.Edges); err != nil {
			return err
		}
		if err := tx.insertExports(project, snap.Files); err != nil {
			return err
		}
		res, err := tx.q.Exec(`INSERT INTO analyses (project, created_at, snapshot, report) VALUES (?, ?, ?, ?)`,
			project, Now(), string(snapJSON), string(reportJSON))
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// LoadAnalysis returns the latest analysis of project.
func (s *Store) LoadAnalysis(project string) (*Analysis, error) {
	var a Analysis
	var snapJSON, reportJSON string
	err := s.q.QueryRow(`SELECT id, project, created_at, snapshot, report FROM analyses
		WHERE project=? ORDER BY id DESC LIMIT 1`, project).
		Scan(&a.ID, &a.Project, &a.CreatedAt, &snapJSON, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis of %q: %w", project, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(snapJSON), &a.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &a.Report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &a, nil
}

func (s *Store) insertFiles(project string, files []*graph.FileRecord, report *deadcode.Report) error {
	return chunked(len(files), func(lo, hi int) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO files (project, id, kind, language, is_entry, is_exit, parse_failed, dead) VALUES `)
		args := make([]any, 0, (hi-lo)*8)
		for i, f := range files[lo:hi] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?,?,?,?,?,?)")
			dead := report != nil && report.IsDead(f.ID)
			args = append(args, project, f.ID, string(f.Kind), f.Language,
				boolInt(f.IsEntry), boolInt(f.IsExit), boolInt(f.ParseFailed), boolInt(dead))
		}
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("insert file batch: %w", err)
		}
		return nil
	})
}

func (s *Store) insertEdges(project string, edges []graph.Edge) error {
	return chunked(len(edges), func(lo, hi int) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO edges (project, source, target, cyclic) VALUES `)
		args := make([]any, 0, (hi-lo)*4)
		for i, e := range edges[lo:hi] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?,?)")
			args = append(args, project, e.Source, e.Target, boolInt(e.Cyclic))
		}
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("insert edge batch: %w", err)
		}
		return nil
	})
}

type exportRow struct {
	file string
	name string
	info *graph.ExportInfo
}

func (s *Store) insertExports(project string, files []*graph.FileRecord) error {
	var exports []exportRow
	for _, f := range files {
		for name, info := range f.ExportedSymbols {
			exports = append(exports, exportRow{file: f.ID, name: name, info: info})
		}
	}
	return chunked(len(exports), func(lo, hi int) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO exports (project, file, name, refs, reexport, from_file) VALUES `)
		args := make([]any, 0, (hi-lo)*6)
		for i, e := range exports[lo:hi] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?,?,?,?)")
			args = append(args, project, e.file, e.name, e.info.References, boolInt(e.info.ReExport), e.info.From)
		}
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("insert export batch: %w", err)
		}
		return nil
	})
}

// chunked calls fn over [0,n) in windows of rowsBatchSize.
func chunked(n int, fn func(lo, hi int) error) error {
	for lo := 0; lo < n; lo += rowsBatchSize {
		hi := min(lo+rowsBatchSize, n)
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}
