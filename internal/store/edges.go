package store

import "fmt"

// Dependencies returns the files file imports in the latest analysis.
func (s *Store) Dependencies(project, file string) ([]string, error) {
	return s.column(`SELECT target FROM edges WHERE project=? AND source=? ORDER BY target`, project, file)
}

// Dependents returns the files importing file in the latest analysis.
func (s *Store) Dependents(project, file string) ([]string, error) {
	return s.column(`SELECT source FROM edges WHERE project=? AND target=? ORDER BY source`, project, file)
}

// CyclicEdges returns the edges that take part in an import cycle as
// source/target pairs.
func (s *Store) CyclicEdges(project string) ([][2]string, error) {
	rows, err := s.q.Query(`SELECT source, target FROM edges WHERE project=? AND cyclic=1 ORDER BY source, target`, project)
	if err != nil {
		return nil, fmt.Errorf("cyclic edges: %w", err)
	}
	defer rows.Close()
	var result [][2]string
	for rows.Next() {
		var e [2]string
		if err := rows.Scan(&e[0], &e[1]); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// UnusedExports returns unreferenced exported names grouped by file.
func (s *Store) UnusedExports(project string) (map[string][]string, error) {
	rows, err := s.q.Query(`SELECT e.file, e.name FROM exports e
		JOIN files f ON f.project=e.project AND f.id=e.file
		WHERE e.project=? AND e.refs=0 AND e.name != '*' AND f.parse_failed=0
		ORDER BY e.file, e.name`, project)
	if err != nil {
		return nil, fmt.Errorf("unused exports: %w", err)
	}
	defer rows.Close()
	result := make(map[string][]string)
	for rows.Next() {
		var file, name string
		if err := rows.Scan(&file, &name); err != nil {
			return nil, err
		}
		result[file] = append(result[file], name)
	}
	return result, rows.Err()
}

func (s *Store) column(query string, args ...any) ([]string, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	result := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
