package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	markerUp             = "-- +goose Up"
	markerDown           = "-- +goose Down"
	markerStatementBegin = "-- +goose StatementBegin"
	markerStatementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every .sql file in dir: the name must be
// <version>_<slug>.sql with a real timestamp version, versions must be unique,
// and the body must carry Up and Down sections with balanced statement blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	byVersion := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		version, err := parseMigrationName(name)
		if err != nil {
			return err
		}
		if prev, ok := byVersion[version]; ok {
			return fmt.Errorf("migrations %q and %q share version %s", prev, name, version)
		}
		byVersion[version] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		if err := checkMarkers(body); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func parseMigrationName(name string) (string, error) {
	m := migrationFileRe.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("invalid migration filename %q, want %s_<slug>.sql", name, versionLayout)
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return "", fmt.Errorf("migration %q: version %s is not a timestamp", name, m[1])
	}
	return m[1], nil
}

func checkMarkers(body []byte) error {
	var (
		up, down bool
		open     int
	)
	sc := bufio.NewScanner(bytes.NewReader(body))
	for line := 1; sc.Scan(); line++ {
		switch strings.TrimSpace(sc.Text()) {
		case markerUp:
			up = true
		case markerDown:
			if !up {
				return fmt.Errorf("line %d: Down section before Up", line)
			}
			down = true
		case markerStatementBegin:
			if open > 0 {
				return fmt.Errorf("line %d: nested StatementBegin", line)
			}
			open++
		case markerStatementEnd:
			if open == 0 {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open--
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	switch {
	case !up:
		return fmt.Errorf("missing %q", markerUp)
	case !down:
		return fmt.Errorf("missing %q", markerDown)
	case open != 0:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
