package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rnav-scraper/models"
)

// CSV keeps one file per group under a directory
type CSV struct {
	dir string
}

// NewCSV creates a CSV sink rooted at dir
func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

// Path returns the file of a group: "Entre Ríos" → <dir>/entre_ríos_agencias_viaje.csv
func (c *CSV) Path(groupKey string) string {
	return filepath.Join(c.dir, models.Slug(groupKey)+"_agencias_viaje.csv")
}

// AppendRecords adds rows, writing the header only when the file is new
func (c *CSV) AppendRecords(ctx context.Context, groupKey string, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := c.Path(groupKey)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return writeRecords(f, records, isNew)
}

// LoadLatest reads the group file; a missing file yields no records
func (c *CSV) LoadLatest(ctx context.Context, groupKey string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path(groupKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return readRecords(f)
}

// Overwrite replaces the group file through a temporary file and rename
func (c *CSV) Overwrite(ctx context.Context, groupKey string, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := c.Path(groupKey)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRecords(tmp, records, true); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func writeRecords(w io.Writer, records []models.Record, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(models.Columns()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// readRecords maps columns by header name so reordered files still load
func readRecords(r io.Reader) ([]models.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	if _, ok := index["name"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "name")
	}

	columns := models.Columns()
	var records []models.Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make([]string, len(columns))
		for i, col := range columns {
			if j, ok := index[col]; ok && j < len(rec) {
				row[i] = rec[j]
			}
		}
		records = append(records, models.RecordFromRow(row))
	}
	return records, nil
}
