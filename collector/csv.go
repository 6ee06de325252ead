package collector

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-octopus/octopus/extract"
)

// CSV appends results as rows of a CSV file. The header row is written
// before the first data row; without an explicit field list it is taken
// from the first result's keys, in declaration order. List values are
// joined with newlines inside their cell.
type CSV struct {
	path        string
	file        *os.File
	writer      *csv.Writer
	fields      []string
	wroteHeader bool
	count       int
	mu          sync.Mutex
}

// NewCSV creates a CSV collector writing to path, creating parent
// directories as needed. The optional fields pin the column set and order.
func NewCSV(path string, fields ...string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &CSV{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
		fields: fields,
	}, nil
}

// Collect writes one result row. Missing fields become empty cells.
func (c *CSV) Collect(res *extract.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.fields) == 0 {
		c.fields = res.Keys()
	}
	if !c.wroteHeader {
		if err := c.writer.Write(c.fields); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		c.wroteHeader = true
	}

	row := make([]string, len(c.fields))
	for i, field := range c.fields {
		row[i] = cellValue(res.Get(field))
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.count++

	c.writer.Flush()
	return c.writer.Error()
}

// Count returns the number of rows written so far.
func (c *CSV) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close flushes buffered rows and closes the file.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

func cellValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, "\n")
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(x)
	}
}
