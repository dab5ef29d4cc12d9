package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tlcaputi/gtrends/pkg/merge"
)

// TimestampLayout formats the leading timestamp column.
const TimestampLayout = "2006-01-02"

// EncodeCSV writes table with a leading "timestamp" column. Missing cells are
// empty.
func EncodeCSV(w io.Writer, table *merge.Table) error {
	cw := csv.NewWriter(w)

	header := append([]string{"timestamp"}, table.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		record[0] = row.Time.Format(TimestampLayout)
		for i, v := range row.Values {
			record[i+1] = ""
			if v.Valid {
				record[i+1] = strconv.FormatFloat(v.V, 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Dir writes each table to "<dir>/<name>_<granularity>.csv". Files are
// written to a temporary name and renamed into place.
type Dir struct {
	root string
}

// NewDir creates a directory sink, creating root if needed.
func NewDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("csv sink: output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	return &Dir{root: root}, nil
}

// Path returns the destination file of key.
func (d *Dir) Path(key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	name := key.String() + ".csv"
	if name != filepath.Base(name) || strings.ContainsAny(key.Name, `/\`) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, key.Name)
	}
	return filepath.Join(d.root, name), nil
}

// Write implements Sink.
func (d *Dir) Write(ctx context.Context, key Key, table *merge.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := d.Path(key)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodeCSV(&buf, table); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := writeAtomic(dest, &buf); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}

	TablesWritten.WithLabelValues("csv").Inc()
	return nil
}

// Close implements Sink.
func (d *Dir) Close() error {
	return nil
}

func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if _, err := io.Copy(bw, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
