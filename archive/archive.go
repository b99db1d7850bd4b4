// Package archive bundles several named outputs into one zip download.
package archive

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"
)

// Entry is one file stored in an archive.
type Entry struct {
	Name string
	Data []byte
}

// ErrEmpty is returned when there is nothing to archive.
var ErrEmpty = errors.New("archive: no entries")

// Build writes entries, in order and under their exact names, into a zip
// archive and returns its bytes.
func Build(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, entry := range entries {
		if entry.Name == "" {
			zw.Close()
			return nil, fmt.Errorf("archive: entry %d has no name", i)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   entry.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("archive: creating entry %q: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("archive: writing entry %q: %w", entry.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalizing: %w", err)
	}
	return buf.Bytes(), nil
}
