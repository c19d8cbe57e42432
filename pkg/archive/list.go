package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Info holds metadata about an existing backup file.
type Info struct {
	Path      string // full filesystem path
	Filename  string // base filename
	Size      int64  // file size in bytes
	Timestamp string // from manifest, or file mod time
	GameName  string // from manifest
	Players   int    // from manifest
}

// List scans a backup directory and returns info about every .tar.gz
// backup in it, sorted newest-first.
func List(backupDir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(backupDir, "*.tar.gz"))
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", backupDir, err)
	}

	backups := make([]Info, 0, len(matches))
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		bi := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().Format("2006-01-02 15:04:05"),
		}
		// Backups without a readable manifest still list, just with
		// thinner metadata.
		if m, err := readManifest(path); err == nil {
			bi.Timestamp = m.Timestamp
			bi.GameName = m.GameName
			bi.Players = m.Players
		}
		backups = append(backups, bi)
	}

	// RFC3339 timestamps sort lexically.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp > backups[j].Timestamp
	})
	return backups, nil
}

var errNoManifest = errors.New("manifest.json not found in backup")

// readManifest scans a backup for its manifest.json entry.
func readManifest(backupPath string) (*Manifest, error) {
	f, err := os.Open(backupPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		switch {
		case err == io.EOF:
			return nil, errNoManifest
		case err != nil:
			return nil, err
		case hdr.Name != "manifest.json":
			continue
		}
		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}
}
