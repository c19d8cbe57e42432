package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RestoreParams holds the inputs needed to restore a backup. Empty
// destinations skip their section of the backup.
type RestoreParams struct {
	BackupPath    string // path to the .tar.gz backup
	BoltDest      string // destination for the state database
	TelemetryDest string // destination for the SQLite ledger
	ContentDest   string // destination directory for game content
	ConfDest      string // destination for the server config file
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	FilesRestored int
	Skipped       []string
}

// Restore extracts a backup, validates every checksum against the
// manifest, and only then copies files to their destinations. The server
// must not be running against the destination databases.
func Restore(params RestoreParams) (*RestoreResult, error) {
	work, err := os.MkdirTemp("", "termhack-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	manifest, err := unpack(params.BackupPath, work)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	// Every checksum is verified before anything is written to a
	// destination, so a corrupt backup cannot half-restore.
	for archName, entry := range manifest.Files {
		if err := verify(filepath.Join(work, filepath.FromSlash(archName)), entry.SHA256); err != nil {
			return nil, fmt.Errorf("restore: %s: %w", archName, err)
		}
	}

	res := &RestoreResult{}
	place := func(src, dest, label string) error {
		if _, err := os.Stat(src); err != nil {
			return nil // not in this backup
		}
		if dest == "" {
			res.Skipped = append(res.Skipped, label)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("restore: %s: %w", label, err)
		}
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("restore: %s: %w", label, err)
		}
		res.FilesRestored++
		return nil
	}

	if err := place(filepath.Join(work, "data", "state.bolt"), params.BoltDest, "data/state.bolt"); err != nil {
		return nil, err
	}
	if err := place(filepath.Join(work, "data", "telemetry.db"), params.TelemetryDest, "data/telemetry.db"); err != nil {
		return nil, err
	}

	contentSrc := filepath.Join(work, "content")
	if st, err := os.Stat(contentSrc); err == nil && st.IsDir() {
		if params.ContentDest == "" {
			res.Skipped = append(res.Skipped, "content/")
		} else {
			err := filepath.WalkDir(contentSrc, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, err := filepath.Rel(contentSrc, path)
				if err != nil {
					return err
				}
				return place(path, filepath.Join(params.ContentDest, rel), "content/"+filepath.ToSlash(rel))
			})
			if err != nil {
				return nil, fmt.Errorf("restore: content: %w", err)
			}
		}
	}

	confSrc := filepath.Join(work, "conf")
	if st, err := os.Stat(confSrc); err == nil && st.IsDir() {
		entries, err := os.ReadDir(confSrc)
		if err != nil {
			return nil, fmt.Errorf("restore: read conf dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := place(filepath.Join(confSrc, entry.Name()), params.ConfDest, "conf/"+entry.Name()); err != nil {
				return nil, err
			}
		}
	}

	return res, nil
}

// unpack extracts a backup into destDir and returns its parsed manifest.
func unpack(backupPath, destDir string) (*Manifest, error) {
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

	var manifest *Manifest
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeDir {
			continue
		}

		// Reject entries that would escape the destination.
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)) {
			return nil, fmt.Errorf("invalid backup entry: %s", hdr.Name)
		}

		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.Name == "manifest.json" {
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return nil, fmt.Errorf("parse manifest: %w", err)
			}
			manifest = &m
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, err
		}
		out, err := os.Create(target)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return nil, err
		}
		if err := out.Close(); err != nil {
			return nil, err
		}
	}
	if manifest == nil {
		return nil, errNoManifest
	}
	return manifest, nil
}

// verify checks a file's SHA-256 against the expected hex digest.
func verify(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return err
	}
	if hex.EncodeToString(digest.Sum(nil)) != expected {
		return fmt.Errorf("checksum mismatch, backup may be corrupt")
	}
	return nil
}
