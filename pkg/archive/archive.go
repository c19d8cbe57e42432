// Package archive creates and restores tar.gz backups of server state:
// the account/session database, the telemetry ledger, the content
// directory and the server config. Every payload file is checksummed in
// a manifest so a restore can detect corruption before touching live
// data.
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
	"time"
)

// Manifest describes the contents of a backup.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	GameName  string               `json:"game_name"`
	Players   int                  `json:"players"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within a backup.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt", "sqlite", "content", "conf"
}

// Params holds the inputs needed to create a backup.
type Params struct {
	BoltSnapshotFunc func(destPath string) error // consistent bolt copy, nil = skip
	TelemetryPath    string                      // path to the SQLite ledger, empty = skip
	CheckpointFunc   func() error                // flush the ledger WAL before copy, nil = skip
	ContentDir       string                      // game content directory, empty = skip
	ConfPath         string                      // server config file, empty = skip
	BackupDir        string                      // output directory
	GameName         string                      // for the manifest
	PlayerCount      int                         // accounts in the store, for the manifest
}

// payload is one file scheduled for inclusion in the backup.
type payload struct {
	src      string
	archName string
	kind     string
}

// Create writes a timestamped .tar.gz backup and returns its path.
func Create(params Params) (string, error) {
	if err := os.MkdirAll(params.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", params.BackupDir, err)
	}

	staging, err := os.MkdirTemp("", "termhack-backup-*")
	if err != nil {
		return "", fmt.Errorf("archive: create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	// Databases are staged before the tar is opened, so a snapshot
	// failure leaves no partial output file behind.
	payloads, err := stagePayloads(params, staging)
	if err != nil {
		return "", err
	}

	backupPath := filepath.Join(params.BackupDir,
		fmt.Sprintf("backup-%s.tar.gz", time.Now().Format("20060102-150405")))
	out, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", backupPath, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	manifest := Manifest{
		Version:   1,
		Server:    "termhack",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		GameName:  params.GameName,
		Players:   params.PlayerCount,
		Files:     make(map[string]FileEntry, len(payloads)),
	}
	for _, p := range payloads {
		entry, err := writePayload(tw, p)
		if err != nil {
			return "", err
		}
		manifest.Files[p.archName] = entry
	}
	if err := writeManifest(tw, manifest); err != nil {
		return "", err
	}
	return backupPath, nil
}

// stagePayloads snapshots the databases into the staging directory and
// collects every file the backup will contain.
func stagePayloads(params Params, staging string) ([]payload, error) {
	var payloads []payload

	if params.BoltSnapshotFunc != nil {
		staged := filepath.Join(staging, "state.bolt")
		if err := params.BoltSnapshotFunc(staged); err != nil {
			return nil, fmt.Errorf("archive: bolt snapshot: %w", err)
		}
		payloads = append(payloads, payload{staged, "data/state.bolt", "bolt"})
	}

	if params.TelemetryPath != "" {
		if params.CheckpointFunc != nil {
			if err := params.CheckpointFunc(); err != nil {
				return nil, fmt.Errorf("archive: ledger checkpoint: %w", err)
			}
		}
		staged := filepath.Join(staging, "telemetry.db")
		if err := copyFile(params.TelemetryPath, staged); err != nil {
			return nil, fmt.Errorf("archive: copy ledger: %w", err)
		}
		payloads = append(payloads, payload{staged, "data/telemetry.db", "sqlite"})
	}

	if params.ContentDir != "" {
		err := filepath.WalkDir(params.ContentDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(params.ContentDir, path)
			if err != nil {
				return err
			}
			payloads = append(payloads,
				payload{path, "content/" + filepath.ToSlash(rel), "content"})
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("archive: walk content: %w", err)
		}
	}

	if params.ConfPath != "" {
		if _, err := os.Stat(params.ConfPath); err == nil {
			payloads = append(payloads,
				payload{params.ConfPath, "conf/" + filepath.Base(params.ConfPath), "conf"})
		}
	}

	return payloads, nil
}

// writePayload streams one file into the tar, hashing it as it goes.
func writePayload(tw *tar.Writer, p payload) (FileEntry, error) {
	f, err := os.Open(p.src)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", p.src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", p.src, err)
	}
	hdr := &tar.Header{
		Name:    p.archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", p.archName, err)
	}

	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(tw, digest), f)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", p.archName, err)
	}
	return FileEntry{
		SHA256: hex.EncodeToString(digest.Sum(nil)),
		Size:   n,
		Type:   p.kind,
	}, nil
}

// writeManifest appends manifest.json as the final tar entry, so readers
// can stream the payload first.
func writeManifest(tw *tar.Writer, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}
	hdr := &tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("archive: write manifest: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
