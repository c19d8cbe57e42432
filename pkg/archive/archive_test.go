package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestState(t *testing.T) (contentDir, boltPath, ledgerPath, confPath string) {
	t.Helper()
	dir := t.TempDir()

	contentDir = filepath.Join(dir, "content")
	if err := os.MkdirAll(filepath.Join(contentDir, "extra"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(contentDir, "world.yaml"):       "hosts: []\n",
		filepath.Join(contentDir, "missions.yaml"):    "missions: []\n",
		filepath.Join(contentDir, "extra", "hint.md"): "look closer\n",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	boltPath = filepath.Join(dir, "state.bolt")
	if err := os.WriteFile(boltPath, []byte("bolt-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	ledgerPath = filepath.Join(dir, "telemetry.db")
	if err := os.WriteFile(ledgerPath, []byte("sqlite-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	confPath = filepath.Join(dir, "termhack.yaml")
	if err := os.WriteFile(confPath, []byte("name: Test Game\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return contentDir, boltPath, ledgerPath, confPath
}

func TestCreateListRestoreRoundTrip(t *testing.T) {
	contentDir, boltPath, ledgerPath, confPath := writeTestState(t)
	backupDir := t.TempDir()

	path, err := Create(Params{
		BoltSnapshotFunc: func(dest string) error {
			return copyFile(boltPath, dest)
		},
		TelemetryPath: ledgerPath,
		ContentDir:    contentDir,
		ConfPath:      confPath,
		BackupDir:     backupDir,
		GameName:      "Test Game",
		PlayerCount:   3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(path, ".tar.gz") {
		t.Errorf("backup path %q does not end in .tar.gz", path)
	}

	backups, err := List(backupDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("List returned %d backups, want 1", len(backups))
	}
	if backups[0].GameName != "Test Game" || backups[0].Players != 3 {
		t.Errorf("manifest metadata = %q/%d, want Test Game/3",
			backups[0].GameName, backups[0].Players)
	}

	restoreDir := t.TempDir()
	res, err := Restore(RestoreParams{
		BackupPath:    path,
		BoltDest:      filepath.Join(restoreDir, "state.bolt"),
		TelemetryDest: filepath.Join(restoreDir, "telemetry.db"),
		ContentDest:   filepath.Join(restoreDir, "content"),
		ConfDest:      filepath.Join(restoreDir, "termhack.yaml"),
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	// bolt + ledger + conf + 3 content files
	if res.FilesRestored != 6 {
		t.Errorf("FilesRestored = %d, want 6", res.FilesRestored)
	}

	got, err := os.ReadFile(filepath.Join(restoreDir, "state.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bolt-bytes" {
		t.Errorf("restored bolt = %q, want bolt-bytes", got)
	}
	got, err = os.ReadFile(filepath.Join(restoreDir, "content", "extra", "hint.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "look closer\n" {
		t.Errorf("restored nested content = %q", got)
	}
}

func TestRestoreSkipsEmptyDestinations(t *testing.T) {
	contentDir, boltPath, _, _ := writeTestState(t)
	backupDir := t.TempDir()

	path, err := Create(Params{
		BoltSnapshotFunc: func(dest string) error {
			return copyFile(boltPath, dest)
		},
		ContentDir: contentDir,
		BackupDir:  backupDir,
		GameName:   "Test Game",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := Restore(RestoreParams{BackupPath: path})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.FilesRestored != 0 {
		t.Errorf("FilesRestored = %d, want 0", res.FilesRestored)
	}
	if len(res.Skipped) == 0 {
		t.Error("expected skipped entries for empty destinations")
	}
}

func TestCreateWithoutOptionalSections(t *testing.T) {
	backupDir := t.TempDir()
	path, err := Create(Params{BackupDir: backupDir, GameName: "Bare"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m, err := readManifest(path)
	if err != nil {
		t.Fatalf("readManifest: %v", err)
	}
	if len(m.Files) != 0 {
		t.Errorf("manifest has %d files, want 0", len(m.Files))
	}
}
