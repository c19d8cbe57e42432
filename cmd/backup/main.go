// Command backup creates, lists and restores tar.gz backups of termhack
// server state: the account database, the telemetry ledger, the content
// directory and the server config.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hackmesh/termhack/pkg/archive"
	"github.com/hackmesh/termhack/pkg/boltstore"
	"github.com/hackmesh/termhack/pkg/game"
	"github.com/hackmesh/termhack/pkg/telemetry"
)

func main() {
	confPath := flag.String("conf", "", "Path to server config YAML")
	backupDir := flag.String("dir", "backups", "Backup directory")
	doCreate := flag.Bool("create", false, "Create a new backup")
	doList := flag.Bool("list", false, "List existing backups")
	doRestore := flag.String("restore", "", "Restore from the given backup file")
	flag.Parse()

	if !*doCreate && !*doList && *doRestore == "" {
		fmt.Fprintln(os.Stderr, "Usage: backup [-conf <file>] [-dir <dir>] <mode>")
		fmt.Fprintln(os.Stderr, "  -create            Create a new backup")
		fmt.Fprintln(os.Stderr, "  -list              List existing backups")
		fmt.Fprintln(os.Stderr, "  -restore <file>    Restore a backup (server must be stopped)")
		os.Exit(1)
	}

	conf := game.DefaultConf()
	if *confPath != "" {
		loaded, err := game.LoadConf(*confPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		conf = loaded
	}

	switch {
	case *doCreate:
		createBackup(conf, *confPath, *backupDir)
	case *doList:
		listBackups(*backupDir)
	default:
		restoreBackup(conf, *confPath, *doRestore)
	}
}

func createBackup(conf game.GameConf, confPath, backupDir string) {
	params := archive.Params{
		ContentDir: conf.ContentDir,
		ConfPath:   confPath,
		BackupDir:  backupDir,
		GameName:   conf.Name,
	}

	if conf.BoltPath != "" {
		store, err := boltstore.Open(conf.BoltPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		params.BoltSnapshotFunc = store.Snapshot
		if names, err := store.AccountNames(); err == nil {
			params.PlayerCount = len(names)
		}
	}

	if conf.TelemetryPath != "" {
		ledger, err := telemetry.Open(conf.TelemetryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()
		params.TelemetryPath = conf.TelemetryPath
		params.CheckpointFunc = ledger.Checkpoint
	}

	path, err := archive.Create(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup written: %s\n", path)
}

func listBackups(backupDir string) {
	backups, err := archive.List(backupDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return
	}
	fmt.Printf("%-28s %-22s %-20s %8s %8s\n", "FILE", "TIMESTAMP", "GAME", "PLAYERS", "SIZE")
	for _, b := range backups {
		fmt.Printf("%-28s %-22s %-20s %8d %8d\n",
			b.Filename, b.Timestamp, b.GameName, b.Players, b.Size)
	}
}

func restoreBackup(conf game.GameConf, confPath, backupPath string) {
	res, err := archive.Restore(archive.RestoreParams{
		BackupPath:    backupPath,
		BoltDest:      conf.BoltPath,
		TelemetryDest: conf.TelemetryPath,
		ContentDest:   conf.ContentDir,
		ConfDest:      confPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Restored %d files.\n", res.FilesRestored)
	for _, s := range res.Skipped {
		fmt.Printf("Skipped %s (no destination configured).\n", s)
	}
}
