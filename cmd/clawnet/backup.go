package clawnet

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/igorsilveira/clawnet/pkg/store"
	"github.com/spf13/cobra"
)

const (
	archiveDB     = "clawnet.db"
	archiveConfig = "clawnet.toml"
)

var backupCmd = &cobra.Command{
	Use:   "backup [output-path]",
	Short: "Snapshot the node database and config to a tarball",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Restore the node database and config from a backup tarball",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	outPath := fmt.Sprintf("clawnet-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	if len(args) > 0 {
		outPath = args[0]
	}

	tmp, err := os.MkdirTemp("", "clawnet-backup-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, archiveDB)
	if err := snapshotDB(cfg.Store.DSN, snapshot); err != nil {
		return err
	}

	files := map[string]string{archiveDB: snapshot}
	if _, err := os.Stat(configPath()); err == nil {
		files[archiveConfig] = configPath()
	}

	if err := writeArchive(outPath, files); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s (%d files)\n", outPath, len(files))
	return nil
}

// snapshotDB copies a consistent image of the live database with VACUUM
// INTO, which is safe while a node holds it open in WAL mode.
func snapshotDB(dsn, dst string) error {
	if _, err := os.Stat(dsn); err != nil {
		return fmt.Errorf("database %s: %w", dsn, err)
	}
	st, err := store.New(dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	if err := st.DB().Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

func writeArchive(path string, files map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	for name, src := range files {
		if err := addFile(tw, name, src); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addFile(tw *tar.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, in)
	return err
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets := map[string]string{
		archiveDB:     cfg.Store.DSN,
		archiveConfig: configPath(),
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	count := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		target, ok := targets[strings.TrimPrefix(header.Name, "./")]
		if !ok || header.Typeflag != tar.TypeReg {
			continue
		}
		if err := restoreFile(tr, target); err != nil {
			return err
		}
		count++
	}

	// Stale WAL pages would be replayed over the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(cfg.Store.DSN + suffix)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d files into %s\n", count, config.DataDir())
	return nil
}

func restoreFile(r io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing file %s: %w", target, err)
	}
	return out.Close()
}
