// Package backup uploads compressed snapshots of a store file to S3
// and / or an HTTP server and restores them.
package backup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/kjk/drum/atomicfile"
	"github.com/kjk/drum/codec"
	"github.com/kjk/drum/kvlog"
	"github.com/kjk/drum/log"
	"github.com/kjk/drum/u"
	"golang.org/x/sync/errgroup"
)

type Result struct {
	// name of the backup, unique
	Name string
	// size of the store file and of compressed backup
	Size           int64
	CompressedSize int64
	// where the backup was uploaded e.g. "s3://bucket/backups/foo.db-..."
	Locations []string
}

// ObjectName returns a unique name of a backup of a store file
// e.g. "test.db-20261019-150405-1b4e28ba.zstd"
// Names of backups of the same file sort by time of creation.
func ObjectName(dbPath string, t time.Time, ext string) string {
	id := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s-%s%s", filepath.Base(dbPath), t.UTC().Format(objectTimeFormat), id, ext)
}

func uploadHTTP(ctx context.Context, cfg *HTTPConfig, name string, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	uri := strings.TrimSuffix(cfg.URL, "/") + "/" + name
	r := requests.
		URL(uri).
		Method(http.MethodPut).
		BodyReader(f).
		ContentType(u.MimeTypeFromFileName(name))
	if cfg.APIKey != "" {
		r = r.Header("X-Api-Key", cfg.APIKey)
	}
	if err = r.Fetch(ctx); err != nil {
		return "", fmt.Errorf("backup: PUT %s failed: %w", uri, err)
	}
	return uri, nil
}

func uploadS3(ctx context.Context, cfg *S3Config, dbPath string, name string, path string) (string, error) {
	c, err := NewS3Client(ctx, cfg)
	if err != nil {
		return "", err
	}
	remotePath := c.RemotePath(name)
	if _, err = c.UploadFile(ctx, remotePath, path); err != nil {
		return "", fmt.Errorf("backup: upload of '%s' failed: %w", remotePath, err)
	}
	if cfg.Keep > 0 {
		removeOldBackups(ctx, c, dbPath, cfg.Keep)
	}
	return "s3://" + c.Bucket + "/" + remotePath, nil
}

const objectTimeFormat = "20060102-150405"

// backupsToRemove returns backups of dbPath other than the newest keep.
// names are sorted oldest first. Backups of other store files are skipped.
func backupsToRemove(names []string, dbPath string, keep int) []string {
	prefix := filepath.Base(dbPath) + "-"
	var res []string
	for _, name := range names {
		rest, ok := strings.CutPrefix(path.Base(name), prefix)
		if !ok || len(rest) < len(objectTimeFormat) {
			continue
		}
		if _, err := time.Parse(objectTimeFormat, rest[:len(objectTimeFormat)]); err != nil {
			continue
		}
		res = append(res, name)
	}
	if len(res) <= keep {
		return nil
	}
	return res[:len(res)-keep]
}

// failures are logged, the backup itself succeeded
func removeOldBackups(ctx context.Context, c *S3Client, dbPath string, keep int) {
	names, err := c.List(ctx)
	if log.IfErrf(err) {
		return
	}
	for _, name := range backupsToRemove(names, dbPath, keep) {
		err = c.Remove(ctx, name)
		if log.IfErrf(err, "backup: failed to remove '%s': %v", name, err) {
			return
		}
		log.Verbosef("backup: removed old backup '%s'\n", name)
	}
}

// Run compresses the store file at dbPath and uploads it to all configured
// destinations in parallel. The store must not be written to while Run
// is running.
func Run(ctx context.Context, cfg *Config, dbPath string) (*Result, error) {
	timeStart := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	name := ObjectName(dbPath, timeStart, cfg.Compression)
	tmpDir, err := os.MkdirTemp("", "drum-backup")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	compressedPath := filepath.Join(tmpDir, name)
	if err = u.CompressFile(compressedPath, dbPath); err != nil {
		return nil, err
	}
	res := &Result{
		Name:           name,
		Size:           u.FileSize(dbPath),
		CompressedSize: u.FileSize(compressedPath),
	}

	var locS3, locHTTP string
	g, gctx := errgroup.WithContext(ctx)
	if cfg.S3 != nil {
		g.Go(func() error {
			var err error
			locS3, err = uploadS3(gctx, cfg.S3, dbPath, name, compressedPath)
			return err
		})
	}
	if cfg.HTTP != nil {
		g.Go(func() error {
			var err error
			locHTTP, err = uploadHTTP(gctx, cfg.HTTP, name, compressedPath)
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	for _, loc := range []string{locS3, locHTTP} {
		if loc != "" {
			res.Locations = append(res.Locations, loc)
		}
	}
	log.EventWithDuration("backup", time.Since(timeStart), "name", name, "size", res.Size, "compressed", res.CompressedSize)
	return res, nil
}

// restoreFromFile decompresses backup at path into dstPath. The backup is
// verified to be a valid store before it replaces dstPath.
func restoreFromFile(dstPath string, path string) (kvlog.Stats, error) {
	var st kvlog.Stats
	r, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		return st, err
	}
	defer r.Close()

	f, err := atomicfile.New(dstPath)
	if err != nil {
		return st, err
	}
	defer f.RemoveIfNotClosed()
	if _, err = io.Copy(f, r); err != nil {
		return st, err
	}

	// we don't know the types of keys and values but we can check
	// that the header and all entries are there
	opts := kvlog.Options[string, string]{
		Keys:   codec.String{},
		Values: codec.String{},
	}
	s, err := kvlog.Reopen(f, opts)
	if err != nil {
		return st, fmt.Errorf("backup: '%s' is not a valid store: %w", path, err)
	}
	st = s.Stats()
	return st, f.Close()
}

// Restore downloads backup remotePath from S3 and atomically replaces
// the store file dstPath with it
func Restore(ctx context.Context, cfg *Config, remotePath string, dstPath string) (kvlog.Stats, error) {
	var st kvlog.Stats
	if cfg.S3 == nil {
		return st, fmt.Errorf("backup: restore needs s3 config")
	}
	timeStart := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := NewS3Client(ctx, cfg.S3)
	if err != nil {
		return st, err
	}
	tmpDir, err := os.MkdirTemp("", "drum-restore")
	if err != nil {
		return st, err
	}
	defer os.RemoveAll(tmpDir)

	// extension of the file tells how to decompress it
	tmpPath := filepath.Join(tmpDir, path.Base(remotePath))
	if err = c.DownloadFileAtomically(ctx, tmpPath, c.RemotePath(remotePath)); err != nil {
		return st, err
	}
	st, err = restoreFromFile(dstPath, tmpPath)
	if err != nil {
		return st, err
	}
	log.EventWithDuration("restore", time.Since(timeStart), "remote", remotePath, "path", dstPath, "entries", st.Entries)
	return st, nil
}

// List lists backups in S3
func List(ctx context.Context, cfg *Config) ([]string, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("backup: listing needs s3 config")
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	c, err := NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return c.List(ctx)
}
