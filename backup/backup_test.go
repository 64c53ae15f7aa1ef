package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/drum/codec"
	"github.com/kjk/drum/kvlog"
	"github.com/kjk/drum/u"
)

func TestParseConfig(t *testing.T) {
	t.Setenv(envS3Access, "env-access")
	t.Setenv(envS3Secret, "")
	d := `
s3:
  access: file-access
  secret: file-secret
  bucket: backups
  endpoint: s3.example.com
  prefix: drum/
  keep: 3
http:
  url: http://localhost:8080/upload
  api_key: key
compression: br
timeout: 30s
`
	cfg, err := ParseConfig([]byte(d))
	assert.NoError(t, err)
	assert.Equal(t, "env-access", cfg.S3.Access)
	assert.Equal(t, "file-secret", cfg.S3.Secret)
	assert.Equal(t, "drum/", cfg.S3.Prefix)
	assert.Equal(t, 3, cfg.S3.Keep)
	assert.Equal(t, "key", cfg.HTTP.APIKey)
	assert.Equal(t, ".br", cfg.Compression)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	cfg, err = ParseConfig([]byte("http:\n  url: http://localhost/\n"))
	assert.NoError(t, err)
	assert.Equal(t, ".zstd", cfg.Compression)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Nil(t, cfg.S3)

	_, err = ParseConfig([]byte("compression: .zstd\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("compression: .rar\nhttp:\n  url: http://localhost/\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("s3: [\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	tm := time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)
	name := ObjectName("/data/test.db", tm, ".zstd")
	assert.True(t, strings.HasPrefix(name, "test.db-20261019-150405-"), "name: %s", name)
	assert.True(t, strings.HasSuffix(name, ".zstd"), "name: %s", name)
	assert.NotEqual(t, name, ObjectName("/data/test.db", tm, ".zstd"))
}

func TestBackupsToRemove(t *testing.T) {
	names := []string{
		"bk/other.db-20261017-100000-aaaaaaaa.zstd",
		"bk/test.db-20261017-100000-bbbbbbbb.zstd",
		"bk/test.db-old-20261017-110000-cccccccc.zstd",
		"bk/other.db-20261018-100000-dddddddd.zstd",
		"bk/test.db-20261018-100000-eeeeeeee.zstd",
		"bk/readme.txt",
		"bk/test.db-20261019-100000-ffffffff.zstd",
	}
	got := backupsToRemove(names, "/data/test.db", 2)
	assert.Equal(t, []string{"bk/test.db-20261017-100000-bbbbbbbb.zstd"}, got)

	got = backupsToRemove(names, "/srv/other.db", 1)
	assert.Equal(t, []string{"bk/other.db-20261017-100000-aaaaaaaa.zstd"}, got)

	assert.Equal(t, 0, len(backupsToRemove(names, "/data/test.db", 3)))
	assert.Equal(t, 0, len(backupsToRemove(names, "/data/missing.db", 1)))

	// names made by ObjectName are recognized
	tm := time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)
	name := ObjectName("/data/test.db", tm, ".zstd")
	got = backupsToRemove([]string{name, "test.db-old-" + name[len("test.db-"):]}, "test.db", 0)
	assert.Equal(t, []string{name}, got)
}

func TestNewS3ClientNeedsConfig(t *testing.T) {
	_, err := NewS3Client(context.Background(), nil)
	assert.Error(t, err)
	_, err = NewS3Client(context.Background(), &S3Config{Bucket: "foo"})
	assert.Error(t, err)
}

type uploadServer struct {
	mu      sync.Mutex
	uploads map[string][]byte
	apiKeys []string
}

func (s *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "only PUT", http.StatusMethodNotAllowed)
		return
	}
	d, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[r.URL.Path] = d
	s.apiKeys = append(s.apiKeys, r.Header.Get("X-Api-Key"))
}

func createTestStore(t *testing.T, path string) {
	opts := kvlog.Options[string, string]{
		Keys:   codec.String{},
		Values: codec.String{},
	}
	s, err := kvlog.Open(path, opts)
	assert.NoError(t, err)
	for _, kv := range [][2]string{{"foo", "bar"}, {"a", "b"}, {"foo", "baz"}} {
		_, _, err = s.Insert(kv[0], kv[1])
		assert.NoError(t, err)
	}
	assert.NoError(t, s.Close())
}

func TestRunHTTPAndRestore(t *testing.T) {
	srv := &uploadServer{uploads: map[string][]byte{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	createTestStore(t, dbPath)

	for _, ext := range []string{".zstd", ".br", ".gz"} {
		cfg := &Config{
			HTTP:        &HTTPConfig{URL: ts.URL + "/upload/", APIKey: "secret"},
			Compression: ext,
			Timeout:     time.Minute,
		}
		res, err := Run(context.Background(), cfg, dbPath)
		assert.NoError(t, err)
		assert.Equal(t, u.FileSize(dbPath), res.Size)
		assert.Equal(t, []string{ts.URL + "/upload/" + res.Name}, res.Locations)

		d := srv.uploads["/upload/"+res.Name]
		assert.Equal(t, res.CompressedSize, int64(len(d)))
		assert.Equal(t, "secret", srv.apiKeys[len(srv.apiKeys)-1])

		// restore what was uploaded
		backupPath := filepath.Join(dir, res.Name)
		assert.NoError(t, os.WriteFile(backupPath, d, 0644))
		dstPath := filepath.Join(dir, "restored"+ext+".db")
		st, err := restoreFromFile(dstPath, backupPath)
		assert.NoError(t, err)
		assert.Equal(t, uint64(3), st.Entries)
		assert.Equal(t, 2, st.Live)

		orig, err := os.ReadFile(dbPath)
		assert.NoError(t, err)
		restored, err := os.ReadFile(dstPath)
		assert.NoError(t, err)
		assert.Equal(t, orig, restored)
	}
}

func TestRunHTTPFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	createTestStore(t, dbPath)
	cfg := &Config{
		HTTP:        &HTTPConfig{URL: ts.URL},
		Compression: ".zstd",
		Timeout:     time.Minute,
	}
	_, err := Run(context.Background(), cfg, dbPath)
	assert.Error(t, err)
}

func TestRestoreInvalidBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	createTestStore(t, dbPath)
	orig, err := os.ReadFile(dbPath)
	assert.NoError(t, err)

	// header says there are more entries than there are
	bad := append([]byte{0, 0, 0, 0, 0, 0, 0, 9}, orig[8:]...)
	badPath := filepath.Join(dir, "bad.db")
	assert.NoError(t, os.WriteFile(badPath, bad, 0644))
	compressed := filepath.Join(dir, "bad.db.zstd")
	assert.NoError(t, u.CompressFile(compressed, badPath))

	_, err = restoreFromFile(dbPath, compressed)
	assert.Error(t, err)
	// the destination is not touched
	d, err := os.ReadFile(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, orig, d)
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(entries))
}
