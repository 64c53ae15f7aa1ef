package u

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
)

func testCompressFile(t *testing.T, path string, ext string) {
	d, err := os.ReadFile(path)
	assert.Nil(t, err)

	dstPath := filepath.Join(t.TempDir(), filepath.Base(path)+ext)
	err = CompressFile(dstPath, path)
	assert.Nil(t, err)
	r, err := OpenFileMaybeCompressed(dstPath)
	assert.Nil(t, err)
	defer r.Close()
	var dst bytes.Buffer
	_, err = io.Copy(&dst, r)
	assert.Nil(t, err)
	d2 := dst.Bytes()
	assert.Equal(t, d, d2)
}

func TestCompressFile(t *testing.T) {
	for _, ext := range []string{".gz", ".zstd", ".br"} {
		testCompressFile(t, "compress.go", ext)
	}
}

func TestCompressFileUnknownExt(t *testing.T) {
	dstPath := filepath.Join(t.TempDir(), "compress.go.xz")
	err := CompressFile(dstPath, "compress.go")
	assert.Error(t, err)
	assert.False(t, FileExists(dstPath))
}

func TestCompressData(t *testing.T) {
	d, err := os.ReadFile("compress.go")
	assert.Nil(t, err)

	br, err := BrCompressData(d, 5)
	assert.Nil(t, err)
	assert.True(t, len(br) < len(d))
	d2, err := BrDecompressData(br)
	assert.Nil(t, err)
	assert.Equal(t, d, d2)

	zs, err := ZstdCompressData(d)
	assert.Nil(t, err)
	assert.True(t, len(zs) < len(d))
	d2, err = ZstdDecompressData(zs)
	assert.Nil(t, err)
	assert.Equal(t, d, d2)
}
