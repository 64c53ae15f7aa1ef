package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
)

func assertFileExists(t *testing.T, path string) {
	st, err := os.Stat(path)
	assert.NoError(t, err, "file '%s' doesn't exist", path)
	assert.True(t, st.Mode().IsRegular(), "path '%s' exists but is not a file", path)
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file '%s' exists, expected to not exist", path)
}

func assertFileSizeEqual(t *testing.T, path string, n int64) {
	st, err := os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, n, st.Size())
}

func TestSimulateError(t *testing.T) {
	// test cleanup after write
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	assertFileExists(t, f.tmpPath)
	_, err = f.Write([]byte("foo"))
	assert.NoError(t, err)
	// simulate an error
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	err = f.Close()
	assert.Equal(t, errSimulated, err)
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
	// on second Close() should get the same error
	err = f.Close()
	assert.Equal(t, errSimulated, err)
}

func writeWithPanicClose(t *testing.T, f *File) {
	defer f.Close()

	_, err := f.Write([]byte("foo"))
	assert.NoError(t, err)
	panic("simulating a crash")
}

func writeWithPanicCancel(t *testing.T, f *File) {
	defer f.RemoveIfNotClosed()

	_, err := f.Write([]byte("foo"))
	assert.NoError(t, err)
	panic("simulating a crash")
}

func TestWriteWithPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	assertFileExists(t, f.tmpPath)
	assert.Panics(t, func() { writeWithPanicClose(t, f) })
	assertFileExists(t, dst)
}

func TestCancel(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	assertFileExists(t, f.tmpPath)
	assert.Panics(t, func() { writeWithPanicCancel(t, f) })
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "store.db")
	{
		f, err := New(dst)
		assert.NoError(t, err)
		assertFileExists(t, f.tmpPath)
		_ = f.Close()
		assertFileExists(t, dst)
		assertFileSizeEqual(t, dst, 0)
		assertFileNotExists(t, f.tmpPath)
	}

	d, err := os.ReadFile("atomic_file.go")
	assert.NoError(t, err)

	{
		f, err := New(dst)
		assert.NoError(t, err)
		n, err := f.Write(d)
		assert.NoError(t, err)
		assert.Equal(t, len(d), n)
		// destination is not touched until Close()
		assertFileSizeEqual(t, dst, 0)
		err = f.Close()
		assert.NoError(t, err)
		assertFileNotExists(t, f.tmpPath)
		assertFileSizeEqual(t, dst, int64(len(d)))
		// calling Close twice is a no-op
		err = f.Close()
		assert.NoError(t, err)
	}
	_ = os.Remove(dst)

	{
		// check that Cancel sets an error state
		f, err := New(dst)
		assert.NoError(t, err)
		f.RemoveIfNotClosed()
		_, err = f.Write(d)
		assert.Equal(t, ErrCancelled, err)
		err = f.Close()
		assert.Equal(t, ErrCancelled, err)
		err = f.Close()
		assert.Equal(t, ErrCancelled, err)
		assertFileNotExists(t, dst)
	}

	// we can't create files in directories that don't exist
	// so verify we do an early check (no point writing to a file
	// if it couldn't be created at the end)
	{
		f, err := New(filepath.Join(dir, "foo", "bar.db"))
		assert.Error(t, err)
		assert.Nil(t, f)
	}
}

func TestReadBack(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	defer f.RemoveIfNotClosed()

	_, err = f.Write([]byte("hello world"))
	assert.NoError(t, err)

	off, err := f.Seek(6, io.SeekStart)
	assert.NoError(t, err)
	assert.Equal(t, int64(6), off)
	d, err := io.ReadAll(f)
	assert.NoError(t, err)
	assert.Equal(t, "world", string(d))

	// reading until the end is not an error that cancels the file
	buf := make([]byte, 4)
	_, err = f.Read(buf)
	assert.Equal(t, io.EOF, err)

	err = f.Truncate(5)
	assert.NoError(t, err)
	end, err := f.Seek(0, io.SeekEnd)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), end)
	_, err = f.Write([]byte("!"))
	assert.NoError(t, err)

	err = f.Close()
	assert.NoError(t, err)
	d, err = os.ReadFile(dst)
	assert.NoError(t, err)
	assert.Equal(t, "hello!", string(d))
}
