package memfile

import (
	"io"
	"testing"

	"github.com/alecthomas/assert"
)

func TestReadWrite(t *testing.T) {
	var f File
	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, f.Len())

	_, err = f.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)

	off, err := f.Seek(1, io.SeekStart)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), off)
	d, err := io.ReadAll(&f)
	assert.NoError(t, err)
	assert.Equal(t, "ello", string(d))

	// over-write in the middle
	_, err = f.Seek(-2, io.SeekEnd)
	assert.NoError(t, err)
	_, err = f.Write([]byte("LLO!"))
	assert.NoError(t, err)
	assert.Equal(t, "helLLO!", string(f.Bytes()))

	buf := make([]byte, 3)
	n, err = f.ReadAt(buf, 5)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "O!", string(buf[:n]))
}

func TestWritePastEnd(t *testing.T) {
	f := New([]byte("ab"))
	_, err := f.Seek(4, io.SeekStart)
	assert.NoError(t, err)
	_, err = f.Write([]byte("c"))
	assert.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 'c'}, f.Bytes())
}

func TestTruncate(t *testing.T) {
	f := New([]byte("hello world"))
	end, err := f.Seek(0, io.SeekEnd)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), end)

	err = f.Truncate(5)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(f.Bytes()))

	// growing after shrinking must not bring back old bytes
	err = f.Truncate(7)
	assert.NoError(t, err)
	assert.Equal(t, []byte{'h', 'e', 'l', 'l', 'o', 0, 0}, f.Bytes())

	assert.Error(t, f.Truncate(-1))
	_, err = f.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}
