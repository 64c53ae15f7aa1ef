package kvlog

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/alecthomas/assert"
	fuzz "github.com/google/gofuzz"
)

func TestIntStrLen(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 99, 100, 12345, -1, -10, 1 << 40} {
		assert.Equal(t, len(strconv.Itoa(n)), intStrLen(n), "n: %d", n)
	}
}

func TestEntryEncoding(t *testing.T) {
	d := appendEntry(nil, []byte("foo"), []byte("bar\n"))
	assert.Equal(t, "--- 3 4\nfoobar\n\n", string(d))
	assert.Equal(t, len(d), entrySize(3, 4))

	d = appendEntry(nil, nil, nil)
	assert.Equal(t, "--- 0 0\n\n", string(d))
	assert.Equal(t, len(d), entrySize(0, 0))
}

func TestEntryRoundTrip(t *testing.T) {
	fz := fuzz.NewWithSeed(12345)
	fz.NilChance(0.1)
	var buf []byte
	for i := 0; i < 500; i++ {
		var key, val []byte
		fz.Fuzz(&key)
		fz.Fuzz(&val)
		buf = appendEntry(buf[:0], key, val)
		assert.Equal(t, entrySize(len(key), len(val)), len(buf))

		k, v, err := decodeEntry(buf)
		assert.NoError(t, err)
		assert.True(t, bytes.Equal(key, k))
		assert.True(t, bytes.Equal(val, v))
	}
}

func TestDecodeEntryCorrupt(t *testing.T) {
	valid := appendEntry(nil, []byte("key"), []byte("value"))
	tests := [][]byte{
		nil,
		[]byte("garbage"),
		[]byte("--- 3 5"),
		[]byte("-- 3 5\nkeyvalue\n"),
		[]byte("--- 3\nkeyvalue\n"),
		[]byte("--- 3 x\nkeyvalue\n"),
		[]byte("--- 03 5\nkeyvalue\n"),
		[]byte("--- -3 5\nkeyvalue\n"),
		[]byte("--- 3 5\nkeyvalue!"),
		[]byte("--- 99999999999999 5\nkeyvalue\n"),
		valid[:len(valid)-1],
		append(bytes.Clone(valid), 'x'),
	}
	for _, d := range tests {
		_, _, err := decodeEntry(d)
		assert.True(t, errors.Is(err, ErrCorruptEntry), "data: '%s', err: %v", d, err)
	}
}

func TestEntryReader(t *testing.T) {
	var d []byte
	keys := []string{"a", "bb", "", "dddd"}
	for i, k := range keys {
		d = appendEntry(d, []byte(k), []byte(strconv.Itoa(i)))
	}

	r := newEntryReader(bytes.NewReader(d), 0, uint64(len(d)))
	var pos uint64
	for i, k := range keys {
		assert.True(t, r.Next())
		assert.Equal(t, k, string(r.Key))
		assert.Equal(t, strconv.Itoa(i), string(r.Value))
		assert.Equal(t, pos, r.CurrPos)
		pos += uint64(entrySize(len(k), 1))
		assert.Equal(t, pos, r.NextPos)
	}
	assert.False(t, r.Next())
	assert.Equal(t, io.EOF, r.Err())
	// stays done
	assert.False(t, r.Next())
}

func TestEntryReaderPartial(t *testing.T) {
	d := appendEntry(nil, []byte("key"), []byte("value"))
	full := len(d)
	d = appendEntry(d, []byte("key2"), []byte("value2"))

	// cut in the middle of the second entry's data
	cut := d[:len(d)-3]
	r := newEntryReader(bytes.NewReader(cut), 0, uint64(len(cut)))
	assert.True(t, r.Next())
	assert.False(t, r.Next())
	assert.Equal(t, io.ErrUnexpectedEOF, r.Err())
	assert.Equal(t, uint64(full), r.NextPos)

	// cut in the middle of the second entry's header
	cut = d[:full+3]
	r = newEntryReader(bytes.NewReader(cut), 0, uint64(len(cut)))
	assert.True(t, r.Next())
	assert.False(t, r.Next())
	assert.Equal(t, io.ErrUnexpectedEOF, r.Err())

	// over-written header
	bad := bytes.Clone(d)
	copy(bad[full:], "xxx")
	r = newEntryReader(bytes.NewReader(bad), 0, uint64(len(bad)))
	assert.True(t, r.Next())
	assert.False(t, r.Next())
	assert.True(t, errors.Is(r.Err(), ErrCorruptEntry))
}

func TestEntryReaderLongHeader(t *testing.T) {
	d := bytes.Repeat([]byte("-"), 100*1024)
	r := newEntryReader(bytes.NewReader(d), 0, uint64(len(d)))
	assert.False(t, r.Next())
	assert.True(t, errors.Is(r.Err(), ErrCorruptEntry))
}
