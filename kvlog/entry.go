package kvlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

/*
An entry in the log is key / value pair serialized as:

--- ${keyLen} ${valueLen}\n
${key}${value}\n

keyLen and valueLen are sizes, in bytes, of encoded key and value.

The newline at the end is always written. It's not needed for decoding
but it makes the log readable when key and value are text.
*/

var entryPrefix = []byte("--- ")

// no single key or value can be bigger than 1 TB. Protects us from
// allocating crazy amounts of memory when reading a corrupted header.
const maxPartSize = 1 << 40

// read buffers bigger than this are not kept for re-use (1 MB)
const maxReuseBuf = 1024 * 1024

// intStrLen calculates how long n would be when converted to a string
// i.e. equivalent of len(strconv.Itoa(n)) but faster
func intStrLen(n int) int {
	l := 1 // count the last digit here
	if n < 0 {
		n = -n
		l = 2
	}
	for n > 9 {
		l++
		n = n / 10
	}
	return l
}

// entrySize returns the size of encoded entry for a key of size keyLen
// and value of size valLen. It's the same as len(appendEntry(nil, key, val))
func entrySize(keyLen int, valLen int) int {
	return len(entryPrefix) + intStrLen(keyLen) + 1 + intStrLen(valLen) + 1 + keyLen + valLen + 1
}

// appendEntry appends encoded entry to dst and returns the extended slice
// perf: re-use dst
func appendEntry(dst []byte, key []byte, val []byte) []byte {
	dst = append(dst, entryPrefix...)
	dst = strconv.AppendInt(dst, int64(len(key)), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(val)), 10)
	dst = append(dst, '\n')
	dst = append(dst, key...)
	dst = append(dst, val...)
	return append(dst, '\n')
}

func limitBytes(d []byte, n int) string {
	if len(d) > n {
		return string(d[:n]) + "..."
	}
	return string(d)
}

// parseSize parses a decimal size. We only accept digits so that
// there's only one way to encode a given size
func parseSize(d []byte) (int, bool) {
	if len(d) == 0 || len(d) > 13 {
		return 0, false
	}
	for _, c := range d {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	if len(d) > 1 && d[0] == '0' {
		return 0, false
	}
	n, err := strconv.ParseInt(string(d), 10, 64)
	if err != nil || n > maxPartSize {
		return 0, false
	}
	return int(n), true
}

// parseEntryHeader parses "--- ${keyLen} ${valueLen}" line
// (without the trailing newline)
func parseEntryHeader(hdr []byte) (int, int, error) {
	if !bytes.HasPrefix(hdr, entryPrefix) {
		return 0, 0, fmt.Errorf("%w: unexpected header '%s'", ErrCorruptEntry, limitBytes(hdr, 32))
	}
	rest := hdr[len(entryPrefix):]
	idx := bytes.IndexByte(rest, ' ')
	if idx == -1 {
		return 0, 0, fmt.Errorf("%w: unexpected header '%s'", ErrCorruptEntry, limitBytes(hdr, 32))
	}
	keyLen, ok1 := parseSize(rest[:idx])
	valLen, ok2 := parseSize(rest[idx+1:])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("%w: invalid size in header '%s'", ErrCorruptEntry, limitBytes(hdr, 32))
	}
	return keyLen, valLen, nil
}

// decodeEntry decodes d, which must be exactly one encoded entry.
// Returned key and val point inside d.
func decodeEntry(d []byte) (key []byte, val []byte, err error) {
	idx := bytes.IndexByte(d, '\n')
	if idx == -1 {
		return nil, nil, fmt.Errorf("%w: missing '\\n' marking end of header in '%s'", ErrCorruptEntry, limitBytes(d, 32))
	}
	keyLen, valLen, err := parseEntryHeader(d[:idx])
	if err != nil {
		return nil, nil, err
	}
	d = d[idx+1:]
	n := keyLen + valLen + 1
	if len(d) != n {
		return nil, nil, fmt.Errorf("%w: expected %d bytes of key and value, got %d", ErrCorruptEntry, n, len(d))
	}
	if d[n-1] != '\n' {
		return nil, nil, fmt.Errorf("%w: missing '\\n' at the end of entry", ErrCorruptEntry)
	}
	return d[:keyLen], d[keyLen : keyLen+valLen], nil
}

// entryReader reads consecutive entries from the log.
// It tracks position of each entry so that the caller can index
// entries by offset.
type entryReader struct {
	r *bufio.Reader

	// Key and Value are available after Next(). They point into a buffer
	// that is over-written in the next Next()
	Key   []byte
	Value []byte

	// position of the current entry in the file
	CurrPos uint64
	// position of the next entry in the file
	NextPos uint64

	// size of the file. An entry that claims to extend past it is truncated
	end uint64

	data []byte
	err  error
}

// newEntryReader creates a reader for entries in r. r must be positioned at
// pos and have size end.
func newEntryReader(r io.Reader, pos uint64, end uint64) *entryReader {
	return &entryReader{
		r:       bufio.NewReaderSize(r, 64*1024),
		NextPos: pos,
		end:     end,
	}
}

// Next reads the next entry. Returns false if there are no more entries
// or there was an error. Check Err() to tell them apart.
func (r *entryReader) Next() bool {
	if r.err != nil {
		return false
	}
	r.CurrPos = r.NextPos
	r.Key = nil
	r.Value = nil

	hdr, err := r.r.ReadSlice('\n')
	if err != nil {
		switch {
		case err == io.EOF && len(hdr) == 0:
			r.err = io.EOF
		case err == io.EOF:
			r.err = io.ErrUnexpectedEOF
		case err == bufio.ErrBufferFull:
			r.err = fmt.Errorf("%w: header at offset %d is too long", ErrCorruptEntry, r.CurrPos)
		default:
			r.err = err
		}
		return false
	}
	hdrSize := len(hdr)
	keyLen, valLen, err := parseEntryHeader(hdr[:hdrSize-1])
	if err != nil {
		r.err = fmt.Errorf("entry at offset %d: %w", r.CurrPos, err)
		return false
	}
	n := keyLen + valLen + 1
	size := uint64(hdrSize + n)
	if r.CurrPos+size > r.end {
		// the header is there but the data isn't
		r.err = io.ErrUnexpectedEOF
		return false
	}

	// we try to re-use r.data as long as it doesn't grow too much
	if cap(r.data) > maxReuseBuf {
		r.data = nil
	}
	if n > cap(r.data) {
		r.data = make([]byte, n)
	} else {
		r.data = r.data[:n]
	}
	if _, err = io.ReadFull(r.r, r.data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return false
	}
	if r.data[n-1] != '\n' {
		r.err = fmt.Errorf("%w: missing '\\n' at the end of entry at offset %d", ErrCorruptEntry, r.CurrPos)
		return false
	}
	r.Key = r.data[:keyLen]
	r.Value = r.data[keyLen : keyLen+valLen]
	r.NextPos = r.CurrPos + size
	return true
}

// Err returns the error that stopped Next(). io.EOF means there were no
// more entries, io.ErrUnexpectedEOF means the last entry was cut short.
func (r *entryReader) Err() error {
	return r.err
}
