package kvlog

import (
	"time"

	"github.com/kjk/drum/atomicfile"
	"github.com/kjk/drum/log"
)

// CompactTo writes entries of live keys to dst and returns a store backed
// by dst. dst must be empty. s is not modified.
//
// Entries are written in the order of keys in the index. The header of
// the new log counts only the entries written to it.
// Compaction never happens on its own: the log only grows until
// CompactTo or CompactFile is called.
func (s *Store[K, V]) CompactTo(dst File) (*Store[K, V], error) {
	res := New(dst, s.opts)
	for key := range s.index.Keys() {
		loc, _ := s.index.Get(key)
		// validates the entry so that we don't copy garbage
		if _, err := s.readEntry(key, loc); err != nil {
			return nil, err
		}
		start, err := res.file.append(s.buf, res.offset)
		if err != nil {
			return nil, err
		}
		res.offset = start + loc.Size
		res.entries++
		res.putLocation(key, Location{Start: start, Size: loc.Size})
	}
	// header is written once, at the end. Until then the new log
	// is an empty store
	if err := res.file.writeHeader(res.entries); err != nil {
		return nil, err
	}
	return res, nil
}

// CompactFile compacts store in file at path. The compacted log is
// written to a temporary file which replaces the original file only
// if everything succeeded.
// Returns stats before and after compaction.
func CompactFile[K comparable, V any](path string, opts Options[K, V]) (Stats, Stats, error) {
	var before, after Stats
	timeStart := time.Now()
	s, err := Open(path, opts)
	if err != nil {
		return before, after, err
	}
	defer s.Close()
	before = s.Stats()

	f, err := atomicfile.New(path)
	if err != nil {
		return before, after, err
	}
	// no-op if f.Close() was called
	defer f.RemoveIfNotClosed()

	res, err := s.CompactTo(f)
	if err != nil {
		return before, after, err
	}
	after = res.Stats()
	if err = f.Close(); err != nil {
		return before, after, err
	}
	log.EventWithDuration("kvlog_compact", time.Since(timeStart), "path", path, "live", after.Live, "before", before.LogBytes, "after", after.LogBytes)
	return before, after, nil
}
