// Package kvlog is a key / value store backed by a single append-only file.
//
// # File Structure
//
// The file starts with an 8 byte header: number of entries ever appended,
// as big-endian uint64. It's followed by entries, one per Insert:
//
//	--- ${keyLen} ${valueLen}\n
//	${key}${value}\n
//
// Keys and values are encoded with a [codec.Codec].
//
// The index of the most recent entry of each key is kept in memory and
// rebuilt by [Reopen] from the entries in the file. Entries are never
// changed or removed: Insert of an existing key appends a new entry and
// Remove only removes the key from the index, so a removed key is back
// after Reopen. [Store.CompactTo] and [CompactFile] write a new file
// with only the entries of live keys.
//
// # Basic Usage
//
//	opts := kvlog.Options[string, int64]{
//	    Keys:   codec.String{},
//	    Values: codec.Int64{},
//	}
//	s, err := kvlog.Open("counters.db", opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	prev, hadPrev, err := s.Insert("visits", 5)
//	v, ok, err := s.Get("visits")
//	for key := range s.Keys() {
//	    // ...
//	}
//
// A Store is not safe for concurrent use and only one Store should use
// a given file at a time.
package kvlog
