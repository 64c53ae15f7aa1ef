/*
To replace a file in a robust way we should:

- handle error returned by `Close()`

- handle error returned by `Write()`

- never leave a partially written file at the destination path

Package atomicfile writes to a temporary file in the same directory
and renames it over the destination in Close(), only if everything
succeeded:

	func compactInto(path string, data []byte) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// a no-op after Close()
		defer f.RemoveIfNotClosed()

		_, err = f.Write(data)
		if err != nil {
			return err
		}
		return f.Close()
	}

File can also be read and seeked before Close() so it can back
a kvlog.Store that is being written, e.g. by compaction.
*/
package atomicfile
