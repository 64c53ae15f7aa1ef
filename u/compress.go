package u

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// implement io.ReadCloser over os.File wrapped with io.Reader.
// io.Closer goes to os.File, io.Reader goes to wrapping reader
type readerWrappedFile struct {
	f *os.File
	r io.Reader
}

func (rc *readerWrappedFile) Close() error {
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func wrapInReadeCloser(f *os.File, r io.Reader, err error) (io.ReadCloser, error) {
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readerWrappedFile{
		f: f,
		r: r,
	}, nil
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip
// or zstd or brotli
// TODO: could sniff file content instead of checking file extension
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if ext == ".gz" {
		r, err := gzip.NewReader(f)
		return wrapInReadeCloser(f, r, err)
	}
	if ext == ".zstd" {
		r, err := zstd.NewReader(f)
		return wrapInReadeCloser(f, r, err)
	}
	if ext == ".br" {
		r := brotli.NewReader(f)
		return wrapInReadeCloser(f, r, err)
	}
	return f, nil
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// CompressFile compresses srcPath into dstPath. Compression is picked
// based on extension of dstPath: .gz, .zstd or .br
func CompressFile(dstPath string, srcPath string) error {
	ext := strings.ToLower(filepath.Ext(dstPath))
	fSrc, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer fSrc.Close()
	fDst, err := os.Create(dstPath)
	if err != nil {
		return err
	}

	var w io.WriteCloser
	switch ext {
	case ".gz":
		w, err = gzip.NewWriterLevel(fDst, gzip.BestCompression)
	case ".zstd":
		w, err = zstdNewWriter(fDst)
	case ".br":
		w = brotli.NewWriterLevel(fDst, brotli.BestCompression)
	default:
		err = fmt.Errorf("unknown compression for extension '%s'", ext)
	}
	if err != nil {
		fDst.Close()
		os.Remove(dstPath)
		return err
	}
	_, err = io.Copy(w, fSrc)
	err2 := w.Close()
	err3 := fDst.Close()

	err = getErr(err, err2, err3)
	if err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}

func BrCompressData(d []byte, level int) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, level)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func BrDecompressData(d []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(d))
	return io.ReadAll(r)
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// in my tests:
	// - zstd.SpeedBestCompression is much slower and not much better
	// - default concurrency is GONUMPROCS() but adding concurrency of any value
	//   doesn't consistently speed things up
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// for small buffers creating encoder / decoder for every call is more
// expensive than compressing. EncodeAll / DecodeAll are safe to call
// concurrently so we share them
func zstdInit() error {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdErr
}

func ZstdCompressData(d []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, err
	}
	return zstdEnc.EncodeAll(d, nil), nil
}

func ZstdDecompressData(d []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, err
	}
	return zstdDec.DecodeAll(d, nil)
}
