// Package tfrecord reads and writes TFRecord files: a sequence of records,
// each framed as
//
//	uint64 length (little endian)
//	uint32 masked crc32c of length
//	byte   data[length]
//	uint32 masked crc32c of data
//
// optionally wrapped in a gzip or zlib stream.
package tfrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrCorruptRecord is returned when a record's checksum does not match.
var ErrCorruptRecord = errors.New("tfrecord: corrupt record")

// Compression selects the stream wrapper around the framed records.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZlib Compression = "zlib"
)

// ParseCompression normalizes a config value into a Compression.
func ParseCompression(raw string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionGzip, CompressionZlib:
		return c, nil
	default:
		return "", fmt.Errorf("invalid compression %q (expected %s|%s|%s)", raw, CompressionNone, CompressionGzip, CompressionZlib)
	}
}

// maxRecordBytes guards Reader against allocating for a garbage length.
const maxRecordBytes = 1 << 30

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	crc := crc32.Checksum(b, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// Writer appends framed records to an underlying stream. Records are written
// in call order; Close must be called to flush compression and buffers.
type Writer struct {
	buf   *bufio.Writer
	w     io.Writer
	zw    io.Closer
	file  io.Closer
	count int
}

// NewWriter wraps w. Close flushes and finalizes the compression stream but
// does not close w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	tw := &Writer{buf: bufio.NewWriter(w)}

	switch c {
	case CompressionNone, "":
		tw.w = tw.buf
	case CompressionGzip:
		zw := gzip.NewWriter(tw.buf)
		tw.w, tw.zw = zw, zw
	case CompressionZlib:
		zw := zlib.NewWriter(tw.buf)
		tw.w, tw.zw = zw, zw
	default:
		return nil, fmt.Errorf("tfrecord: unsupported compression %q", c)
	}

	return tw, nil
}

// Create truncates or creates path and returns a Writer that also closes the
// file on Close.
func Create(path string, c Compression) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tfrecord: create %s: %w", path, err)
	}

	w, err := NewWriter(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f

	return w, nil
}

// Write appends one record.
func (w *Writer) Write(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:12], maskedCRC(header[0:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	for _, part := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.w.Write(part); err != nil {
			return fmt.Errorf("tfrecord: write record %d: %w", w.count, err)
		}
	}
	w.count++

	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Close flushes buffered data and finalizes the compression stream. Writers
// from Create also close their file.
func (w *Writer) Close() error {
	var errs []error
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tfrecord: finish compression: %w", err))
		}
		w.zw = nil
	}
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("tfrecord: flush: %w", err))
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tfrecord: close: %w", err))
		}
		w.file = nil
	}

	return errors.Join(errs...)
}

// Reader iterates the records of a TFRecord stream.
type Reader struct {
	r       *bufio.Reader
	closers []io.Closer
	count   int
}

// NewReader wraps r. Close releases the decompressor but does not close r.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	tr := &Reader{}

	switch c {
	case CompressionNone, "":
		tr.r = bufio.NewReader(r)
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("tfrecord: open gzip stream: %w", err)
		}
		tr.r = bufio.NewReader(zr)
		tr.closers = append(tr.closers, zr)
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("tfrecord: open zlib stream: %w", err)
		}
		tr.r = bufio.NewReader(zr)
		tr.closers = append(tr.closers, zr)
	default:
		return nil, fmt.Errorf("tfrecord: unsupported compression %q", c)
	}

	return tr, nil
}

// Open opens path for reading.
func Open(path string, c Compression) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tfrecord: open %s: %w", path, err)
	}

	r, err := NewReader(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closers = append(r.closers, f)

	return r, nil
}

// Next returns the next record. It returns io.EOF after the last record and
// io.ErrUnexpectedEOF when the stream ends inside a record.
func (r *Reader) Next() ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint32(header[8:12]) != maskedCRC(header[0:8]) {
		return nil, fmt.Errorf("%w: record %d: length checksum mismatch", ErrCorruptRecord, r.count)
	}

	n := binary.LittleEndian.Uint64(header[0:8])
	if n > maxRecordBytes {
		return nil, fmt.Errorf("%w: record %d: length %d exceeds limit", ErrCorruptRecord, r.count, n)
	}

	data := make([]byte, n+4)
	if _, err := io.ReadFull(r.r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	if binary.LittleEndian.Uint32(data[n:]) != maskedCRC(data[:n]) {
		return nil, fmt.Errorf("%w: record %d: data checksum mismatch", ErrCorruptRecord, r.count)
	}
	r.count++

	return data[:n], nil
}

// Close releases the decompressor and, for readers from Open, the file.
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil

	return errors.Join(errs...)
}
