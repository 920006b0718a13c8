package container

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/iuioiua/excelts-sub002/checksum"
)

// Writer builds an archive on an io.Writer. Entries are added one at a time
// through Create or CreateStored; Close emits the central directory and the
// end-of-directory record. Only the entry currently being written is
// buffered, so memory stays bounded by the largest single entry.
type Writer struct {
	w    io.Writer
	off  int64
	dir  []*record
	cur  *entryWriter
	err  error
	done bool
}

// record is the bookkeeping for one written entry, replayed into the
// central directory at Close.
type record struct {
	name       string
	method     uint16
	flags      uint16
	dosDate    uint16
	dosTime    uint16
	crc        uint32
	compSize   uint32
	uncompSize uint32
	offset     int64
}

// NewWriter returns a Writer that assembles an archive on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create opens a deflate-compressed entry at path. The previous entry, if
// any, must be closed first. The returned WriteCloser buffers the compressed
// body; its Close computes the checksum and sizes and flushes the entry.
func (zw *Writer) Create(path string) (io.WriteCloser, error) {
	return zw.create(path, MethodDeflate)
}

// CreateStored opens an entry at path with no compression.
func (zw *Writer) CreateStored(path string) (io.WriteCloser, error) {
	return zw.create(path, MethodStore)
}

// AddEntry writes a complete deflate-compressed entry in one call.
func (zw *Writer) AddEntry(path string, data []byte) error {
	ew, err := zw.Create(path)
	if err != nil {
		return err
	}
	if _, err := ew.Write(data); err != nil {
		return err
	}
	return ew.Close()
}

func (zw *Writer) create(path string, method uint16) (io.WriteCloser, error) {
	if zw.err != nil {
		return nil, zw.err
	}
	if zw.done {
		return nil, fmt.Errorf("container: create %q: writer already closed", path)
	}
	if zw.cur != nil {
		return nil, fmt.Errorf("container: create %q: entry %q still open", path, zw.cur.rec.name)
	}
	if path == "" {
		return nil, fmt.Errorf("container: empty entry path")
	}
	if strings.Contains(path, `\`) {
		return nil, fmt.Errorf("container: entry path %q: backslash separators not allowed", path)
	}
	rec := &record{name: path, method: method}
	rec.dosDate, rec.dosTime = dosDateTime(time.Now())
	if needsUTF8Flag(path) {
		rec.flags |= flagUTF8
	}
	ew := &entryWriter{zw: zw, rec: rec, state: checksum.New()}
	if method == MethodDeflate {
		fw, err := flate.NewWriter(&ew.buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("container: create %q: %w", path, err)
		}
		ew.fw = fw
	}
	zw.cur = ew
	return ew, nil
}

// Close finalizes the archive: central directory, then end record.
func (zw *Writer) Close() error {
	if zw.err != nil {
		return zw.err
	}
	if zw.done {
		return fmt.Errorf("container: writer already closed")
	}
	if zw.cur != nil {
		return fmt.Errorf("container: entry %q still open", zw.cur.rec.name)
	}
	zw.done = true
	if len(zw.dir) > math.MaxUint16 {
		return zw.fail(fmt.Errorf("container: too many entries (%d)", len(zw.dir)))
	}
	dirOffset := zw.off
	for _, rec := range zw.dir {
		if err := zw.writeCentralRecord(rec); err != nil {
			return err
		}
	}
	dirSize := zw.off - dirOffset
	if dirOffset > math.MaxUint32 || dirSize > math.MaxUint32 {
		return zw.fail(fmt.Errorf("container: archive exceeds 4 GiB directory limit"))
	}

	var hdr [endDirectoryLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], sigEndDirectory)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(zw.dir)))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(len(zw.dir)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(dirSize))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(dirOffset))
	return zw.write(hdr[:])
}

func (zw *Writer) write(p []byte) error {
	if zw.err != nil {
		return zw.err
	}
	n, err := zw.w.Write(p)
	zw.off += int64(n)
	if err != nil {
		return zw.fail(err)
	}
	return nil
}

func (zw *Writer) fail(err error) error {
	if zw.err == nil {
		zw.err = err
	}
	return zw.err
}

func (zw *Writer) writeLocalHeader(rec *record) error {
	var hdr [localHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], sigLocalHeader)
	binary.LittleEndian.PutUint16(hdr[4:6], versionNeeded)
	binary.LittleEndian.PutUint16(hdr[6:8], rec.flags)
	binary.LittleEndian.PutUint16(hdr[8:10], rec.method)
	binary.LittleEndian.PutUint16(hdr[10:12], rec.dosTime)
	binary.LittleEndian.PutUint16(hdr[12:14], rec.dosDate)
	binary.LittleEndian.PutUint32(hdr[14:18], rec.crc)
	binary.LittleEndian.PutUint32(hdr[18:22], rec.compSize)
	binary.LittleEndian.PutUint32(hdr[22:26], rec.uncompSize)
	binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(rec.name)))
	if err := zw.write(hdr[:]); err != nil {
		return err
	}
	return zw.write([]byte(rec.name))
}

func (zw *Writer) writeCentralRecord(rec *record) error {
	var hdr [centralDirLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], sigCentralDir)
	binary.LittleEndian.PutUint16(hdr[4:6], versionNeeded)
	binary.LittleEndian.PutUint16(hdr[6:8], versionNeeded)
	binary.LittleEndian.PutUint16(hdr[8:10], rec.flags)
	binary.LittleEndian.PutUint16(hdr[10:12], rec.method)
	binary.LittleEndian.PutUint16(hdr[12:14], rec.dosTime)
	binary.LittleEndian.PutUint16(hdr[14:16], rec.dosDate)
	binary.LittleEndian.PutUint32(hdr[16:20], rec.crc)
	binary.LittleEndian.PutUint32(hdr[20:24], rec.compSize)
	binary.LittleEndian.PutUint32(hdr[24:28], rec.uncompSize)
	binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(rec.name)))
	binary.LittleEndian.PutUint32(hdr[42:46], uint32(rec.offset))
	if err := zw.write(hdr[:]); err != nil {
		return err
	}
	return zw.write([]byte(rec.name))
}

// entryWriter accumulates one entry's compressed body and flushes it,
// prefixed by the local header, when closed.
type entryWriter struct {
	zw     *Writer
	rec    *record
	buf    bytes.Buffer
	fw     *flate.Writer
	state  checksum.State
	size   int64
	closed bool
}

func (ew *entryWriter) Write(p []byte) (int, error) {
	if ew.closed {
		return 0, fmt.Errorf("container: write to closed entry %q", ew.rec.name)
	}
	if ew.zw.err != nil {
		return 0, ew.zw.err
	}
	ew.state = ew.state.Update(p)
	ew.size += int64(len(p))
	if ew.fw != nil {
		return ew.fw.Write(p)
	}
	return ew.buf.Write(p)
}

func (ew *entryWriter) Close() error {
	if ew.closed {
		return nil
	}
	ew.closed = true
	ew.zw.cur = nil
	if ew.fw != nil {
		if err := ew.fw.Close(); err != nil {
			return ew.zw.fail(fmt.Errorf("container: entry %q: %w", ew.rec.name, err))
		}
	}
	if ew.size > math.MaxUint32 || int64(ew.buf.Len()) > math.MaxUint32 {
		return ew.zw.fail(fmt.Errorf("container: entry %q exceeds 4 GiB limit", ew.rec.name))
	}
	if ew.zw.off > math.MaxUint32 {
		return ew.zw.fail(fmt.Errorf("container: archive exceeds 4 GiB offset limit"))
	}
	rec := ew.rec
	rec.crc = ew.state.Sum32()
	rec.compSize = uint32(ew.buf.Len())
	rec.uncompSize = uint32(ew.size)
	rec.offset = ew.zw.off
	if err := ew.zw.writeLocalHeader(rec); err != nil {
		return err
	}
	if err := ew.zw.write(ew.buf.Bytes()); err != nil {
		return err
	}
	ew.zw.dir = append(ew.zw.dir, rec)
	return nil
}
