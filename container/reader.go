package container

import (
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/iuioiua/excelts-sub002/checksum"
)

// Reader indexes an archive through its central directory. Entry bodies are
// not touched until opened, so pointing a Reader at a workbook costs one
// tail scan and one directory pass regardless of content size.
type Reader struct {
	r     io.ReaderAt
	size  int64
	files []*File
	index map[string]int
}

// File describes one directory entry.
type File struct {
	Path             string
	Method           uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Modified         time.Time

	flags        uint16
	headerOffset int64
	owner        *Reader
}

// NewReader parses the central directory of the size bytes readable from r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < endDirectoryLen {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrFormat, size)
	}
	zr := &Reader{r: r, size: size, index: make(map[string]int)}
	if err := zr.readDirectory(); err != nil {
		return nil, err
	}
	return zr, nil
}

// ReadCloser is a Reader over an opened file.
type ReadCloser struct {
	Reader
	f *os.File
}

// OpenReader opens the archive at path.
func OpenReader(path string) (*ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	zr, err := NewReader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	rc := &ReadCloser{Reader: *zr, f: f}
	for _, file := range rc.files {
		file.owner = &rc.Reader
	}
	return rc, nil
}

// Close closes the underlying file.
func (rc *ReadCloser) Close() error {
	return rc.f.Close()
}

// Files returns the directory in archive order. When a path occurs more than
// once, every occurrence is listed but lookups resolve to the last.
func (zr *Reader) Files() []*File {
	return zr.files
}

// Lookup returns the entry stored at path.
func (zr *Reader) Lookup(path string) (*File, bool) {
	i, ok := zr.index[path]
	if !ok {
		return nil, false
	}
	return zr.files[i], true
}

// Open returns a reader over the decompressed body of the entry at path.
// The body's checksum is verified as it is consumed; a mismatch surfaces as
// ErrChecksum at the end of the stream. A missing path reports
// ErrEntryNotFound.
func (zr *Reader) Open(path string) (io.ReadCloser, error) {
	f, ok := zr.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, path)
	}
	return f.Open()
}

// ReadAll decompresses the whole body of the entry at path.
func (zr *Reader) ReadAll(path string) ([]byte, error) {
	rc, err := zr.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Open returns a reader over the entry's decompressed body.
func (f *File) Open() (io.ReadCloser, error) {
	if f.flags&0x1 != 0 {
		return nil, fmt.Errorf("%w: entry %q is encrypted", ErrUnsupported, f.Path)
	}
	bodyOff, err := f.bodyOffset()
	if err != nil {
		return nil, err
	}
	section := io.NewSectionReader(f.owner.r, bodyOff, int64(f.CompressedSize))
	var body io.ReadCloser
	switch f.Method {
	case MethodStore:
		body = io.NopCloser(section)
	case MethodDeflate:
		body = flate.NewReader(section)
	default:
		return nil, fmt.Errorf("%w: compression method %d in entry %q", ErrUnsupported, f.Method, f.Path)
	}
	return &checksumReader{
		body:     body,
		state:    checksum.New(),
		path:     f.Path,
		wantCRC:  f.CRC32,
		wantSize: int64(f.UncompressedSize),
	}, nil
}

// bodyOffset locates the first body byte. The local header carries its own
// path and extra-field lengths, which may differ from the central record's.
func (f *File) bodyOffset() (int64, error) {
	var hdr [localHeaderLen]byte
	if _, err := f.owner.r.ReadAt(hdr[:], f.headerOffset); err != nil {
		return 0, fmt.Errorf("%w: entry %q: reading local header: %v", ErrFormat, f.Path, err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != sigLocalHeader {
		return 0, fmt.Errorf("%w: entry %q: bad local header signature", ErrFormat, f.Path)
	}
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:30]))
	return f.headerOffset + localHeaderLen + nameLen + extraLen, nil
}

// readDirectory scans the tail for the end record, then walks the central
// directory into the path index.
func (zr *Reader) readDirectory() error {
	span := int64(maxEndDirectorySpan)
	if span > zr.size {
		span = zr.size
	}
	tail := make([]byte, span)
	if _, err := zr.r.ReadAt(tail, zr.size-span); err != nil {
		return fmt.Errorf("%w: reading tail: %v", ErrFormat, err)
	}

	endOff := -1
	for i := len(tail) - endDirectoryLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:i+4]) != sigEndDirectory {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(tail[i+20 : i+22]))
		if i+endDirectoryLen+commentLen <= len(tail) {
			endOff = i
			break
		}
	}
	if endOff < 0 {
		return fmt.Errorf("%w: end-of-directory record not found", ErrFormat)
	}
	end := tail[endOff:]
	if binary.LittleEndian.Uint16(end[4:6]) != 0 || binary.LittleEndian.Uint16(end[6:8]) != 0 {
		return fmt.Errorf("%w: multi-disk archive", ErrUnsupported)
	}
	count := int(binary.LittleEndian.Uint16(end[10:12]))
	dirSize := int64(binary.LittleEndian.Uint32(end[12:16]))
	dirOffset := int64(binary.LittleEndian.Uint32(end[16:20]))
	if dirOffset+dirSize > zr.size {
		return fmt.Errorf("%w: directory extends past end of archive", ErrFormat)
	}
	if int64(count)*centralDirLen > dirSize {
		return fmt.Errorf("%w: directory truncated (%d entries in %d bytes)", ErrFormat, count, dirSize)
	}

	dir := make([]byte, dirSize)
	if _, err := zr.r.ReadAt(dir, dirOffset); err != nil {
		return fmt.Errorf("%w: reading directory: %v", ErrFormat, err)
	}
	zr.files = make([]*File, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+centralDirLen > len(dir) {
			return fmt.Errorf("%w: directory record %d truncated", ErrFormat, i)
		}
		rec := dir[off:]
		if binary.LittleEndian.Uint32(rec[0:4]) != sigCentralDir {
			return fmt.Errorf("%w: bad directory record signature at entry %d", ErrFormat, i)
		}
		flags := binary.LittleEndian.Uint16(rec[8:10])
		nameLen := int(binary.LittleEndian.Uint16(rec[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(rec[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(rec[32:34]))
		if off+centralDirLen+nameLen+extraLen+commentLen > len(dir) {
			return fmt.Errorf("%w: directory record %d overruns directory", ErrFormat, i)
		}
		f := &File{
			Path:             decodeName(rec[centralDirLen:centralDirLen+nameLen], flags),
			Method:           binary.LittleEndian.Uint16(rec[10:12]),
			CRC32:            binary.LittleEndian.Uint32(rec[16:20]),
			CompressedSize:   binary.LittleEndian.Uint32(rec[20:24]),
			UncompressedSize: binary.LittleEndian.Uint32(rec[24:28]),
			Modified: timeFromDos(
				binary.LittleEndian.Uint16(rec[14:16]),
				binary.LittleEndian.Uint16(rec[12:14])),
			flags:        flags,
			headerOffset: int64(binary.LittleEndian.Uint32(rec[42:46])),
			owner:        zr,
		}
		zr.index[f.Path] = len(zr.files)
		zr.files = append(zr.files, f)
		off += centralDirLen + nameLen + extraLen + commentLen
	}
	return nil
}

// checksumReader verifies the running checksum and length of a body as it is
// read, turning silent corruption into an error at stream end.
type checksumReader struct {
	body     io.ReadCloser
	state    checksum.State
	path     string
	wantCRC  uint32
	wantSize int64
	read     int64
	err      error
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	n, err := cr.body.Read(p)
	cr.state = cr.state.Update(p[:n])
	cr.read += int64(n)
	if err == io.EOF {
		if cr.read != cr.wantSize {
			err = fmt.Errorf("%w: entry %q: %d bytes, directory records %d", ErrFormat, cr.path, cr.read, cr.wantSize)
		} else if cr.state.Sum32() != cr.wantCRC {
			err = fmt.Errorf("%w: entry %q", ErrChecksum, cr.path)
		}
	}
	if err != nil && err != io.EOF {
		cr.err = err
	}
	return n, err
}

func (cr *checksumReader) Close() error {
	return cr.body.Close()
}
