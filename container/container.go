// Package container reads and writes the ZIP archive format used as the
// workbook container. Entries are deflate-compressed or stored verbatim,
// located through the central directory, and extracted lazily so that large
// bodies never have to be resident at once.
package container

import (
	"errors"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Record signatures, little-endian on the wire.
const (
	sigLocalHeader  = 0x04034b50
	sigCentralDir   = 0x02014b50
	sigEndDirectory = 0x06054b50
)

// Fixed record sizes, excluding variable-length path/extra/comment fields.
const (
	localHeaderLen  = 30
	centralDirLen   = 46
	endDirectoryLen = 22

	// An end-of-directory record can be followed by up to 65535 bytes of
	// comment, so a tail scan never needs more than this many bytes.
	maxEndDirectorySpan = endDirectoryLen + 0xFFFF
)

// Compression methods.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

const (
	versionNeeded = 20
	flagUTF8      = 0x0800
)

var (
	// ErrFormat reports a structurally invalid archive.
	ErrFormat = errors.New("container: invalid archive")
	// ErrEntryNotFound reports a lookup for a path the directory does not hold.
	ErrEntryNotFound = errors.New("container: entry not found")
	// ErrChecksum reports an entry body that does not match its recorded checksum.
	ErrChecksum = errors.New("container: checksum mismatch")
	// ErrUnsupported reports an archive feature this codec does not handle.
	ErrUnsupported = errors.New("container: unsupported feature")
)

// dosDateTime converts t to MS-DOS date and time fields.
func dosDateTime(t time.Time) (date, tod uint16) {
	t = t.Local()
	if t.Year() < 1980 {
		return 0x21, 0 // 1980-01-01 00:00:00
	}
	date = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	tod = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, tod
}

// timeFromDos converts MS-DOS date and time fields to a time.Time.
func timeFromDos(date, tod uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tod>>11),
		int(tod>>5&0x3f),
		int(tod&0x1f)*2,
		0, time.Local)
}

// decodeName interprets raw entry-name bytes. Names flagged UTF-8, plain
// ASCII names, and unflagged-but-valid UTF-8 pass through; anything else is
// decoded as code page 437, the legacy encoding of archives written before
// the UTF-8 flag existed.
func decodeName(b []byte, flags uint16) string {
	if flags&flagUTF8 != 0 || utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// needsUTF8Flag reports whether name contains bytes outside printable ASCII.
func needsUTF8Flag(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7e {
			return true
		}
	}
	return false
}
