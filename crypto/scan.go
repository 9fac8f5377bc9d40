package crypto

import (
	"encoding/base64"
	"iter"
	"regexp"
)

// Marker precedes every encrypted record in local storage.
const Marker = "dQw4w9WgXcQ:"

// recordPattern matches the marker followed by a base64-alphabet run. It runs
// over the raw bytes; invalid UTF-8 never matches the ASCII alphabet, which is
// the same outcome as scanning lossily decoded text.
var recordPattern = regexp.MustCompile(regexp.QuoteMeta(Marker) + `([A-Za-z0-9+/=]+)`)

// SkipFunc is told about every match that failed to decode. offset is the
// position of the base64 run in the scanned buffer.
type SkipFunc func(offset int, err error)

// Scan returns the records embedded in buf. The sequence is lazy and can be
// ranged over any number of times; malformed matches are skipped.
func Scan(buf []byte) iter.Seq[Record] {
	return ScanReport(buf, nil)
}

// ScanReport is Scan with a callback for skipped matches.
func ScanReport(buf []byte, skipped SkipFunc) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for off := 0; off < len(buf); {
			loc := recordPattern.FindSubmatchIndex(buf[off:])
			if loc == nil {
				return
			}
			start, end := off+loc[2], off+loc[3]
			off += loc[1]

			raw, err := base64.StdEncoding.DecodeString(string(buf[start:end]))
			if err != nil {
				if skipped != nil {
					skipped(start, err)
				}
				continue
			}
			if !yield(Record(raw)) {
				return
			}
		}
	}
}
