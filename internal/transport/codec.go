package transport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// SegmentSize is the largest payload a single Preload call can carry.
const SegmentSize = 255

// FieldSep separates the correlation tag from the result in a response and
// keys from values in a halt record. It never appears in tags, keys or
// values.
const FieldSep = 0x1F

// Wrapper text. These must match the remote side byte for byte.
const (
	FilePrefix = "function PreloadFiles takes nothing returns nothing\n\n" +
		"\tcall PreloadStart()\n" +
		"\tcall Preload( \"\")\n" +
		"endfunction\n" +
		"//!beginusercode\n" +
		"local p={} local i=function(s) table.insert(p,s) end--[[\" )\n\t"

	FilePostfix = "\n\tcall Preload( \"]]BlzSetAbilityTooltip(1095656547, table.concat(p), 0)\n" +
		"//!endusercode\n" +
		"function a takes nothing returns nothing\n" +
		"//\" )\n" +
		"\tcall PreloadEnd( 0.1 )\n\n" +
		"endfunction\n\n"

	LinePrefix  = "\n\tcall Preload( \"]]i([["
	LinePostfix = "]])--[[\" )"
)

var segmentPattern = regexp.MustCompile(`(?s)call Preload\( "\]\]i\(\[\[(.*?)\]\]\)--\[\[" \)`)

// Markers of a well-formed preload file that carries no segments.
var (
	startMarker = []byte("PreloadStart()")
	endMarker   = []byte("PreloadEnd(")
)

// Encode wraps payload in the preload file format, splitting it into
// SegmentSize chunks. An empty payload yields a wrapper with no segments.
func Encode(payload []byte) []byte {
	segments := (len(payload) + SegmentSize - 1) / SegmentSize
	size := len(FilePrefix) + len(FilePostfix) + len(payload) +
		segments*(len(LinePrefix)+len(LinePostfix))

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteString(FilePrefix)
	for start := 0; start < len(payload); start += SegmentSize {
		end := min(start+SegmentSize, len(payload))
		buf.WriteString(LinePrefix)
		buf.Write(payload[start:end])
		buf.WriteString(LinePostfix)
	}
	buf.WriteString(FilePostfix)
	return buf.Bytes()
}

// Decode extracts the payload of a preload file by concatenating all
// segments in file order. A wrapper without segments decodes to an empty,
// non-nil payload. ok is false when data is not a preload file.
func Decode(data []byte) (payload []byte, ok bool) {
	matches := segmentPattern.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		if bytes.Contains(data, startMarker) && bytes.Contains(data, endMarker) {
			return []byte{}, true
		}
		return nil, false
	}

	n := 0
	for _, m := range matches {
		n += len(m[1])
	}
	payload = make([]byte, 0, n)
	for _, m := range matches {
		payload = append(payload, m[1]...)
	}
	return payload, true
}

// DecodeCorrelated decodes a response file and splits it into its
// correlation tag and result at the first FieldSep.
func DecodeCorrelated(data []byte) (tag, result []byte, ok bool) {
	payload, ok := Decode(data)
	if !ok {
		return nil, nil, false
	}
	tag, result, found := bytes.Cut(payload, []byte{FieldSep})
	if !found {
		return nil, nil, false
	}
	return tag, result, true
}

// ReadFile loads and decodes the preload file at path. It returns
// ErrNoData if the file does not exist and ErrUnrecognized if it exists but
// is not a preload file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	payload, ok := Decode(data)
	if !ok {
		return nil, ErrUnrecognized
	}
	return payload, nil
}

// ReadPlain loads a file that the remote runtime may write either wrapped
// or as plain text. Wrapped files are decoded; anything else is returned
// as is. A wrapper cut short by a concurrent write yields ErrUnrecognized.
func ReadPlain(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !looksWrapped(data) {
		return data, nil
	}
	payload, ok := Decode(data)
	if !ok || !bytes.Contains(data, endMarker) {
		return nil, ErrUnrecognized
	}
	return payload, nil
}

// looksWrapped reports whether data is, or begins like, a preload file.
func looksWrapped(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.HasPrefix(data, []byte(FilePrefix)) || bytes.HasPrefix([]byte(FilePrefix), data) {
		return true
	}
	return bytes.Contains(data, startMarker) || segmentPattern.Match(data)
}

// WriteFile encodes payload and writes it to path. The file is written to
// a temporary name and renamed into place so a polling reader never sees a
// partial request.
func WriteFile(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(Encode(payload)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
