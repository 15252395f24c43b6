package matchlog

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Log is a fully materialized match log. A Log is never modified after Parse;
// transformations return a new Log.
type Log struct {
	raw  []byte
	root gjson.Result
}

// TickEntry is one tick-keyed member of a section
type TickEntry struct {
	Key   string
	Tick  int64
	Value gjson.Result
}

// Parse validates data and wraps it as a Log. The Log takes ownership of data.
func Parse(data []byte) (*Log, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyLog
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidJSON)
	}

	return &Log{raw: data, root: root}, nil
}

// Bytes returns the document. Callers must not modify it.
func (l *Log) Bytes() []byte {
	return l.raw
}

// SectionNames lists the top-level sections in document order
func (l *Log) SectionNames() []string {
	var names []string
	l.root.ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	return names
}

// Section returns a top-level section by name
func (l *Log) Section(name string) (gjson.Result, bool) {
	return Child(l.root, name)
}

// Ticks returns the members of a tick-keyed section in non-decreasing tick order.
// Members sharing a tick keep their document order. Keys that are not integers
// are returned in malformed.
func (l *Log) Ticks(section string) (entries []TickEntry, malformed []string) {
	sec, ok := l.Section(section)
	if !ok || !sec.IsObject() {
		return nil, nil
	}

	sec.ForEach(func(key, value gjson.Result) bool {
		tick, err := strconv.ParseInt(key.String(), 10, 64)
		if err != nil {
			malformed = append(malformed, key.String())
			return true
		}
		entries = append(entries, TickEntry{Key: key.String(), Tick: tick, Value: value})
		return true
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Tick < entries[j].Tick
	})
	return entries, malformed
}

// WithSection returns a new Log whose named section is replaced by the raw JSON
// in section. Every other section is carried through byte for byte.
func (l *Log) WithSection(name string, section []byte) (*Log, error) {
	if !gjson.ValidBytes(section) {
		return nil, fmt.Errorf("%w: replacement for section %q", ErrInvalidJSON, name)
	}

	// sjson may reuse its input, so hand it a private copy
	doc := append([]byte(nil), l.raw...)
	updated, err := sjson.SetRawBytes(doc, escapePath(name), section)
	if err != nil {
		return nil, fmt.Errorf("failed to replace section %q: %w", name, err)
	}

	return Parse(updated)
}

// Child looks up a direct member of an object by its exact key
func Child(r gjson.Result, key string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	if !r.IsObject() {
		return found, false
	}
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// Has reports whether an object carries the field, whatever its value
func Has(r gjson.Result, field string) bool {
	_, ok := Child(r, field)
	return ok
}

// Int reads an integral numeric field. Strings, fractions and other types are rejected.
func Int(r gjson.Result, field string) (int64, bool) {
	v, ok := Child(r, field)
	if !ok || v.Type != gjson.Number {
		return 0, false
	}
	if v.Num != math.Trunc(v.Num) {
		return 0, false
	}
	return v.Int(), true
}

// String reads a string field
func String(r gjson.Result, field string) (string, bool) {
	v, ok := Child(r, field)
	if !ok || v.Type != gjson.String {
		return "", false
	}
	return v.Str, true
}

// IsTrue reports whether the field holds the JSON literal true
func IsTrue(r gjson.Result, field string) bool {
	v, ok := Child(r, field)
	return ok && v.Type == gjson.True
}

// escapePath escapes sjson path metacharacters in a single key
func escapePath(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
