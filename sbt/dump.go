package sbt

import (
	"encoding/hex"
	"fmt"
	"io"
)

// NameLookup resolves a shader identifier to the export it was created for.
type NameLookup interface {
	Lookup(identifier []byte) (name string, ok bool)
}

// Dump writes one line per record: index, GPU address, the export name of
// the identifier (hex when names cannot resolve it) and the argument bytes.
// It only reads the table. names may be nil.
func (t *Table) Dump(w io.Writer, names NameLookup) error {
	if _, err := fmt.Fprintf(w, "table %q: %d/%d records, stride %d\n", t.name, t.count, t.capacity, t.stride); err != nil {
		return err
	}
	for i := range t.count {
		rec, _ := t.Bytes(i)
		idSize := min(t.idSize, len(rec))
		id, args := rec[:idSize], rec[idSize:]

		label := hex.EncodeToString(id)
		if names != nil {
			if name, ok := names.Lookup(id); ok {
				label = name
			}
		}
		if _, err := fmt.Fprintf(w, "  [%d] %#x %s", i, t.Address(i), label); err != nil {
			return err
		}
		if trimmed := trimZeros(args); len(trimmed) > 0 {
			if _, err := fmt.Fprintf(w, " args=%s", hex.EncodeToString(trimmed)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// trimZeros drops trailing zero padding.
func trimZeros(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
