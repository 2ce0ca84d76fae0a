package sbt

// Record is one shader record: an opaque shader identifier followed by
// local root arguments. It refers to the caller's slices; nothing is
// copied until CopyTo.
type Record struct {
	Identifier []byte
	LocalArgs  []byte
}

// NewRecord returns a record of identifier and optional arguments.
func NewRecord(identifier, localArgs []byte) Record {
	return Record{Identifier: identifier, LocalArgs: localArgs}
}

// Size returns the unpadded byte size of the record.
func (r Record) Size() int {
	return len(r.Identifier) + len(r.LocalArgs)
}

// CopyTo writes the identifier and then the arguments into dst with no
// padding in between, and returns the number of bytes written. dst must
// hold Size bytes.
func (r Record) CopyTo(dst []byte) int {
	n := copy(dst, r.Identifier)
	n += copy(dst[n:], r.LocalArgs)
	return n
}
