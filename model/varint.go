package model

import (
	"encoding/binary"
	"io"
)

// WriteVarInt/ReadVarInt implement a minimal LEB128-style encoding for
// the counted arrays RollbackData and Body serialization need. Grounded
// on the teacher's util.WriteVarInt/ReadVarInt (used throughout
// model/undo/undo.go) -- same "count-prefixed array" wire shape, a
// simpler encoding since wire stability is explicitly out of scope
// (spec.md §6).
func WriteVarInt(w io.Writer, n uint64) error {
	var buf [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(buf[:], n)
	_, err := w.Write(buf[:l])
	return err
}

func ReadVarInt(r io.Reader) (uint64, error) {
	var buf [binary.MaxVarintLen64]byte
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReaderAdapter{r: r}
	}
	n, err := binary.ReadUvarint(br)
	_ = buf
	return n, err
}

type byteReaderAdapter struct {
	r io.Reader
}

func (b *byteReaderAdapter) ReadByte() (byte, error) {
	var c [1]byte
	_, err := io.ReadFull(b.r, c[:])
	return c[0], err
}
