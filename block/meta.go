package block

import (
	"bytes"
	"encoding/binary"

	"github.com/arjunk/go-store/hash"
	"github.com/arjunk/go-store/lsmerr"
)

// Meta describes one block's placement within an SST file: the offset
// of its (compressed, hash-bearing) chunk, and the first/last keys it
// covers. Across an SST's meta vector, offsets strictly increase and
// successive blocks are disjoint and sorted (spec §3).
type Meta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

// EncodeMetas serializes a meta vector as: num_entries (u32) |
// [ offset (u32) | fk_len (u16) | fk | lk_len (u16) | lk ]... | hash
// (u32), where hash covers everything after num_entries.
func EncodeMetas(metas []Meta) []byte {
	var body bytes.Buffer
	for _, m := range metas {
		var off [4]byte
		binary.LittleEndian.PutUint32(off[:], m.Offset)
		body.Write(off[:])

		var fkLen [2]byte
		binary.LittleEndian.PutUint16(fkLen[:], uint16(len(m.FirstKey)))
		body.Write(fkLen[:])
		body.Write(m.FirstKey)

		var lkLen [2]byte
		binary.LittleEndian.PutUint16(lkLen[:], uint16(len(m.LastKey)))
		body.Write(lkLen[:])
		body.Write(m.LastKey)
	}

	out := make([]byte, 0, 4+body.Len()+4)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(metas)))
	out = append(out, body.Bytes()...)
	out = binary.LittleEndian.AppendUint32(out, hash.Checksum(body.Bytes()))
	return out
}

// DecodeMetas parses a meta section produced by EncodeMetas.
func DecodeMetas(buf []byte) ([]Meta, error) {
	if len(buf) < 8 {
		return nil, lsmerr.ErrBadFormat
	}
	numEntries := binary.LittleEndian.Uint32(buf[:4])
	body := buf[4 : len(buf)-4]
	wantHash := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if hash.Checksum(body) != wantHash {
		return nil, lsmerr.ErrBadFormat
	}

	r := bytes.NewReader(body)
	metas := make([]Meta, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		var m Meta
		var off [4]byte
		if _, err := readFull(r, off[:]); err != nil {
			return nil, lsmerr.ErrBadFormat
		}
		m.Offset = binary.LittleEndian.Uint32(off[:])

		fk, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		m.FirstKey = fk

		lk, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		m.LastKey = lk

		metas = append(metas, m)
	}
	return metas, nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, lsmerr.ErrBadFormat
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, lsmerr.ErrBadFormat
	}
	return buf, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		return n, lsmerr.ErrBadFormat
	}
	return n, nil
}
