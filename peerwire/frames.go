package peerwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen bounds length-prefixed frames so a hostile peer cannot make us
// allocate arbitrary memory off a 4-byte prefix.
const MaxFrameLen = 16 << 20

// WriteUint32 writes a big-endian 4-byte length prefix.
func WriteUint32(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a big-endian 4-byte length prefix, blocking until all four
// bytes arrive or the stream errors.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteFrame writes a u32 length prefix followed by the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("peerwire: frame of %d bytes exceeds limit", len(payload))
	}
	if err := WriteUint32(w, uint32(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a u32 length prefix and exactly that many bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxFrameLen {
		return nil, fmt.Errorf("peerwire: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteByte1 writes a single byte.
func WriteByte1(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadByte1 reads a single byte.
func ReadByte1(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
