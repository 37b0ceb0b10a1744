package types

import (
	"bytes"
	"fmt"
	"io"
)

// BufferInterface is the payload buffer contract shared by the parser and
// the transports. The concrete type decides how a payload goes on the wire:
// a *StringBuffer travels as text, a *BytesBuffer as binary.
type BufferInterface interface {
	io.Reader
	io.Writer
	io.ReaderFrom
	io.WriterTo
	io.ByteReader
	io.ByteWriter
	io.RuneReader
	io.StringWriter
	fmt.Stringer
	WriteRune(rune) (int, error)
	ReadBytes(byte) ([]byte, error)
	ReadString(byte) (string, error)
	Next(int) []byte
	Bytes() []byte
	Len() int
	Reset()
}

// StringBuffer marks its contents as UTF-8 text.
type StringBuffer struct {
	*bytes.Buffer
}

func NewStringBuffer(buf []byte) *StringBuffer {
	return &StringBuffer{bytes.NewBuffer(buf)}
}

func NewStringBufferString(s string) *StringBuffer {
	return &StringBuffer{bytes.NewBufferString(s)}
}

// BytesBuffer marks its contents as raw binary.
type BytesBuffer struct {
	*bytes.Buffer
}

func NewBytesBuffer(buf []byte) *BytesBuffer {
	return &BytesBuffer{bytes.NewBuffer(buf)}
}

func NewBytesBufferString(s string) *BytesBuffer {
	return &BytesBuffer{bytes.NewBufferString(s)}
}
