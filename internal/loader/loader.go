// Package loader reads log files into text, transparently decompressing
// gzip, zstd and snappy-framed content.
//
// Anything that does not decompress cleanly is treated as plain text, so a
// directory may freely mix rotated, compressed logs with the live one.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrIO is returned when a file cannot be read.
	ErrIO = errors.New("could not read file")

	// ErrDecode is returned when the content is neither a supported
	// compressed stream nor valid UTF-8 text.
	ErrDecode = errors.New("content is not valid UTF-8 text")
)

// Encoding identifies how a file's bytes were turned into text.
type Encoding string

const (
	EncodingPlain  Encoding = "plain"
	EncodingGzip   Encoding = "gzip"
	EncodingZstd   Encoding = "zstd"
	EncodingSnappy Encoding = "snappy"
)

type codec struct {
	encoding Encoding
	magic    []byte
	decode   func([]byte) ([]byte, error)
}

var codecs = []codec{
	{EncodingGzip, []byte{0x1f, 0x8b}, decodeGzip},
	{EncodingZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}, decodeZstd},
	{EncodingSnappy, []byte("\xff\x06\x00\x00sNaPpY"), decodeSnappy},
}

// Load reads the file at path and returns its textual content along with the
// encoding it was stored in.
func Load(path string) (string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	text, enc, err := Decode(data)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", path, err)
	}
	return text, enc, nil
}

// Decode turns raw file bytes into text. A recognized compressed stream that
// fails to decompress, or that decompresses to something other than UTF-8,
// falls back to the raw bytes.
func Decode(data []byte) (string, Encoding, error) {
	for _, c := range codecs {
		if !bytes.HasPrefix(data, c.magic) {
			continue
		}
		out, err := c.decode(data)
		if err == nil && utf8.Valid(out) {
			return string(out), c.encoding, nil
		}
		break
	}

	if !utf8.Valid(data) {
		return "", "", ErrDecode
	}
	return string(data), EncodingPlain, nil
}

func decodeGzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	// Only the first member is read; trailing bytes are ignored.
	zr.Multistream(false)

	return io.ReadAll(zr)
}

func decodeZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return dec.DecodeAll(data, nil)
}

func decodeSnappy(data []byte) ([]byte, error) {
	return io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
}
