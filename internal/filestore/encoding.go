package filestore

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// EncodeText converts UTF-8 text into the named encoding.
func EncodeText(text, enc string) ([]byte, error) {
	if isUTF8(enc) {
		return []byte(text), nil
	}
	e, err := lookupEncoding(enc)
	if err != nil {
		return nil, err
	}
	out, err := e.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", enc, err)
	}
	return out, nil
}

// DecodeText converts bytes in the named encoding into UTF-8 text.
func DecodeText(data []byte, enc string) (string, error) {
	if isUTF8(enc) {
		return string(data), nil
	}
	e, err := lookupEncoding(enc)
	if err != nil {
		return "", err
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	return string(out), nil
}
