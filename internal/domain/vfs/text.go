package vfs

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// IsText reports whether data sniffs as a text format. Empty data is text.
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

// ToUTF8 returns data as UTF-8, converting from a detected legacy encoding
// when it is not valid UTF-8 already
func ToUTF8(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	contentType := "text/plain"
	if best, err := chardet.NewTextDetector().DetectBest(data); err == nil && best.Charset != "" {
		contentType += "; charset=" + best.Charset
	}
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}
