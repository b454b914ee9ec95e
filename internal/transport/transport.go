// Package transport turns the dataset into opaque tokens that can be pasted
// verbatim into an HTML document and decoded in the browser.
//
// A token is standard padded base64 over the raw UTF-8 bytes of the JSON
// serialization. Non-ASCII text is not escaped to \uXXXX references; the
// base64 layer alone makes the token safe, and its alphabet contains no
// quote, angle bracket, ampersand or backslash.
package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/seenimoa/riskwatch/pkg/models"
)

// ErrEncoding means a value cannot be encoded without corrupting it.
// It is fatal to a run.
var ErrEncoding = errors.New("transport encoding failure")

// ErrDecoding means a token is not a valid encoding of the expected type.
var ErrDecoding = errors.New("transport decoding failure")

// Encode serializes v to JSON (HTML escaping off) and base64-wraps it.
func Encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	// json.Encoder terminates with a newline that is not part of the value.
	raw := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode into v.
func Decode(token string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: base64: %w", ErrDecoding, err)
	}
	if !utf8.Valid(raw) {
		return fmt.Errorf("%w: payload is not UTF-8", ErrDecoding)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: json: %w", ErrDecoding, err)
	}
	return nil
}

// EncodeItems encodes the item sequence. Every string must be valid UTF-8
// and every tier known; anything else would not round-trip and is rejected.
func EncodeItems(items []models.NewsItem) (string, error) {
	for i, it := range items {
		if err := checkItem(it); err != nil {
			return "", fmt.Errorf("%w: item %d: %w", ErrEncoding, i, err)
		}
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	return Encode(items)
}

// DecodeItems decodes a token produced by EncodeItems.
func DecodeItems(token string) ([]models.NewsItem, error) {
	var items []models.NewsItem
	if err := Decode(token, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	return items, nil
}

// EncodeKeywords encodes the configured keyword list.
func EncodeKeywords(keywords []string) (string, error) {
	for i, k := range keywords {
		if !utf8.ValidString(k) {
			return "", fmt.Errorf("%w: keyword %d is not valid UTF-8", ErrEncoding, i)
		}
	}
	if keywords == nil {
		keywords = []string{}
	}
	return Encode(keywords)
}

// DecodeKeywords decodes a token produced by EncodeKeywords.
func DecodeKeywords(token string) ([]string, error) {
	var keywords []string
	if err := Decode(token, &keywords); err != nil {
		return nil, err
	}
	if keywords == nil {
		keywords = []string{}
	}
	return keywords, nil
}

// IsToken reports whether s uses only the standard base64 alphabet with
// correct padding, i.e. it is safe to place between quotes in any host
// document.
func IsToken(s string) bool {
	if len(s)%4 != 0 {
		return false
	}
	padded := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=' && i >= len(s)-2:
			padded = true
		case padded:
			return false
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		default:
			return false
		}
	}
	return true
}

func checkItem(it models.NewsItem) error {
	fields := [...]struct{ name, value string }{
		{"keyword", it.Keyword},
		{"title", it.Title},
		{"link", it.Link},
		{"date", it.Date},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%s is not valid UTF-8", f.name)
		}
	}
	if !it.Risk.Valid() {
		return fmt.Errorf("invalid tier %q", string(it.Risk))
	}
	return nil
}
