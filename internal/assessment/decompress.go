package assessment

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// maxInflatedSize caps decompressed payloads; answer data above this is
// treated as corrupt.
const maxInflatedSize = 32 << 20

// Inflate decodes a base64 DEFLATE blob and parses the JSON inside. Both
// zlib-wrapped and raw DEFLATE streams are accepted.
func Inflate(b64 string) (any, error) {
	raw, err := decodeBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	text, err := inflate(raw)
	if err != nil {
		return nil, err
	}

	var v any
	if err := json.Unmarshal(text, &v); err != nil {
		return nil, fmt.Errorf("parse inflated JSON: %w", err)
	}
	return v, nil
}

// Decompress is Inflate for callers that only want the value: failures are
// logged and yield nil.
func Decompress(b64 string) any {
	v, err := Inflate(b64)
	if err != nil {
		slog.Warn("decompress scored data failed", "error", err, "input_len", len(b64))
		return nil
	}
	return v
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func inflate(raw []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		out, rerr := readAllLimited(zr)
		_ = zr.Close()
		if rerr == nil {
			return out, nil
		}
	}

	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	out, err := readAllLimited(fr)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

func readAllLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflatedSize {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", maxInflatedSize)
	}
	return out, nil
}
