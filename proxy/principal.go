package proxy

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// maxPrincipalBytes is the longest raw principal the replica accepts.
const maxPrincipalBytes = 29

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodePrincipal renders raw principal bytes in textual form: a CRC-32
// checksum is prepended, the result base32 encoded in lowercase and split
// into dash-separated groups of five.
func EncodePrincipal(raw []byte) string {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)
	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(enc))
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// DecodePrincipal parses textual principal form and verifies its checksum
// and canonical grouping.
func DecodePrincipal(text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty principal")
	}
	if strings.ToLower(text) != text {
		return nil, errors.New("principal must be lowercase")
	}
	buf, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(text, "-", "")))
	if err != nil {
		return nil, fmt.Errorf("invalid principal alphabet: %w", err)
	}
	if len(buf) < 4 {
		return nil, errors.New("principal too short")
	}
	raw := buf[4:]
	if len(raw) > maxPrincipalBytes {
		return nil, errors.New("principal too long")
	}
	if binary.BigEndian.Uint32(buf) != crc32.ChecksumIEEE(raw) {
		return nil, errors.New("principal checksum mismatch")
	}
	if EncodePrincipal(raw) != text {
		return nil, errors.New("principal is not in canonical form")
	}
	return raw, nil
}

// ValidateEndpoint checks that endpoint is a well-formed principal.
func ValidateEndpoint(endpoint string) error {
	if _, err := DecodePrincipal(endpoint); err != nil {
		return &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)}
	}
	return nil
}
