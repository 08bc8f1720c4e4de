// Package itemid encodes the OCPI identifier triple {location_id, evse_uid,
// connector_id} into an opaque commerce item id and back. The encoding is
// deterministic and reversible; a CRC32 suffix rejects externally-supplied
// strings that happen to base64-decode.
package itemid

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

const (
	fieldSep = "\x1f" // unit separator, never present in OCPI ids
	sumSep   = "."    // outside the base64url alphabet
)

// Encode produces the opaque item id for a connector. All three components
// must be non-empty.
func Encode(locationID, evseUID, connectorID string) (string, error) {
	for _, part := range []string{locationID, evseUID, connectorID} {
		if part == "" {
			return "", fmt.Errorf("%w: empty identifier component", domain.ErrMalformedIdentifier)
		}
		if strings.Contains(part, fieldSep) {
			return "", fmt.Errorf("%w: identifier component contains reserved byte", domain.ErrMalformedIdentifier)
		}
	}
	payload := locationID + fieldSep + evseUID + fieldSep + connectorID
	sum := crc32.ChecksumIEEE([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + sumSep + fmt.Sprintf("%08x", sum), nil
}

// EncodeRef is Encode for an ItemRef.
func EncodeRef(ref domain.ItemRef) (string, error) {
	return Encode(ref.LocationID, ref.EvseUID, ref.ConnectorID)
}

// Decode reverses Encode. It fails with MalformedIdentifier on wrong arity,
// invalid characters or checksum mismatch, and never returns a partially
// populated triple.
func Decode(opaque string) (domain.ItemRef, error) {
	var zero domain.ItemRef

	body, sumHex, found := strings.Cut(opaque, sumSep)
	if !found || body == "" {
		return zero, fmt.Errorf("%w: missing checksum: %q", domain.ErrMalformedIdentifier, opaque)
	}
	if len(sumHex) != 8 {
		return zero, fmt.Errorf("%w: bad checksum length: %q", domain.ErrMalformedIdentifier, opaque)
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", domain.ErrMalformedIdentifier, err)
	}

	sum, err := strconv.ParseUint(sumHex, 16, 32)
	if err != nil {
		return zero, fmt.Errorf("%w: bad checksum: %q", domain.ErrMalformedIdentifier, opaque)
	}
	if crc32.ChecksumIEEE(payload) != uint32(sum) {
		return zero, fmt.Errorf("%w: checksum mismatch: %q", domain.ErrMalformedIdentifier, opaque)
	}

	parts := strings.Split(string(payload), fieldSep)
	if len(parts) != 3 {
		return zero, fmt.Errorf("%w: wrong arity: %q", domain.ErrMalformedIdentifier, opaque)
	}
	for _, part := range parts {
		if part == "" {
			return zero, fmt.Errorf("%w: empty identifier component: %q", domain.ErrMalformedIdentifier, opaque)
		}
	}

	return domain.ItemRef{
		LocationID:  parts[0],
		EvseUID:     parts[1],
		ConnectorID: parts[2],
	}, nil
}
