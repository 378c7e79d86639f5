package uuidutil

import (
	"encoding/base64"
	"encoding/hex"
	"github.com/google/uuid"
	"strings"
)

// MQTT 3.1 brokers may reject client identifiers longer than this.
const maxClientIDLength = 23

var escaper = strings.NewReplacer("9", "99", "-", "90", "_", "91")

func UUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ShortUUID is a url safe, 22 to 44 character rendering of a random uuid.
func ShortUUID() string {
	id := uuid.New()
	return escaper.Replace(base64.RawURLEncoding.EncodeToString(id[:]))
}

// ClientID returns prefix followed by random hex, trimmed to fit an MQTT client identifier.
func ClientID(prefix string) string {
	id := prefix + "-" + UUID()
	if len(id) > maxClientIDLength {
		id = id[:maxClientIDLength]
	}
	return id
}
