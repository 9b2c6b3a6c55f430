package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// GossipKeySize is the number of random bytes in a discovery gossip key.
const GossipKeySize = 16

// GossipKey returns GossipKeySize random bytes, base64 encoded.
func GossipKey() (string, error) {
	return gossipKeyFrom(rand.Reader)
}

func gossipKeyFrom(r io.Reader) (string, error) {
	buf := make([]byte, GossipKeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
