package anacrolix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"peerstream/internal/domain"
)

var bareInfohashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// ResourceKey derives the stable session identity from a resource locator:
// the lower-cased hex infohash. Two locators naming the same content (same
// infohash, different tracker lists) map to the same key.
func ResourceKey(locator string) (string, error) {
	trimmed := strings.TrimSpace(locator)
	if bareInfohashPattern.MatchString(trimmed) {
		return strings.ToLower(trimmed), nil
	}
	m, err := metainfo.ParseMagnetUri(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidLocator, err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return "", fmt.Errorf("%w: missing infohash", domain.ErrInvalidLocator)
	}
	return strings.ToLower(m.InfoHash.HexString()), nil
}

// normalizeLocator turns a bare infohash into a magnet URI and validates
// magnet URIs before they reach the client.
func normalizeLocator(locator string) (string, error) {
	trimmed := strings.TrimSpace(locator)
	if bareInfohashPattern.MatchString(trimmed) {
		return "magnet:?xt=urn:btih:" + strings.ToLower(trimmed), nil
	}
	if _, err := ResourceKey(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
