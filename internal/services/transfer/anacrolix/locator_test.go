package anacrolix

import (
	"errors"
	"strings"
	"testing"

	"peerstream/internal/domain"
)

const sampleHash = "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"

func TestResourceKey(t *testing.T) {
	cases := []struct {
		name    string
		locator string
		want    string
	}{
		{"magnet", "magnet:?xt=urn:btih:" + sampleHash + "&dn=ubuntu.iso", sampleHash},
		{"magnet with uppercase hash", "magnet:?xt=urn:btih:" + strings.ToUpper(sampleHash), sampleHash},
		{"bare infohash", sampleHash, sampleHash},
		{"bare infohash uppercase", strings.ToUpper(sampleHash), sampleHash},
		{"surrounding whitespace", "  " + sampleHash + "  ", sampleHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResourceKey(tc.locator)
			if err != nil {
				t.Fatalf("ResourceKey(%q): %v", tc.locator, err)
			}
			if got != tc.want {
				t.Errorf("key = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResourceKeySameContentSameKey(t *testing.T) {
	a, err := ResourceKey("magnet:?xt=urn:btih:" + sampleHash + "&tr=udp%3A%2F%2Fone")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ResourceKey("magnet:?xt=urn:btih:" + sampleHash + "&tr=udp%3A%2F%2Ftwo&dn=other")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("keys differ for the same infohash: %q vs %q", a, b)
	}
}

func TestResourceKeyInvalid(t *testing.T) {
	for _, locator := range []string{
		"",
		"not a locator",
		"http://example.com/file.torrent",
		"magnet:?dn=missing-hash",
		"zz" + sampleHash[2:], // not hex
		sampleHash[:20],       // too short
	} {
		if _, err := ResourceKey(locator); !errors.Is(err, domain.ErrInvalidLocator) {
			t.Errorf("ResourceKey(%q) = %v, want ErrInvalidLocator", locator, err)
		}
	}
}

func TestNormalizeLocator(t *testing.T) {
	got, err := normalizeLocator(strings.ToUpper(sampleHash))
	if err != nil {
		t.Fatal(err)
	}
	if got != "magnet:?xt=urn:btih:"+sampleHash {
		t.Errorf("normalized = %q", got)
	}

	magnet := "magnet:?xt=urn:btih:" + sampleHash + "&dn=x"
	got, err = normalizeLocator(magnet)
	if err != nil {
		t.Fatal(err)
	}
	if got != magnet {
		t.Errorf("magnet should pass through unchanged, got %q", got)
	}

	if _, err := normalizeLocator("junk"); !errors.Is(err, domain.ErrInvalidLocator) {
		t.Errorf("got %v, want ErrInvalidLocator", err)
	}
}
