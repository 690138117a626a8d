package memory

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
)

func mustInstance(t *testing.T, p *Provider, name string) *instance {
	t.Helper()
	inst, err := p.NewInstance(name)
	if err != nil {
		t.Fatalf("NewInstance(%q): %v", name, err)
	}
	return inst.(*instance)
}

func TestPutGetRoundTrip(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "infohash/piece0")

	payload := []byte("piece bytes")
	if err := inst.Put(bytes.NewReader(payload)); err != nil {
		t.Fatal(err)
	}

	rc, err := inst.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
	if p.ResidentBytes() != int64(len(payload)) {
		t.Errorf("ResidentBytes = %d, want %d", p.ResidentBytes(), len(payload))
	}
}

func TestGetMissing(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "nope")
	if _, err := inst.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
	if _, err := inst.Stat(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat = %v, want ErrNotExist", err)
	}
}

func TestWriteAtExtendsAndReadsBack(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "h/p")

	if _, err := inst.WriteAt([]byte("abcd"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.WriteAt([]byte("XY"), 6); err != nil {
		t.Fatal(err)
	}

	info, err := inst.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 8 {
		t.Errorf("size = %d, want 8", info.Size())
	}

	buf := make([]byte, 8)
	if _, err := inst.ReadAt(buf, 0); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("abcd\x00\x00XY")) {
		t.Errorf("content = %q", buf)
	}

	short := make([]byte, 4)
	if n, err := inst.ReadAt(short, 6); n != 2 || err != io.EOF {
		t.Errorf("ReadAt past end = (%d, %v), want (2, EOF)", n, err)
	}
}

func TestDeleteReleasesBytes(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "h/p")
	if err := inst.Put(bytes.NewReader(make([]byte, 128))); err != nil {
		t.Fatal(err)
	}
	if err := inst.Delete(); err != nil {
		t.Fatal(err)
	}
	if p.ResidentBytes() != 0 {
		t.Errorf("ResidentBytes = %d after delete, want 0", p.ResidentBytes())
	}
	if _, err := inst.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v after delete, want ErrNotExist", err)
	}
}

func TestByteCapEvictsColdEntries(t *testing.T) {
	p := NewProvider(WithMaxBytes(256))

	cold := mustInstance(t, p, "h/cold")
	warm := mustInstance(t, p, "h/warm")
	if err := cold.Put(bytes.NewReader(make([]byte, 128))); err != nil {
		t.Fatal(err)
	}
	if err := warm.Put(bytes.NewReader(make([]byte, 128))); err != nil {
		t.Fatal(err)
	}

	// Touch warm so cold is the LRU victim, then overflow the cap.
	if _, err := warm.Get(); err != nil {
		t.Fatal(err)
	}
	hot := mustInstance(t, p, "h/hot")
	if err := hot.Put(bytes.NewReader(make([]byte, 128))); err != nil {
		t.Fatal(err)
	}

	if _, err := cold.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cold entry should have been evicted, Get = %v", err)
	}
	if _, err := warm.Get(); err != nil {
		t.Errorf("warm entry evicted unexpectedly: %v", err)
	}
	if _, err := hot.Get(); err != nil {
		t.Errorf("hot entry evicted unexpectedly: %v", err)
	}
	if got := p.ResidentBytes(); got > 256 {
		t.Errorf("ResidentBytes = %d, want <= 256", got)
	}
}

func TestFreshWriteIsNeverTheVictim(t *testing.T) {
	p := NewProvider(WithMaxBytes(100))
	inst := mustInstance(t, p, "h/huge")
	if err := inst.Put(bytes.NewReader(make([]byte, 500))); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Get(); err != nil {
		t.Errorf("oversized fresh entry must survive its own write: %v", err)
	}
}

func TestReaddirnames(t *testing.T) {
	p := NewProvider()
	for _, name := range []string{"h/a", "h/b", "other/c"} {
		inst := mustInstance(t, p, name)
		if err := inst.Put(bytes.NewReader([]byte("x"))); err != nil {
			t.Fatal(err)
		}
	}

	dir := mustInstance(t, p, "h")
	names, err := dir.Readdirnames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v, want [a b]", names)
	}
}

func TestRejectsBadPaths(t *testing.T) {
	p := NewProvider()
	for _, name := range []string{"", "/abs", "../escape", ".."} {
		if _, err := p.NewInstance(name); err == nil {
			t.Errorf("expected error for path %q", name)
		}
	}
}
