// Package memory backs the transfer engine's piece storage with process
// memory. Content is never written to disk; when the configured byte cap is
// exceeded the least-recently-used piece files are dropped and the engine
// re-fetches them on demand.
package memory

import (
	"bytes"
	"container/list"
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/missinggo/v2/resource"
)

type Provider struct {
	mu    sync.RWMutex
	files map[string]*fileEntry
	lru   *list.List

	maxBytes int64
	curBytes int64
}

type fileEntry struct {
	data []byte
	mod  time.Time
	elem *list.Element
}

type ProviderOption func(*Provider)

// WithMaxBytes bounds resident piece data. Zero leaves the cache unbounded.
func WithMaxBytes(max int64) ProviderOption {
	return func(p *Provider) {
		if max > 0 {
			p.maxBytes = max
		}
	}
}

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		files: make(map[string]*fileEntry),
		lru:   list.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) MaxBytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxBytes
}

func (p *Provider) ResidentBytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.curBytes
}

func (p *Provider) NewInstance(name string) (resource.Instance, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, err
	}
	return &instance{provider: p, path: clean}, nil
}

type instance struct {
	provider *Provider
	path     string
}

func (i *instance) Get() (io.ReadCloser, error) {
	data, ok := i.provider.get(i.path)
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (i *instance) Put(r io.Reader) error {
	if r == nil {
		return errors.New("nil reader")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	i.provider.set(i.path, data)
	return nil
}

func (i *instance) Stat() (os.FileInfo, error) {
	return i.provider.stat(i.path)
}

func (i *instance) ReadAt(b []byte, off int64) (int, error) {
	return i.provider.readAt(i.path, b, off)
}

func (i *instance) WriteAt(b []byte, off int64) (int, error) {
	return i.provider.writeAt(i.path, b, off)
}

func (i *instance) Delete() error {
	i.provider.delete(i.path)
	return nil
}

func (i *instance) Readdirnames() ([]string, error) {
	return i.provider.readdir(i.path)
}

func (p *Provider) get(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.files[name]
	if !ok {
		return nil, false
	}
	p.touchLocked(name, item)
	data := make([]byte, len(item.data))
	copy(data, item.data)
	return data, true
}

func (p *Provider) set(name string, data []byte) {
	copied := make([]byte, len(data))
	copy(copied, data)
	p.mu.Lock()
	p.setLocked(name, copied)
	p.mu.Unlock()
}

func (p *Provider) readAt(name string, b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.files[name]
	if !ok {
		return 0, os.ErrNotExist
	}
	if off >= int64(len(item.data)) {
		return 0, io.EOF
	}
	n := copy(b, item.data[off:])
	p.touchLocked(name, item)
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (p *Provider) writeAt(name string, b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	maxInt := int64(^uint(0) >> 1)
	if off > maxInt-int64(len(b)) {
		return 0, errors.New("offset too large")
	}
	end := int(off) + len(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	item := p.files[name]
	if item == nil {
		item = &fileEntry{}
		p.files[name] = item
	}

	p.touchLocked(name, item)
	p.curBytes -= int64(len(item.data))
	if end > len(item.data) {
		next := make([]byte, end)
		copy(next, item.data)
		item.data = next
	}
	copy(item.data[off:], b)
	item.mod = time.Now().UTC()
	p.curBytes += int64(len(item.data))
	p.evictLocked(name)
	return len(b), nil
}

func (p *Provider) delete(name string) {
	p.mu.Lock()
	if item, ok := p.files[name]; ok {
		p.curBytes -= int64(len(item.data))
		if item.elem != nil {
			p.lru.Remove(item.elem)
		}
		delete(p.files, name)
	}
	p.mu.Unlock()
}

func (p *Provider) stat(name string) (os.FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item, ok := p.files[name]; ok {
		p.touchLocked(name, item)
		return memFileInfo{
			name: path.Base(name),
			size: int64(len(item.data)),
			mod:  item.mod,
		}, nil
	}
	if p.hasChildrenLocked(name) {
		return memFileInfo{
			name: path.Base(name),
			dir:  true,
			mod:  time.Now().UTC(),
		}, nil
	}
	return nil, os.ErrNotExist
}

func (p *Provider) readdir(name string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.files[name]; ok {
		return nil, errors.New("not a directory")
	}

	prefix := name
	if prefix != "" {
		prefix += "/"
	}
	seen := map[string]struct{}{}
	for key := range p.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" {
			continue
		}
		part := strings.SplitN(rest, "/", 2)[0]
		seen[part] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, os.ErrNotExist
	}

	names := make([]string, 0, len(seen))
	for child := range seen {
		names = append(names, child)
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) hasChildrenLocked(name string) bool {
	prefix := name
	if prefix != "" {
		prefix += "/"
	}
	for key := range p.files {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) setLocked(name string, data []byte) {
	now := time.Now().UTC()
	if item, ok := p.files[name]; ok {
		p.curBytes += int64(len(data)) - int64(len(item.data))
		item.data = data
		item.mod = now
		p.touchLocked(name, item)
		p.evictLocked(name)
		return
	}

	item := &fileEntry{data: data, mod: now}
	item.elem = p.lru.PushFront(name)
	p.files[name] = item
	p.curBytes += int64(len(data))
	p.evictLocked(name)
}

func (p *Provider) touchLocked(name string, item *fileEntry) {
	if item.elem == nil {
		item.elem = p.lru.PushFront(name)
		return
	}
	p.lru.MoveToFront(item.elem)
}

// evictLocked drops cold entries until the cap is honored. The entry just
// written is never the eviction victim.
func (p *Provider) evictLocked(keep string) {
	if p.maxBytes <= 0 {
		return
	}
	for p.curBytes > p.maxBytes {
		back := p.lru.Back()
		if back == nil {
			break
		}
		key, _ := back.Value.(string)
		if key == keep && p.lru.Len() == 1 {
			break
		}
		p.lru.Remove(back)
		item := p.files[key]
		if item == nil {
			continue
		}
		if key == keep {
			item.elem = p.lru.PushFront(key)
			continue
		}
		p.curBytes -= int64(len(item.data))
		delete(p.files, key)
	}
}

type memFileInfo struct {
	name string
	size int64
	mod  time.Time
	dir  bool
}

func (m memFileInfo) Name() string { return m.name }
func (m memFileInfo) Size() int64  { return m.size }
func (m memFileInfo) Mode() os.FileMode {
	if m.dir {
		return os.ModeDir | 0o755
	}
	return 0o644
}
func (m memFileInfo) ModTime() time.Time { return m.mod }
func (m memFileInfo) IsDir() bool        { return m.dir }
func (m memFileInfo) Sys() interface{}   { return nil }

func cleanPath(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	if strings.HasPrefix(trimmed, "/") {
		return "", errors.New("absolute path not allowed")
	}
	if strings.Contains(trimmed, "\x00") {
		return "", errors.New("invalid path")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("invalid path")
	}
	return cleaned, nil
}
