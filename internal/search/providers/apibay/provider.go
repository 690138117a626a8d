// Package apibay queries the apibay JSON index.
package apibay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"peerstream/internal/domain"
)

const (
	defaultEndpoint  = "https://apibay.org/q.php"
	defaultUserAgent = "peerstream/1.0"
)

var defaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

type Config struct {
	Endpoint  string
	UserAgent string
	Trackers  []string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
	trackers  []string
}

type apiItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Size     string `json:"size"`
	Seeders  string `json:"seeders"`
	Leechers string `json:"leechers"`
}

func New(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	trackers := cfg.Trackers
	if len(trackers) == 0 {
		trackers = append([]string(nil), defaultTrackers...)
	}
	return &Provider{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
		trackers:  trackers,
	}
}

func (p *Provider) Name() string {
	return "apibay"
}

func (p *Provider) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := uri.Query()
	q.Set("q", strings.TrimSpace(query))
	uri.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("provider HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	items, err := parseItems(payload)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 25
	}
	results := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		result, ok := p.toResult(item)
		if !ok {
			continue
		}
		results = append(results, result)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// parseItems tolerates the API's empty-result shape, which is an object
// rather than an array.
func parseItems(payload []byte) ([]apiItem, error) {
	var items []apiItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}
	var single map[string]string
	if err := json.Unmarshal(payload, &single); err == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected provider payload")
}

func (p *Provider) toResult(item apiItem) (domain.SearchResult, bool) {
	name := strings.TrimSpace(item.Name)
	infoHash := strings.ToLower(strings.TrimSpace(item.InfoHash))
	if name == "" || infoHash == "" || infoHash == strings.Repeat("0", 40) {
		return domain.SearchResult{}, false
	}
	if strings.Contains(strings.ToLower(name), "no results returned") {
		return domain.SearchResult{}, false
	}
	return domain.SearchResult{
		Title:     name,
		Magnet:    buildMagnet(infoHash, name, p.trackers),
		SizeBytes: atoi64(item.Size),
		Seeders:   atoi(item.Seeders),
		Leechers:  atoi(item.Leechers),
		Provider:  p.Name(),
	}, true
}

func buildMagnet(infoHash, name string, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(infoHash)
	if name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(name))
	}
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

func atoi(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func atoi64(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
