package domain

// SearchResult is one candidate resource locator returned by the search proxy.
type SearchResult struct {
	Title     string `json:"title"`
	Magnet    string `json:"magnet"`
	SizeBytes int64  `json:"sizeBytes"`
	Seeders   int    `json:"seeders"`
	Leechers  int    `json:"leechers"`
	Provider  string `json:"provider"`
}
