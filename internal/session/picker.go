package session

import (
	"path"
	"sort"
	"strings"

	"peerstream/internal/domain"
)

// playableExtensions is the fixed allow-list for selecting the streamed
// file. Order in the torrent's directory listing decides ties, not the
// list below.
var playableExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".webm": {},
	".avi":  {},
	".mov":  {},
	".m4v":  {},
	".mp3":  {},
	".flac": {},
	".ogg":  {},
}

// pickPlayable returns the first file (in directory order) whose extension
// is allow-listed.
func pickPlayable(files []domain.FileRef) (domain.FileRef, bool) {
	for _, f := range files {
		if f.Length <= 0 {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Path))
		if _, ok := playableExtensions[ext]; ok {
			return f, true
		}
	}
	return domain.FileRef{}, false
}

// summarizeExtensions lists the distinct extensions present, for the error
// reason shown when no playable file exists.
func summarizeExtensions(files []domain.FileRef) string {
	if len(files) == 0 {
		return "an empty file list"
	}
	seen := map[string]struct{}{}
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Path))
		if ext == "" {
			ext = "(none)"
		}
		seen[ext] = struct{}{}
	}
	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ") + " files"
}
