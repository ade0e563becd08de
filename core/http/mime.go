package http

import "strings"

// mimeRule maps a file-extension prefix to a media type. Rules are checked
// in order; "htm" intentionally also covers "html".
type mimeRule struct {
	ext  string
	mime string
}

var mimeRules = []mimeRule{
	{"css", "text/css"},
	{"htm", "text/html"},
	{"jpg", "image/jpeg"},
	{"js", "application/javascript"},
	{"png", "image/png"},
	{"txt", "text/plain"},
}

// MimeTypeDefault is used when no extension rule matches.
const MimeTypeDefault = "application/octet-stream"

// MimeType returns the media type for a file path, decided by the first
// matching extension rule.
func MimeType(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return MimeTypeDefault
	}
	ext := path[dot+1:]
	for _, rule := range mimeRules {
		if strings.HasPrefix(ext, rule.ext) {
			return rule.mime
		}
	}
	return MimeTypeDefault
}
