// Package media holds the filename-level rules for accepted uploads and
// generated artifacts.
package media

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SignedContentType is the media type of every signed artifact. The signer
// always produces an mp4 container regardless of the input format.
const SignedContentType = "video/mp4"

// DefaultFormats is the extension allow-list used when none is configured.
var DefaultFormats = []string{".mp4", ".mov", ".avi", ".mkv", ".m4v"}

// FormatSet is a case-insensitive set of accepted file extensions.
type FormatSet struct {
	exts map[string]struct{}
}

// NewFormatSet builds a FormatSet from extensions like ".mp4". Entries are
// lowercased and a missing leading dot is tolerated.
func NewFormatSet(exts []string) FormatSet {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return FormatSet{exts: set}
}

// ParseFormats splits a comma-separated extension list (the config/env
// representation) into a FormatSet.
func ParseFormats(s string) FormatSet {
	if strings.TrimSpace(s) == "" {
		return NewFormatSet(DefaultFormats)
	}
	return NewFormatSet(strings.Split(s, ","))
}

// Allowed reports whether filename's extension is in the set.
func (s FormatSet) Allowed(filename string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions returns the accepted extensions in sorted order, for error
// messages and config display.
func (s FormatSet) Extensions() []string {
	out := make([]string, 0, len(s.exts))
	for e := range s.exts {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// OutputName derives the signed artifact's filename from the original
// upload name and the signing time: "<stem>_signed_<timestamp>.mp4". The
// extension is always .mp4, matching what the signer produces.
func OutputName(originalName string, at time.Time) string {
	base := filepath.Base(originalName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_signed_" + at.UTC().Format("20060102_150405") + ".mp4"
}
