// Package sourcemap loads, validates and serializes version 3 source maps.
//
// Maps travel with their generated file through the build pipeline. [Load]
// picks up a map that is already referenced by the file (inline data URL or
// a sibling .map file) and strips the reference comment; [Map.InlineComment]
// and [Comment] produce the comment again when the map is written out.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gosourcemap "github.com/go-sourcemap/sourcemap"

	"github.com/desertthunder/bundlex/internal/shared"
)

const dataURLPrefix = "data:application/json;charset=utf-8;base64,"

var commentPattern = regexp.MustCompile(`(?m)^[ \t]*(?://[#@][ \t]+sourceMappingURL=(\S+)|/\*[#@][ \t]+sourceMappingURL=([^\s*]+)[ \t]*\*/)[ \t]*\r?$`)

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// LoadOptions mirrors the knobs of the source map init stage.
type LoadOptions struct {
	LoadMaps  bool // pick up maps already referenced by the file
	LargeFile bool // locate the comment with a plain byte scan instead of a regexp
}

// Parse decodes and validates a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", shared.ErrSourceMap, m.Version)
	}
	if _, err := gosourcemap.Parse("", data); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

// Identity returns an empty map for a file that has none yet.
func Identity(file string, contents []byte) *Map {
	return &Map{
		Version:        3,
		File:           filepath.Base(file),
		Sources:        []string{filepath.ToSlash(file)},
		SourcesContent: []string{string(contents)},
		Names:          []string{},
	}
}

// Bytes encodes the map as JSON.
func (m *Map) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Empty reports whether the map carries no mappings.
func (m *Map) Empty() bool {
	return m == nil || m.Mappings == ""
}

// InlineComment returns a sourceMappingURL comment embedding the map as a data URL.
func (m *Map) InlineComment() (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return "", err
	}
	return Comment(dataURLPrefix + base64.StdEncoding.EncodeToString(data)), nil
}

// Comment returns a line comment pointing at url.
func Comment(url string) string {
	return "//# sourceMappingURL=" + url
}

// Load looks for a sourceMappingURL comment in contents, strips it and returns the referenced map.
//
// External references are resolved relative to the directory of path. A file
// without a comment yields a nil map and unchanged contents.
func Load(path string, contents []byte, opts LoadOptions) ([]byte, *Map, error) {
	ref, start, ok := findComment(contents, opts.LargeFile)
	if !ok {
		return contents, nil, nil
	}

	code := bytes.TrimRight(contents[:start], " \t\r\n")
	code = append(code[:len(code):len(code)], '\n')
	if !opts.LoadMaps {
		return code, nil, nil
	}

	data, err := resolve(path, ref)
	if err != nil {
		return nil, nil, err
	}

	m, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return code, m, nil
}

// findComment returns the URL of the last sourceMappingURL comment and its byte offset.
func findComment(contents []byte, largeFile bool) (string, int, bool) {
	if largeFile {
		return scanComment(contents)
	}

	locs := commentPattern.FindAllSubmatchIndex(contents, -1)
	if len(locs) == 0 {
		return "", 0, false
	}
	loc := locs[len(locs)-1]
	for _, g := range [][2]int{{loc[2], loc[3]}, {loc[4], loc[5]}} {
		if g[0] >= 0 {
			return string(contents[g[0]:g[1]]), loc[0], true
		}
	}
	return "", 0, false
}

// scanComment finds the trailing comment without running a regexp over the whole file.
func scanComment(contents []byte) (string, int, bool) {
	for _, marker := range []string{"//# sourceMappingURL=", "//@ sourceMappingURL=", "/*# sourceMappingURL="} {
		idx := bytes.LastIndex(contents, []byte(marker))
		if idx < 0 {
			continue
		}
		rest := contents[idx+len(marker):]
		end := bytes.IndexAny(rest, " \t\r\n*")
		if end < 0 {
			end = len(rest)
		}
		if strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(rest[end:])), "*/")) != "" {
			continue
		}
		return string(rest[:end]), idx, true
	}
	return "", 0, false
}

// resolve returns the raw JSON behind a sourceMappingURL reference.
func resolve(path, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}

	target, err := url.PathUnescape(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: bad map url %q", shared.ErrSourceMap, ref)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), filepath.FromSlash(target))
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", shared.ErrSourceMap, target, err)
	}
	return data, nil
}

// decodeDataURL handles base64 and percent-encoded JSON data URLs.
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data url", shared.ErrSourceMap)
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
		}
		return data, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceMap, err)
	}
	return []byte(data), nil
}
