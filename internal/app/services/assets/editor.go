// Package assets locates and replaces a single image occurrence inside
// generated source. It is invoked outside the generation pipeline.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// ErrReplacementNotFound reports that no match existed at the selection's
// occurrence index and the first overall match was replaced instead. It is a
// soft warning: the returned project still carries the fallback replacement.
var ErrReplacementNotFound = errors.New("asset occurrence not found at index; replaced first match")

// ErrNoMatch reports that the selection's source does not appear anywhere in
// the project.
var ErrNoMatch = errors.New("asset source not found in project")

// Selection identifies one image occurrence. OccurrenceIndex is the count of
// prior matches of the same normalized source encountered while scanning
// files in a fixed order; it disambiguates identical URLs appearing more than
// once.
type Selection struct {
	Src             string `json:"src"`
	ResolvedSrc     string `json:"resolved_src,omitempty"`
	Alt             string `json:"alt,omitempty"`
	OccurrenceIndex int    `json:"occurrence_index"`
}

// Uploader stores an uploaded image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

// Regenerator produces a new image URL from a text description.
type Regenerator interface {
	RegenerateImage(ctx context.Context, description string) (string, error)
}

// Editor performs targeted single-asset replacement.
type Editor struct {
	log         *logger.Logger
	uploader    Uploader
	regenerator Regenerator
}

// NewEditor constructs an asset editor.
func NewEditor(log *logger.Logger) *Editor {
	if log == nil {
		log = logger.NewDefault("assets")
	}
	return &Editor{log: log}
}

// AttachUploader wires the direct-upload replacement source.
func (e *Editor) AttachUploader(u Uploader) { e.uploader = u }

// AttachRegenerator wires the AI regeneration replacement source.
func (e *Editor) AttachRegenerator(r Regenerator) { e.regenerator = r }

// srcAttr matches src-style attribute values in double or single quotes.
var srcAttr = regexp.MustCompile(`(?:src|srcSet|href)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// altAttr extracts the alt attribute from a tag fragment.
var altAttr = regexp.MustCompile(`alt\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// NormalizeSrc expands a source URL into its candidate set. When src is an
// optimization-proxy URL wrapping the original as a query parameter, the
// value rendered on screen differs from the literal value in source, so the
// set contains the raw value, the decoded original URL, and pathname-only
// forms of both.
func NormalizeSrc(src string) []string {
	var candidates []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		for _, c := range candidates {
			if c == v {
				return
			}
		}
		candidates = append(candidates, v)
	}

	add(src)
	add(pathnameOf(src))

	if u, err := url.Parse(src); err == nil {
		for _, param := range []string{"url", "src", "image"} {
			if wrapped := u.Query().Get(param); wrapped != "" {
				if decoded, err := url.QueryUnescape(wrapped); err == nil {
					add(decoded)
					add(pathnameOf(decoded))
				} else {
					add(wrapped)
					add(pathnameOf(wrapped))
				}
			}
		}
	}
	return candidates
}

func pathnameOf(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return u.Path
}

// SelectOccurrence builds the handle for the clicked image. Files are scanned
// in slice order; the occurrence index counts prior matches of the candidate
// set, and a non-empty alt text picks the first match sitting in a tag with
// that alt. Without an alt hint the first occurrence is selected.
func (e *Editor) SelectOccurrence(p project.Project, clickedSrc, resolvedSrc, alt string) Selection {
	sel := Selection{Src: clickedSrc, ResolvedSrc: resolvedSrc, Alt: alt}
	candidates := candidateSet(sel)

	count := 0
	for _, f := range p.Files {
		for _, m := range srcAttr.FindAllStringSubmatchIndex(f.Content, -1) {
			value := submatchValue(f.Content, m)
			if !matchesCandidate(value, candidates) {
				continue
			}
			if alt != "" && tagAltAround(f.Content, m[0]) == alt {
				sel.OccurrenceIndex = count
				return sel
			}
			count++
		}
	}
	sel.OccurrenceIndex = 0
	return sel
}

// Replace mutates exactly one occurrence of the selection's source, scanning
// files in the same fixed order. Matches are skipped until the running count
// equals the selection's occurrence index. When no match exists at that index
// anywhere, the first overall match is replaced instead and
// ErrReplacementNotFound is returned alongside the mutated project.
func (e *Editor) Replace(p project.Project, sel Selection, newSrc string) (project.Project, error) {
	candidates := candidateSet(sel)

	updated, replaced := e.replaceAt(p, candidates, sel.OccurrenceIndex, newSrc)
	if replaced {
		return updated, nil
	}

	// Degraded recovery: a no-op would leave the user's action with no
	// visible effect, which is worse than an approximate match.
	updated, replaced = e.replaceAt(p, candidates, 0, newSrc)
	if replaced {
		e.log.Warnf("asset occurrence %d not found; replaced first match of %s", sel.OccurrenceIndex, sel.Src)
		return updated, ErrReplacementNotFound
	}
	return p, fmt.Errorf("%w: %s", ErrNoMatch, sel.Src)
}

func (e *Editor) replaceAt(p project.Project, candidates []string, index int, newSrc string) (project.Project, bool) {
	count := 0
	for fi, f := range p.Files {
		matches := srcAttr.FindAllStringSubmatchIndex(f.Content, -1)
		for _, m := range matches {
			value := submatchValue(f.Content, m)
			if !matchesCandidate(value, candidates) {
				continue
			}
			if count != index {
				count++
				continue
			}
			start, end := valueBounds(m)
			out := p.Clone()
			out.Files[fi].Content = f.Content[:start] + newSrc + f.Content[end:]
			return out, true
		}
	}
	return p, false
}

// ReplaceWithUpload uploads the image and funnels the deterministic resulting
// URL through Replace.
func (e *Editor) ReplaceWithUpload(ctx context.Context, p project.Project, sel Selection, name string, content []byte) (project.Project, string, error) {
	if e.uploader == nil {
		return p, "", fmt.Errorf("replace with upload: no uploader configured")
	}
	newSrc, err := e.uploader.Upload(ctx, name, content)
	if err != nil {
		return p, "", fmt.Errorf("upload image: %w", err)
	}
	updated, err := e.Replace(p, sel, newSrc)
	return updated, newSrc, err
}

// ReplaceWithGenerated regenerates the image from a description and funnels
// the non-deterministic URL through Replace, keeping downstream persistence
// and preview-refresh logic uniform with the upload path.
func (e *Editor) ReplaceWithGenerated(ctx context.Context, p project.Project, sel Selection, description string) (project.Project, string, error) {
	if e.regenerator == nil {
		return p, "", fmt.Errorf("replace with generated image: no regenerator configured")
	}
	newSrc, err := e.regenerator.RegenerateImage(ctx, description)
	if err != nil {
		return p, "", fmt.Errorf("regenerate image: %w", err)
	}
	updated, err := e.Replace(p, sel, newSrc)
	return updated, newSrc, err
}

func candidateSet(sel Selection) []string {
	candidates := NormalizeSrc(sel.Src)
	if sel.ResolvedSrc != "" && sel.ResolvedSrc != sel.Src {
		candidates = append(candidates, NormalizeSrc(sel.ResolvedSrc)...)
	}
	return candidates
}

func matchesCandidate(value string, candidates []string) bool {
	if value == "" {
		return false
	}
	valuePath := pathnameOf(value)
	for _, c := range candidates {
		if value == c {
			return true
		}
		if valuePath != "" && valuePath == c {
			return true
		}
	}
	return false
}

// submatchValue returns the quoted attribute value from a srcAttr match.
func submatchValue(content string, m []int) string {
	if m[2] >= 0 {
		return content[m[2]:m[3]]
	}
	if len(m) >= 6 && m[4] >= 0 {
		return content[m[4]:m[5]]
	}
	return ""
}

// valueBounds returns the byte range of the attribute value within the file.
func valueBounds(m []int) (int, int) {
	if m[2] >= 0 {
		return m[2], m[3]
	}
	return m[4], m[5]
}

// tagAltAround extracts the alt text of the tag containing the attribute at
// offset, best effort.
func tagAltAround(content string, offset int) string {
	start := strings.LastIndex(content[:offset], "<")
	if start < 0 {
		start = 0
	}
	end := strings.Index(content[offset:], ">")
	if end < 0 {
		end = len(content) - offset
	}
	tag := content[start : offset+end]
	m := altAttr.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
