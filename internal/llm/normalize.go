package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
)

// compound directions first so "northeast" is not read as "north"
var directions = []struct{ word, abbr string }{
	{"northeast", "NE"}, {"northwest", "NW"}, {"southeast", "SE"}, {"southwest", "SW"},
	{"north", "N"}, {"south", "S"}, {"east", "E"}, {"west", "W"},
}

var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*([AaPp][Mm])?`)

const (
	maxSnippets      = 3
	maxSnippetLength = 200
)

// NormalizeFacts rewrites normalized values into a canonical form so that the
// same attribute reported by different sources compares equal: compass
// directions become abbreviations, impact points snake_case and clock times
// zero-padded.
func NormalizeFacts(facts []model.Fact) []model.Fact {
	out := make([]model.Fact, len(facts))
	for i, f := range facts {
		switch f.Category {
		case "location":
			lower := strings.ToLower(f.NormalizedValue)
			for _, d := range directions {
				if strings.Contains(lower, d.word) {
					f.NormalizedValue = d.abbr
					break
				}
			}
		case "impact":
			v := strings.ToLower(f.NormalizedValue)
			v = strings.ReplaceAll(v, "-", "_")
			f.NormalizedValue = strings.ReplaceAll(v, " ", "_")
		case "temporal":
			if m := clockPattern.FindStringSubmatch(f.NormalizedValue); m != nil {
				hour, _ := strconv.Atoi(m[1])
				if m[3] != "" {
					f.NormalizedValue = fmt.Sprintf("%02d:%s %s", hour, m[2], strings.ToUpper(m[3]))
				} else {
					f.NormalizedValue = fmt.Sprintf("%02d:%s", hour, m[2])
				}
			}
		}
		out[i] = f
	}
	return out
}

// assignSources fills in facts the model left without a source, first by
// document-name keywords in the quoted text, then by word overlap with the
// opening text of each document.
func assignSources(facts []model.Fact, files []model.UploadedFile) {
	for i := range facts {
		if facts[i].Source != "" && facts[i].Source != model.SourceUnknown {
			continue
		}
		quote := strings.ToLower(facts[i].SourceText)
		if quote == "" {
			continue
		}
		if src, ok := sourceByName(quote, files); ok {
			facts[i].Source = src
			continue
		}
		if src, ok := sourceByOverlap(quote, files); ok {
			facts[i].Source = src
		}
	}
}

func sourceByName(quote string, files []model.UploadedFile) (string, bool) {
	for _, f := range files {
		for _, name := range []string{f.Key(), f.Filename} {
			fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
				return r == '_' || r == '-' || r == '.' || r == ' '
			})
			for _, kw := range fields {
				if len(kw) > 3 && strings.Contains(quote, kw) {
					return documentSource(f), true
				}
			}
		}
	}
	return "", false
}

func sourceByOverlap(quote string, files []model.UploadedFile) (string, bool) {
	factWords := longWords(quote)
	if len(factWords) == 0 {
		return "", false
	}
	for _, f := range files {
		if f.Type == model.FileTypeImage {
			continue
		}
		var sample strings.Builder
		for i, p := range f.Pages {
			if i == 2 {
				break
			}
			text := p.Text
			if len(text) > 200 {
				text = text[:200]
			}
			sample.WriteString(strings.ToLower(text))
			sample.WriteByte(' ')
		}
		docWords := longWords(sample.String())
		shared := 0
		for w := range factWords {
			if docWords[w] {
				shared++
			}
		}
		if shared >= 2 {
			return documentSource(f), true
		}
	}
	return "", false
}

func longWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) > 4 {
			words[w] = true
		}
	}
	return words
}

// enrichConflicts backfills missing snippets from the facts that back each
// value and defaults the severity.
func enrichConflicts(conflicts []model.Conflict, facts []model.Fact) {
	for i := range conflicts {
		c := &conflicts[i]
		if c.Severity == "" {
			c.Severity = model.SeverityMedium
		}
		for j := range c.ValueDetails {
			d := &c.ValueDetails[j]
			if len(d.SourceSnippets) > 0 {
				continue
			}
			d.SourceSnippets = snippetsFor(*d, facts)
		}
	}
}

func snippetsFor(d model.ValueDetail, facts []model.Fact) []string {
	want := model.Fold(d.Value)
	if want == "" {
		return nil
	}
	var out []string
	for _, f := range facts {
		if len(out) == maxSnippets {
			break
		}
		if !d.HasSource(f.Source) {
			continue
		}
		have := model.Fold(f.Value())
		if have == "" || !(strings.Contains(have, want) || strings.Contains(want, have)) {
			continue
		}
		snippet := f.SourceText
		if len(snippet) > maxSnippetLength {
			snippet = snippet[:maxSnippetLength]
		}
		if snippet != "" && !containsSnippet(out, snippet) {
			out = append(out, snippet)
		}
	}
	return out
}

func containsSnippet(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// rationaleImages carries the uploaded images through to the rationale.
func rationaleImages(files []model.UploadedFile) []model.RationaleImage {
	var images []model.RationaleImage
	for _, f := range files {
		switch f.Type {
		case model.FileTypeImage:
			if f.Data != "" {
				images = append(images, model.RationaleImage{Data: f.Data, Source: f.Key(), Type: "standalone_image"})
			}
		default:
			for _, p := range f.Pages {
				for _, img := range p.Images {
					images = append(images, model.RationaleImage{Data: img.Data, Source: f.Key(), Page: p.PageNumber, Type: "pdf_image"})
				}
			}
		}
	}
	return images
}
