package intake

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/claimdesk/internal/model"
)

// elements that end a line of visible text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "hr": true,
}

// parseHTML extracts the visible text of an HTML document as one page and
// keeps inline data-URL images as page images.
func parseHTML(name string, data []byte) (model.UploadedFile, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("%s: parse html: %w", name, err)
	}

	var (
		buf    strings.Builder
		images []model.PageImage
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			case "img":
				if src := attr(n, "src"); strings.HasPrefix(src, "data:image/") {
					images = append(images, model.PageImage{Index: len(images), Data: src})
				}
			}
		}

		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}
	walk(doc)

	lines := strings.Split(buf.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}

	return model.UploadedFile{
		Type:     model.FileTypeText,
		Filename: name,
		Pages:    []model.Page{{PageNumber: 1, Text: strings.Join(kept, "\n"), Images: images}},
		Size:     len(data),
	}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
