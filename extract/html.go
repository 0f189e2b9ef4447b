package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/refinery/core"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the text content of a markup document.
type Document struct {
	Title       string
	Description string
	Text        string
}

var excluded = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
	atom.Head:     true,
}

var blocks = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Main:       true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dl:         true,
	atom.Dt:         true,
	atom.Dd:         true,
	atom.Br:         true,
	atom.Hr:         true,
}

type htmlWalker struct {
	paragraphs []string
	current    strings.Builder
	skipDepth  int
	inTitle    bool
	title      strings.Builder
	desc       string
	anchors    []anchor
}

type anchor struct {
	href string
	text strings.Builder
}

func (w *htmlWalker) flush() {
	text := strings.Join(strings.Fields(w.current.String()), " ")
	w.current.Reset()
	if text != "" && text != "-" {
		w.paragraphs = append(w.paragraphs, text)
	}
}

func (w *htmlWalker) write(s string) {
	w.current.WriteString(s)
	for i := range w.anchors {
		w.anchors[i].text.WriteString(s)
	}
}

// ExtractHTML reads the visible text of an HTML or XHTML document.
func ExtractHTML(r io.Reader) (*Document, error) {
	z := html.NewTokenizer(r)
	w := &htmlWalker{}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				w.flush()
				return &Document{
					Title:       strings.Join(strings.Fields(w.title.String()), " "),
					Description: strings.Join(strings.Fields(w.desc), " "),
					Text:        strings.Join(w.paragraphs, "\n\n"),
				}, nil
			}
			return nil, fmt.Errorf("%w: %w", core.ErrCorruptInput, z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			w.start(tok, tt == html.SelfClosingTagToken)

		case html.EndTagToken:
			tok := z.Token()
			w.end(tok)

		case html.TextToken:
			data := z.Token().Data
			if w.inTitle {
				w.title.WriteString(data)
				continue
			}
			if w.skipDepth == 0 {
				w.write(data)
			}
		}
	}
}

func (w *htmlWalker) start(tok html.Token, selfClosing bool) {
	switch tok.DataAtom {
	case atom.Title:
		if !selfClosing {
			w.inTitle = true
		}
		return
	case atom.Meta:
		w.meta(tok)
		return
	case atom.Body:
		// an unclosed head ends here
		w.skipDepth = 0
	}

	if excluded[tok.DataAtom] {
		if !selfClosing {
			w.skipDepth++
		}
		return
	}
	if w.skipDepth > 0 {
		return
	}

	switch {
	case blocks[tok.DataAtom]:
		w.flush()
		if tok.DataAtom == atom.Li {
			w.current.WriteString("- ")
		}
	case tok.DataAtom == atom.Td || tok.DataAtom == atom.Th:
		w.write(" ")
	}
	if tok.DataAtom == atom.A && !selfClosing {
		w.anchors = append(w.anchors, anchor{href: attr(tok, "href")})
	}
}

func (w *htmlWalker) end(tok html.Token) {
	switch tok.DataAtom {
	case atom.Title:
		w.inTitle = false
		return
	}

	if excluded[tok.DataAtom] {
		if w.skipDepth > 0 {
			w.skipDepth--
		}
		return
	}
	if w.skipDepth > 0 {
		return
	}

	if tok.DataAtom == atom.A && len(w.anchors) > 0 {
		a := w.anchors[len(w.anchors)-1]
		w.anchors = w.anchors[:len(w.anchors)-1]
		if isAbsolute(a.href) && !strings.Contains(a.text.String(), a.href) {
			w.write(" (" + a.href + ")")
		}
	}
	if blocks[tok.DataAtom] {
		w.flush()
	}
}

func (w *htmlWalker) meta(tok html.Token) {
	name := strings.ToLower(attr(tok, "name"))
	if name == "" {
		name = strings.ToLower(attr(tok, "property"))
	}
	switch name {
	case "description", "og:description", "dc.description":
		if w.desc == "" {
			w.desc = attr(tok, "content")
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func isAbsolute(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}
