package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate elements are dropped along with their subtrees. The head
// is skipped too since the title is captured separately.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

// ExtractText parses HTML and returns the document title and the
// visible text with boilerplate removed. Malformed input degrades to a
// tag-stripped rendering rather than an error.
func ExtractText(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}
	var w walker
	w.visit(doc)
	return strings.TrimSpace(w.title), collapseWhitespace(w.text.String())
}

// walker accumulates the title and visible text in one DOM pass.
type walker struct {
	title string
	text  strings.Builder
}

func (w *walker) visit(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		if n.DataAtom == atom.Title && w.title == "" {
			w.title = nodeText(n)
			return
		}
		if boilerplate[n.DataAtom] {
			return
		}
		if blockElement(n.DataAtom) && w.text.Len() > 0 {
			w.text.WriteString("\n\n")
		}
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			w.text.WriteString(t)
			w.text.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.text.WriteString("\n")
	}
}

// nodeText concatenates the text of n's subtree.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func blockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Figure, atom.Figcaption, atom.Hr:
		return true
	}
	return false
}

// collapseWhitespace squeezes runs of spaces within lines and runs of
// blank lines down to one.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags tokenizes the input and keeps only text tokens. Used when
// full parsing fails.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.TextToken:
			b.WriteString(z.Token().Data)
			b.WriteString(" ")
		}
	}
}
