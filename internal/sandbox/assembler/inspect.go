package assembler

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Tag kinds reported by Inspect
const (
	KindShim   = "shim"
	KindDep    = "dep"
	KindStyle  = "style"
	KindScript = "script"
	KindBabel  = "babel"
)

// Tag is one resource element of an assembled document, in document order
type Tag struct {
	Kind   string
	File   string
	URL    string
	InHead bool
}

// Inspect lists the shim, dependency, stylesheet and script elements of an
// assembled document in the order the browser will see them.
func Inspect(document string) ([]Tag, error) {
	root, err := htmlquery.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	nodes := resources(root)
	tags := make([]Tag, 0, len(nodes))
	for _, n := range nodes {
		tag := Tag{
			File:   htmlquery.SelectAttr(n, "data-file"),
			InHead: inHead(n),
		}
		switch {
		case n.Data == "link":
			tag.Kind = KindStyle
			tag.URL = htmlquery.SelectAttr(n, "href")
		case htmlquery.SelectAttr(n, "data-vibe") == "console-shim":
			tag.Kind = KindShim
		case htmlquery.SelectAttr(n, "data-vibe") == "dep":
			tag.Kind = KindDep
			tag.URL = htmlquery.SelectAttr(n, "src")
		case htmlquery.SelectAttr(n, "type") == "text/babel":
			tag.Kind = KindBabel
			tag.URL = htmlquery.SelectAttr(n, "src")
		default:
			tag.Kind = KindScript
			tag.URL = htmlquery.SelectAttr(n, "src")
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// resources collects script and stylesheet elements in document order.
// An XPath union would group them by expression instead.
func resources(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "script":
				out = append(out, n)
			case n.Data == "link" && strings.EqualFold(htmlquery.SelectAttr(n, "rel"), "stylesheet"):
				out = append(out, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func inHead(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "head" {
			return true
		}
	}
	return false
}

// InlineSource returns the text of inline script elements whose data-file
// matches file
func InlineSource(document, file string) (string, bool) {
	root, err := htmlquery.Parse(strings.NewReader(document))
	if err != nil {
		return "", false
	}
	n := htmlquery.FindOne(root, fmt.Sprintf("//script[@data-file=%q]", file))
	if n == nil {
		return "", false
	}
	return htmlquery.InnerText(n), true
}
