package assembler

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/PuerkitoBio/goquery"
)

// Skeleton is the document used when the workspace has no HTML file
const Skeleton = `<!DOCTYPE html><html><head></head><body><div id="root"></div></body></html>`

// ErrNoHead is returned when the parsed document lacks a head or body
var ErrNoHead = errors.New("document has no head or body")

// Resolver maps a file to the URL the preview loads it from
type Resolver func(f *vfs.Node) string

// Deps are the script URLs injected for JSX/TSX workspaces
type Deps struct {
	React    string
	ReactDOM string
	Babel    string
}

// Options configures one assembly
type Options struct {
	Deps Deps
	// RelayURL receives console messages from the shim; empty keeps
	// reporting to postMessage only.
	RelayURL string
}

// Document is the assembled preview
type Document struct {
	HTML string
	// Root is the ID of the HTML file used as the base, "" when synthesized
	Root string
	// Referenced files were linked from the root HTML and not injected
	Referenced []string
	Styles     []string
	Scripts    []string
	Babel      []string
}

// UsesBabel reports whether React and Babel were injected
func (d *Document) UsesBabel() bool {
	return len(d.Babel) > 0
}

// Assemble builds the preview document from files in tree order
func Assemble(files []*vfs.Node, resolve Resolver, opts Options) (*Document, error) {
	out := &Document{}

	// Name and ID to URL, last wins
	urls := make(map[string]string, len(files)*2)
	byKey := make(map[string]*vfs.Node, len(files)*2)
	fileNames := make(map[string]string, len(files))
	for _, f := range files {
		if f.IsFolder() {
			continue
		}
		u := resolve(f)
		urls[f.Name], urls[f.ID] = u, u
		byKey[f.Name], byKey[f.ID] = f, f
		fileNames[u] = f.ID
	}

	root := findRoot(files)
	source := Skeleton
	if root != nil {
		out.Root = root.ID
		source = root.Content
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse root html: %w", err)
	}
	head, body := doc.Find("head").First(), doc.Find("body").First()
	if head.Length() == 0 || body.Length() == 0 {
		return nil, ErrNoHead
	}

	referenced := rewriteReferences(doc, urls, byKey)

	shim, err := renderShim(opts.RelayURL, fileNames)
	if err != nil {
		return nil, fmt.Errorf("render shim: %w", err)
	}

	var (
		headStart strings.Builder
		headEnd   strings.Builder
		bodyEnd   strings.Builder
		babel     []*vfs.Node
	)
	headStart.WriteString(`<script data-vibe="console-shim">`)
	headStart.WriteString(shim)
	headStart.WriteString(`</script>`)

	for _, f := range files {
		switch f.Language {
		case vfs.LangJSX, vfs.LangTSX:
			babel = append(babel, f)
		}
	}
	if len(babel) > 0 {
		for _, dep := range []string{opts.Deps.React, opts.Deps.ReactDOM, opts.Deps.Babel} {
			if dep == "" {
				continue
			}
			fmt.Fprintf(&headStart, `<script crossorigin="anonymous" data-vibe="dep" src="%s"></script>`, attr(dep))
		}
	}

	for _, f := range files {
		if f.IsFolder() || referenced[f.ID] {
			continue
		}
		switch f.Language {
		case vfs.LangCSS:
			fmt.Fprintf(&headEnd, `<link rel="stylesheet" href="%s" data-file="%s"/>`, attr(resolve(f)), attr(f.ID))
			out.Styles = append(out.Styles, f.ID)
		case vfs.LangJavaScript:
			fmt.Fprintf(&bodyEnd, `<script src="%s" data-file="%s"></script>`, attr(resolve(f)), attr(f.ID))
			out.Scripts = append(out.Scripts, f.ID)
		}
	}

	for _, f := range babel {
		if referenced[f.ID] {
			continue
		}
		presets := "react"
		if f.Language == vfs.LangTSX {
			presets = "react,typescript"
		}
		fmt.Fprintf(&bodyEnd, `<script type="text/babel" data-presets="%s" data-filename="%s" data-file="%s">%s</script>`,
			presets, attr(f.Name), attr(f.ID), escapeScript(f.Content))
		out.Babel = append(out.Babel, f.ID)
	}

	head.PrependHtml(headStart.String())
	head.AppendHtml(headEnd.String())
	body.AppendHtml(bodyEnd.String())

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(html)), "<!doctype") {
		html = "<!DOCTYPE html>" + html
	}
	out.HTML = html

	for _, f := range files {
		if referenced[f.ID] {
			out.Referenced = append(out.Referenced, f.ID)
		}
	}
	return out, nil
}

// findRoot prefers index.html at any depth, then the first HTML file
func findRoot(files []*vfs.Node) *vfs.Node {
	var first *vfs.Node
	for _, f := range files {
		if f.IsFolder() || f.Language != vfs.LangHTML {
			continue
		}
		if strings.EqualFold(f.Name, "index.html") {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

// rewriteReferences points local link/script/img references at file URLs
// and returns the IDs of files that were referenced
func rewriteReferences(doc *goquery.Document, urls map[string]string, byKey map[string]*vfs.Node) map[string]bool {
	referenced := make(map[string]bool)
	rewrite := func(sel *goquery.Selection, attrName string, mark bool) {
		sel.Each(func(_ int, s *goquery.Selection) {
			ref, ok := s.Attr(attrName)
			if !ok {
				return
			}
			key, ok := localKey(ref)
			if !ok {
				return
			}
			f, ok := byKey[key]
			if !ok {
				f, ok = byKey[path.Base(key)]
			}
			if !ok {
				return
			}
			s.SetAttr(attrName, urls[f.ID])
			if _, has := s.Attr("data-file"); !has {
				s.SetAttr("data-file", f.ID)
			}
			if mark {
				referenced[f.ID] = true
			}
		})
	}

	rewrite(doc.Find("link[href]"), "href", true)
	rewrite(doc.Find("script[src]"), "src", true)
	rewrite(doc.Find("img[src]"), "src", false)
	return referenced
}

// localKey normalizes a relative reference to a file ID. Absolute URLs,
// protocol-relative URLs and fragments are not local.
func localKey(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	clean := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if clean == "" {
		return "", false
	}
	return clean, true
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&#34;", `<`, "&lt;", `>`, "&gt;")

func attr(s string) string {
	return attrEscaper.Replace(s)
}

// scriptClose matches an end tag opener in any letter case, as HTML does
var scriptClose = regexp.MustCompile(`(?i)</(script)`)

// escapeScript keeps inline source from closing its own script element
func escapeScript(src string) string {
	return scriptClose.ReplaceAllString(src, `<\/$1`)
}
