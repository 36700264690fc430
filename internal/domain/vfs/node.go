package vfs

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// NodeType discriminates files from folders
type NodeType string

const (
	TypeFile   NodeType = "file"
	TypeFolder NodeType = "folder"
)

// Language identifies how a file is treated by the editor and assembler
type Language string

const (
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJavaScript Language = "javascript"
	LangJSX        Language = "jsx"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJSON       Language = "json"
	LangMarkdown   Language = "markdown"
	LangPlainText  Language = "plaintext"
)

var extLanguages = map[string]Language{
	".html": LangHTML,
	".htm":  LangHTML,
	".css":  LangCSS,
	".js":   LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".jsx":  LangJSX,
	".ts":   LangTypeScript,
	".tsx":  LangTSX,
	".json": LangJSON,
	".md":   LangMarkdown,
	".txt":  LangPlainText,
}

// Node is a file or folder in the tree
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Language Language `json:"language,omitempty"`
	Content  string   `json:"content,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder
func (n *Node) IsFolder() bool {
	return n.Type == TypeFolder
}

// Ext returns the lowercase file extension including the dot
func (n *Node) Ext() string {
	return strings.ToLower(path.Ext(n.Name))
}

// ParentID returns the ID of the containing folder ("" for the root)
func (n *Node) ParentID() string {
	return parentOf(n.ID)
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	c := *n
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// LanguageFor derives a file's language from its name. When the extension is
// unknown the content is sniffed; empty unknown files are plain text.
func LanguageFor(name, content string) Language {
	if lang, ok := extLanguages[strings.ToLower(path.Ext(name))]; ok {
		return lang
	}
	if content == "" {
		return LangPlainText
	}

	mtype := mimetype.Detect([]byte(content))
	switch {
	case mtype.Is("text/html"):
		return LangHTML
	case mtype.Is("application/json"):
		return LangJSON
	case mtype.Is("text/javascript"), mtype.Is("application/javascript"):
		return LangJavaScript
	default:
		return LangPlainText
	}
}

func joinID(parentID, name string) string {
	if parentID == "" {
		return name
	}
	return parentID + "/" + name
}

func parentOf(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[:i]
	}
	return ""
}
