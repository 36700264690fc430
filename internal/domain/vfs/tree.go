package vfs

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrNotFound    = errors.New("node not found")
	ErrNotFolder   = errors.New("parent is not a folder")
	ErrInvalidName = errors.New("invalid node name")
	ErrInvalidMove = errors.New("cannot move a folder into itself")
)

// Tree is an in-memory file tree rooted at an unnamed folder
type Tree struct {
	root *Node
}

// New creates an empty tree
func New() *Tree {
	return &Tree{root: &Node{Type: TypeFolder, Children: []*Node{}}}
}

// FromNodes builds a tree from top-level nodes, typically decoded from
// storage. IDs and languages are recomputed from names and duplicate
// names are suffixed, so a hand-edited document still yields a valid tree.
func FromNodes(nodes []*Node) *Tree {
	t := New()
	for _, n := range nodes {
		t.graft(t.root, n.Clone())
	}
	return t
}

func (t *Tree) graft(parent *Node, n *Node) {
	if validateName(n.Name) != nil {
		return
	}
	children := n.Children
	n.Children = nil
	n.Name = uniqueName(parent, n.Name, nil, n.IsFolder())
	n.ID = joinID(parent.ID, n.Name)

	if n.IsFolder() {
		n.Content = ""
		n.Language = ""
		n.Children = []*Node{}
		parent.Children = append(parent.Children, n)
		for _, child := range children {
			t.graft(n, child)
		}
		return
	}

	n.Type = TypeFile
	n.Language = LanguageFor(n.Name, n.Content)
	parent.Children = append(parent.Children, n)
}

// Nodes returns the top-level nodes
func (t *Tree) Nodes() []*Node {
	return t.root.Children
}

// Clone returns a deep copy of the tree
func (t *Tree) Clone() *Tree {
	return &Tree{root: t.root.Clone()}
}

// Get returns the node with the given ID
func (t *Tree) Get(id string) (*Node, error) {
	n := t.lookup(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

func (t *Tree) lookup(id string) *Node {
	if id == "" {
		return t.root
	}
	cur := t.root
	for _, name := range strings.Split(id, "/") {
		next := childNamed(cur, name)
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func (t *Tree) folder(id string) (*Node, error) {
	n := t.lookup(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !n.IsFolder() {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, id)
	}
	return n, nil
}

// AddFile creates a file under parentID ("" for the root)
func (t *Tree) AddFile(parentID, name, content string) (*Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	parent, err := t.folder(parentID)
	if err != nil {
		return nil, err
	}

	name = uniqueName(parent, name, nil, false)
	n := &Node{
		ID:       joinID(parent.ID, name),
		Name:     name,
		Type:     TypeFile,
		Language: LanguageFor(name, content),
		Content:  content,
	}
	parent.Children = append(parent.Children, n)
	return n, nil
}

// AddFolder creates a folder under parentID ("" for the root)
func (t *Tree) AddFolder(parentID, name string) (*Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	parent, err := t.folder(parentID)
	if err != nil {
		return nil, err
	}

	name = uniqueName(parent, name, nil, true)
	n := &Node{
		ID:       joinID(parent.ID, name),
		Name:     name,
		Type:     TypeFolder,
		Children: []*Node{},
	}
	parent.Children = append(parent.Children, n)
	return n, nil
}

// MkdirAll returns the folder at id, creating missing folders on the way.
// An existing file in the way is an error.
func (t *Tree) MkdirAll(id string) (*Node, error) {
	cur := t.root
	if id == "" {
		return cur, nil
	}
	for _, name := range strings.Split(id, "/") {
		if err := validateName(name); err != nil {
			return nil, err
		}
		next := childNamed(cur, name)
		switch {
		case next == nil:
			next = &Node{ID: joinID(cur.ID, name), Name: name, Type: TypeFolder, Children: []*Node{}}
			cur.Children = append(cur.Children, next)
		case !next.IsFolder():
			return nil, fmt.Errorf("%w: %s", ErrNotFolder, next.ID)
		}
		cur = next
	}
	return cur, nil
}

// Put writes a file at a full path, creating folders and replacing the
// content of an existing file in place.
func (t *Tree) Put(filePath, content string) (*Node, error) {
	filePath = strings.Trim(path.Clean("/"+filePath), "/")
	if filePath == "" {
		return nil, ErrInvalidName
	}
	if existing := t.lookup(filePath); existing != nil && !existing.IsFolder() {
		return t.UpdateContent(filePath, content)
	}
	parent, err := t.MkdirAll(parentOf(filePath))
	if err != nil {
		return nil, err
	}
	return t.AddFile(parent.ID, path.Base(filePath), content)
}

// Rename changes a node's name, keeping its content and parent. The node's
// ID (and every descendant ID) is regenerated from the new name.
func (t *Tree) Rename(id, newName string) (*Node, error) {
	if err := validateName(newName); err != nil {
		return nil, err
	}
	n, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if n == t.root {
		return nil, ErrInvalidName
	}
	parent := t.lookup(parentOf(id))

	n.Name = uniqueName(parent, newName, n, n.IsFolder())
	if !n.IsFolder() {
		n.Language = LanguageFor(n.Name, n.Content)
	}
	reparent(n, parent.ID)
	return n, nil
}

// Delete removes a node and, for folders, everything below it
func (t *Tree) Delete(id string) (*Node, error) {
	n, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if n == t.root {
		return nil, ErrInvalidName
	}
	detach(t.lookup(parentOf(id)), n)
	return n, nil
}

// Move re-parents a node under newParentID ("" for the root)
func (t *Tree) Move(id, newParentID string) (*Node, error) {
	n, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if n == t.root {
		return nil, ErrInvalidMove
	}
	if n.IsFolder() && (newParentID == id || strings.HasPrefix(newParentID, id+"/")) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidMove, id, newParentID)
	}
	target, err := t.folder(newParentID)
	if err != nil {
		return nil, err
	}
	if parentOf(id) == target.ID {
		return n, nil
	}

	detach(t.lookup(parentOf(id)), n)
	n.Name = uniqueName(target, n.Name, nil, n.IsFolder())
	reparent(n, target.ID)
	target.Children = append(target.Children, n)
	return n, nil
}

// UpdateContent replaces a file's content
func (t *Tree) UpdateContent(id, content string) (*Node, error) {
	n, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if n.IsFolder() {
		return nil, fmt.Errorf("%w: %s is a folder", ErrInvalidName, id)
	}
	n.Content = content
	if _, known := extLanguages[n.Ext()]; !known {
		n.Language = LanguageFor(n.Name, content)
	}
	return n, nil
}

// Flatten lists every file in depth-first pre-order, the order tabs are
// rendered in
func (t *Tree) Flatten() []*Node {
	var files []*Node
	t.Walk(func(n *Node, _ int) error {
		if !n.IsFolder() {
			files = append(files, n)
		}
		return nil
	})
	return files
}

// Len returns the number of files in the tree
func (t *Tree) Len() int {
	return len(t.Flatten())
}

// Walk visits every node in depth-first pre-order. Returning an error stops
// the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	var visit func(nodes []*Node, depth int) error
	visit = func(nodes []*Node, depth int) error {
		for _, n := range nodes {
			if err := fn(n, depth); err != nil {
				return err
			}
			if n.IsFolder() {
				if err := visit(n.Children, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(t.root.Children, 0)
}

// Glob returns files whose ID matches a doublestar pattern ("**/*.css")
func (t *Tree) Glob(pattern string) ([]*Node, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern: %s", pattern)
	}
	var matches []*Node
	for _, f := range t.Flatten() {
		if ok, _ := doublestar.Match(pattern, f.ID); ok {
			matches = append(matches, f)
		}
	}
	return matches, nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func childNamed(parent *Node, name string) *Node {
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// uniqueName returns name, or name with a counter suffix when a sibling other
// than skip already uses it
func uniqueName(parent *Node, name string, skip *Node, folder bool) string {
	taken := func(candidate string) bool {
		c := childNamed(parent, candidate)
		return c != nil && c != skip
	}
	if !taken(name) {
		return name
	}

	base, ext := name, ""
	if !folder {
		if e := path.Ext(name); e != "" && e != name {
			base, ext = strings.TrimSuffix(name, e), e
		}
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

func reparent(n *Node, parentID string) {
	n.ID = joinID(parentID, n.Name)
	for _, c := range n.Children {
		reparent(c, n.ID)
	}
}

func detach(parent *Node, n *Node) {
	children := parent.Children[:0]
	for _, c := range parent.Children {
		if c != n {
			children = append(children, c)
		}
	}
	parent.Children = children
}
