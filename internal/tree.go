package internal

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const treeRootLabel = "top"

// TreeNode is one node of the recommended Year/Month/Day/File layout.
type TreeNode struct {
	Label string

	// Set on file leaves only.
	Fingerprint     string
	RecommendedPath string

	parent   *TreeNode
	children []*TreeNode
}

func (n *TreeNode) Parent() *TreeNode { return n.parent }

// Children returns the node's children in insertion order.
func (n *TreeNode) Children() []*TreeNode {
	return append([]*TreeNode(nil), n.children...)
}

func (n *TreeNode) IsLeaf() bool { return n.Fingerprint != "" }

// Child returns the direct child with the given label, or nil.
func (n *TreeNode) Child(label string) *TreeNode {
	for _, c := range n.children {
		if c.Label == label {
			return c
		}
	}
	return nil
}

func (n *TreeNode) add(label string) *TreeNode {
	c := &TreeNode{Label: label, parent: n}
	n.children = append(n.children, c)
	return c
}

// Tree is a freshly built layout plus the recommended path of every leaf.
type Tree struct {
	Root *TreeNode

	// CrossReference maps recommended relative path to fingerprint.
	CrossReference map[string]string

	nodes map[string]*TreeNode // "2020", "2020/05", "2020/05/01"
}

// BuildTree groups every analyzed entry with a resolved date. Year, month
// and day nodes are memoized by their path so equal prefixes share a branch.
// Clashing file names under one day get _2, _3, ... suffixes.
func BuildTree(entries []MediaEntry) *Tree {
	t := &Tree{
		Root:           &TreeNode{Label: treeRootLabel},
		CrossReference: make(map[string]string),
		nodes:          make(map[string]*TreeNode),
	}

	dated := make([]MediaEntry, 0, len(entries))
	for _, e := range entries {
		if e.Analyzed && e.Resolved != nil {
			dated = append(dated, e)
		}
	}
	sort.Slice(dated, func(i, j int) bool {
		a, b := dated[i], dated[j]
		if *a.Resolved != *b.Resolved {
			return a.Resolved.Before(*b.Resolved)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Fingerprint < b.Fingerprint
	})

	for _, e := range dated {
		d := *e.Resolved
		year := t.branch(t.Root, fmt.Sprintf("%04d", d.Year))
		month := t.branch(year, fmt.Sprintf("%04d/%02d", d.Year, d.Month))
		day := t.branch(month, fmt.Sprintf("%04d/%02d/%02d", d.Year, d.Month, d.Day))
		dayKey := path.Join(year.Label, month.Label, day.Label)

		name := e.Name
		for n := 2; ; n++ {
			if _, taken := t.CrossReference[path.Join(dayKey, name)]; !taken {
				break
			}
			ext := filepath.Ext(e.Name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(e.Name, ext), n, ext)
		}

		leaf := day.add(fmt.Sprintf("%s (%s)", name, e.Source))
		leaf.Fingerprint = e.Fingerprint
		leaf.RecommendedPath = path.Join(dayKey, name)
		t.CrossReference[leaf.RecommendedPath] = e.Fingerprint
	}
	return t
}

// branch returns the memoized node for key, creating it under parent with
// the last path segment as label.
func (t *Tree) branch(parent *TreeNode, key string) *TreeNode {
	if n, ok := t.nodes[key]; ok {
		return n
	}
	n := parent.add(path.Base(key))
	t.nodes[key] = n
	return n
}

// Find returns the node at a slash separated path below the root, such as
// "2020/05/01", or nil.
func (t *Tree) Find(p string) *TreeNode {
	n := t.Root
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "" {
			continue
		}
		if n = n.Child(seg); n == nil {
			return nil
		}
	}
	return n
}

// Leaves returns every file node in rendering order.
func (t *Tree) Leaves() []*TreeNode {
	var out []*TreeNode
	var walk func(*TreeNode)
	walk = func(n *TreeNode) {
		if n.IsLeaf() {
			out = append(out, n)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// Lines renders the tree as indentation prefix plus label per line.
func (t *Tree) Lines() []string {
	lines := []string{t.Root.Label}
	var walk func(n *TreeNode, indent string)
	walk = func(n *TreeNode, indent string) {
		for i, c := range n.children {
			branch, next := "├── ", "│   "
			if i == len(n.children)-1 {
				branch, next = "└── ", "    "
			}
			lines = append(lines, indent+branch+c.Label)
			walk(c, indent+next)
		}
	}
	walk(t.Root, "")
	return lines
}

func (t *Tree) String() string {
	return strings.Join(t.Lines(), "\n")
}

// WriteTo writes the rendered tree to w, one node per line.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, line := range t.Lines() {
		c, err := bw.WriteString(line + "\n")
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// BuildTree rebuilds the layout from the current entries and records every
// leaf's recommended path on its entry. Call it after Update has returned.
func (r *Registry) BuildTree() *Tree {
	t := BuildTree(r.Entries())

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.RecommendedPath = ""
	}
	for p, fp := range t.CrossReference {
		if e, ok := r.entries[fp]; ok {
			e.RecommendedPath = p
		}
	}
	r.treeRefs = make(map[string]string, len(t.CrossReference))
	for p, fp := range t.CrossReference {
		r.treeRefs[p] = fp
	}
	r.log.WithField("files", len(t.CrossReference)).Info("Built recommended tree")
	return t
}

// TreeCrossReference returns a copy of the recommended path to fingerprint map
// from the last BuildTree or restored snapshot.
func (r *Registry) TreeCrossReference() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyStrings(r.treeRefs)
}
