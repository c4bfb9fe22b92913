// Package dirtree builds and queries the in-memory hierarchical view
// derived from a flat list of metadata.ObjectEntry, the way
// original_source/context.cc's constructor splits each object path into
// components and threads them into a tree of Directory nodes.
package dirtree

import (
	"sort"
	"strings"
	"sync"

	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/jacobsa/syncutil"
)

// Node is one entry in the synthesized hierarchy: either a Directory with
// children, or a childless File.
type Node struct {
	self     metadata.NodeMetadata
	children map[string]*Node
}

// Tree is an immutable, built-once directory hierarchy. Build a new Tree
// and atomically swap it in rather than mutating one in place; this is what
// lets readers run concurrently with a refresh (spec §5).
type Tree struct {
	// mu guards nothing mutable in a built Tree (Node maps are never
	// written again after Build returns) — it exists so CheckInvariants can
	// run under jacobsa/syncutil's invariant-checking discipline the same
	// way gcsfuse's fs/inode/dir.go does, and so future mutation wouldn't
	// silently skip invariant checks.
	mu   syncutil.InvariantMutex
	root *Node
}

// Build constructs a Tree from an unordered set of object entries. Entries
// whose final path component collides with an existing child (spec §4.3
// step 4, §9 open question b) are skipped with a logged warning rather than
// aborting the whole build.
func Build(entries []metadata.ObjectEntry) *Tree {
	root := &Node{
		self:     metadata.NodeMetadata{Name: "/", Kind: metadata.Directory},
		children: map[string]*Node{},
	}

	for _, e := range entries {
		if err := insert(root, e); err != nil {
			logger.Warnf("dirtree: skipping %q: %v", e.Path, err)
		}
	}

	fillImplicitDirMtimes(root)

	t := &Tree{root: root}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func insert(root *Node, e metadata.ObjectEntry) error {
	comps := splitPath(e.Path)
	if len(comps) == 0 {
		return &inputError{"empty path"}
	}

	cur := root
	for _, c := range comps[:len(comps)-1] {
		child, ok := cur.children[c]
		if !ok {
			child = &Node{
				self:     metadata.NodeMetadata{Name: c, Kind: metadata.Directory},
				children: map[string]*Node{},
			}
			cur.children[c] = child
		} else if child.self.Kind == metadata.File {
			return &inputError{"path prefix collides with an existing file"}
		}
		cur = child
	}

	leaf := comps[len(comps)-1]
	if _, exists := cur.children[leaf]; exists {
		return &inputError{"duplicate name in directory"}
	}
	cur.children[leaf] = &Node{
		self: metadata.NodeMetadata{
			Name:    leaf,
			Size:    e.Size,
			Kind:    metadata.File,
			MtimeMS: e.MtimeMS,
		},
	}
	return nil
}

// splitPath turns "/a/b/c.txt" into ["a", "b", "c.txt"]. Path must be
// absolute; the leading "/" is implicit (it names the root and is never a
// component of its own).
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// fillImplicitDirMtimes gives every directory created only as a path prefix
// the maximum mtime of any descendant file (spec §3), depth-first.
func fillImplicitDirMtimes(n *Node) int64 {
	if n.self.Kind == metadata.File {
		return n.self.MtimeMS
	}
	var max int64
	for _, c := range n.children {
		if m := fillImplicitDirMtimes(c); m > max {
			max = m
		}
	}
	n.self.MtimeMS = max
	return max
}

func (t *Tree) checkInvariants() {
	// A File node has no children; walk once and assert it.
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.self.Kind == metadata.File && len(n.children) != 0 {
			panic("dirtree: file node has children")
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
}

// Lookup walks path's components from the root and returns the node's own
// metadata, or false if any component along the way is missing. Looking up
// "/" returns the root's metadata.
func (t *Tree) Lookup(path string) (metadata.NodeMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.walk(path)
	if n == nil {
		return metadata.NodeMetadata{}, false
	}
	return n.self, true
}

// List returns path's immediate children in deterministic, name-ascending
// order. A missing path or a File path both yield an empty slice; the
// caller distinguishes the two cases with a prior Lookup (spec §4.3).
func (t *Tree) List(path string) []metadata.NodeMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.walk(path)
	if n == nil || n.self.Kind == metadata.File {
		return nil
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]metadata.NodeMetadata, len(names))
	for i, name := range names {
		out[i] = n.children[name].self
	}
	return out
}

func (t *Tree) walk(path string) *Node {
	comps := splitPath(path)
	cur := t.root
	for _, c := range comps {
		child, ok := cur.children[c]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}
