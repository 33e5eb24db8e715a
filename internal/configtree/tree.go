package configtree

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Tree owns the root node and the shared usage-error reporting path. A
// usage error (type mismatch on create, reading a
// non-existent attribute, notify-only on a non-boolean, default outside
// range) indicates a programmer bug in the caller, not a bad configuration
// file, so it is logged at Fatal and terminates the process rather than
// being returned.
type Tree struct {
	root   *Node
	logger *logrus.Logger

	// panicker lets tests observe a usage error without killing the test
	// binary; production code leaves this nil and gets logger.Fatalf.
	panicker func(msg string)
}

// New creates an empty tree with a single root node named "".
func New(logger *logrus.Logger) *Tree {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Tree{logger: logger}
	t.root = newNode(t, nil, "")
	return t
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

func (t *Tree) panicUsage(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if t.panicker != nil {
		t.panicker(msg)
		return
	}
	t.logger.WithField("component", "configtree").Fatal(msg)
}

// GetNode resolves a slash-delimited absolute path, creating intermediate
// nodes as needed (mirrors sshsGetNode's auto-vivification behavior).
func (t *Tree) GetNode(path string) *Node {
	n := t.root
	for _, part := range splitPath(path) {
		n = n.AddChild(part)
	}
	return n
}

// ExistsNode reports whether path resolves to an existing node without
// creating anything.
func (t *Tree) ExistsNode(path string) bool {
	n := t.root
	for _, part := range splitPath(path) {
		child, ok := n.GetChild(part)
		if !ok {
			return false
		}
		n = child
	}
	return true
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
