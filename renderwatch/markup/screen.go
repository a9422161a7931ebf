// Package markup turns serialized render output into a queryable tree.
//
// A Screen is rooted at a synthetic container element holding the parsed
// fragment, the way a component is mounted into a container node. Queries
// follow the usual testing conventions: Get* fails unless exactly one node
// matches, QueryAll* returns every match (possibly none).
package markup

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoMatch is returned by Get* queries when nothing matches.
var ErrNoMatch = errors.New("markup: no matching element")

// ErrMultipleMatches is returned by Get* queries when more than one node matches.
var ErrMultipleMatches = errors.New("markup: multiple matching elements")

// Screen is a parsed markup tree with queries scoped to its root.
// A Screen is read-only once built and safe for concurrent queries.
type Screen struct {
	root *html.Node
	raw  string
}

// Parse parses serialized markup into a Screen. The markup is treated as
// the inner HTML of a <div> container.
func Parse(raw string) (*Screen, error) {
	container := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	nodes, err := html.ParseFragment(strings.NewReader(raw), container)
	if err != nil {
		return nil, fmt.Errorf("markup: parse: %w", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return &Screen{root: container, raw: raw}, nil
}

// Root returns the container element. Repeated calls return the same node.
func (s *Screen) Root() *html.Node { return s.root }

// Raw returns the markup the screen was parsed from.
func (s *Screen) Raw() string { return s.raw }

// HTML re-serialises the container's children.
func (s *Screen) HTML() string {
	var buf bytes.Buffer
	for c := s.root.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// Text returns the whitespace-normalised text content of the whole screen.
func (s *Screen) Text() string {
	return collectText(s.root)
}

// GetByText returns the single element whose own text equals text after
// whitespace normalisation.
func (s *Screen) GetByText(text string) (*html.Node, error) {
	return single(s.QueryAllByText(text), "text %q", text)
}

// QueryAllByText returns every element whose own text equals text.
// Own text is the concatenation of the element's direct text children, so
// an ancestor never matches on behalf of its descendants.
func (s *Screen) QueryAllByText(text string) []*html.Node {
	want := normalizeSpace(text)
	return s.filter(func(n *html.Node) bool {
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return false
		}
		return ownText(n) == want
	})
}

// GetByRole returns the single element with the given ARIA role.
func (s *Screen) GetByRole(role string) (*html.Node, error) {
	return single(s.QueryAllByRole(role), "role %q", role)
}

// QueryAllByRole returns every element whose explicit or implicit ARIA role
// is role.
func (s *Screen) QueryAllByRole(role string) []*html.Node {
	return s.filter(func(n *html.Node) bool {
		return Role(n) == role
	})
}

// QuerySelectorAll returns elements matching a simple CSS selector
// (tag, .class, #id, [attr], [attr=val] and descendant combinators).
func (s *Screen) QuerySelectorAll(selector string) []*html.Node {
	return querySelectorAll(s.root, selector)
}

// QuerySelector returns the first match of selector, or nil.
func (s *Screen) QuerySelector(selector string) *html.Node {
	if m := s.QuerySelectorAll(selector); len(m) > 0 {
		return m[0]
	}
	return nil
}

// filter walks the element descendants of the root in document order.
func (s *Screen) filter(match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(s.root)
	return out
}

func single(nodes []*html.Node, format string, args ...any) (*html.Node, error) {
	switch len(nodes) {
	case 1:
		return nodes[0], nil
	case 0:
		return nil, fmt.Errorf("%w: "+format, append([]any{ErrNoMatch}, args...)...)
	default:
		return nil, fmt.Errorf("%w (%d): "+format, append([]any{ErrMultipleMatches, len(nodes)}, args...)...)
	}
}

// OuterHTML serialises a single node.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// Attr returns the value of an attribute on n.
func Attr(n *html.Node, key string) string {
	return getAttr(n, key)
}
