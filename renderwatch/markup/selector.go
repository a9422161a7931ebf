package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// querySelectorAll returns all descendants of root matching a simple CSS
// selector. Space-separated parts are descendant combinators.
func querySelectorAll(root *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(root, parts[0])

	for i := 1; i < len(parts); i++ {
		seen := make(map[*html.Node]bool)
		var next []*html.Node
		for _, parent := range matches {
			for _, n := range matchSimple(parent, parts[i]) {
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		matches = next
	}

	return matches
}

// matchSimple finds the descendants of root matching one selector part.
func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if matchesSelector(c, m) {
				results = append(results, c)
			}
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasVal  bool
}

// parseSimpleSelector parses "tag.class", "#id", "tag[attr=val]", etc.
func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
			s.hasVal = true
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.classes = strings.Split(sel[idx+1:], ".")
		sel = sel[:idx]
	}

	s.tag = strings.ToLower(sel)
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if len(s.classes) > 0 {
		have := strings.Fields(getAttr(n, "class"))
		for _, want := range s.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	if s.attrKey != "" {
		if !hasAttr(n, s.attrKey) {
			return false
		}
		if s.hasVal && getAttr(n, s.attrKey) != s.attrVal {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
