package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// implicitRoles maps elements to their implicit ARIA role when the role
// does not depend on attributes.
var implicitRoles = map[atom.Atom]string{
	atom.Article:  "article",
	atom.Aside:    "complementary",
	atom.Button:   "button",
	atom.Dialog:   "dialog",
	atom.Footer:   "contentinfo",
	atom.Form:     "form",
	atom.H1:       "heading",
	atom.H2:       "heading",
	atom.H3:       "heading",
	atom.H4:       "heading",
	atom.H5:       "heading",
	atom.H6:       "heading",
	atom.Header:   "banner",
	atom.Hr:       "separator",
	atom.Li:       "listitem",
	atom.Main:     "main",
	atom.Nav:      "navigation",
	atom.Ol:       "list",
	atom.Option:   "option",
	atom.Progress: "progressbar",
	atom.Table:    "table",
	atom.Td:       "cell",
	atom.Textarea: "textbox",
	atom.Th:       "columnheader",
	atom.Tr:       "row",
	atom.Ul:       "list",
}

var inputRoles = map[string]string{
	"button":   "button",
	"checkbox": "checkbox",
	"email":    "textbox",
	"image":    "button",
	"number":   "spinbutton",
	"radio":    "radio",
	"range":    "slider",
	"reset":    "button",
	"search":   "searchbox",
	"submit":   "button",
	"tel":      "textbox",
	"text":     "textbox",
	"url":      "textbox",
}

// Role returns the ARIA role of an element: the first token of an explicit
// role attribute, otherwise the implicit role of the element. Elements
// without a role return "".
func Role(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	if explicit := strings.Fields(getAttr(n, "role")); len(explicit) > 0 {
		return explicit[0]
	}

	switch n.DataAtom {
	case atom.A, atom.Area:
		if hasAttr(n, "href") {
			return "link"
		}
		return ""
	case atom.Img:
		if hasAttr(n, "alt") && getAttr(n, "alt") == "" {
			return "presentation"
		}
		return "img"
	case atom.Input:
		typ := strings.ToLower(getAttr(n, "type"))
		if typ == "" {
			return "textbox"
		}
		return inputRoles[typ]
	case atom.Select:
		if hasAttr(n, "multiple") {
			return "listbox"
		}
		return "combobox"
	case atom.Section:
		if hasAttr(n, "aria-label") || hasAttr(n, "aria-labelledby") {
			return "region"
		}
		return ""
	}
	return implicitRoles[n.DataAtom]
}
