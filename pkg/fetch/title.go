package fetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Title extracts the <title> text from an HTML body, or "" if the document
// has none. Cheap enough for shallow passes that never build a full DOM.
func Title(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title, ok := traverse(doc)
	if !ok {
		return ""
	}
	title = strings.ReplaceAll(strings.ReplaceAll(title, "\n", " "), "\r", " ")
	return strings.ToValidUTF8(strings.TrimSpace(title), "")
}

func traverse(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := traverse(c); ok {
			return result, ok
		}
	}
	return "", false
}
