package tabular

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// XMLParser reads documents shaped as a root element wrapping repeated
// record elements:
//
//	<customers>
//	  <customer><Name>A</Name><Email>a@x.com</Email></customer>
//	  <customer><Name>B</Name><Email>b@x.com</Email></customer>
//	</customers>
//
// The first child element of the root names the record element; every root
// child with that name is a record. A record's headers are its immediate
// child element names and each cell is that child's own text. Grandchildren
// and repeated children are not represented: only the first occurrence's
// direct text is kept.
type XMLParser struct{}

// NewXMLParser returns the XML adapter.
func NewXMLParser() *XMLParser { return &XMLParser{} }

// Format reports which format this adapter handles.
func (p *XMLParser) Format() Format { return FormatXML }

type xmlNode struct {
	name     string
	children []*xmlNode
	text     strings.Builder
}

// Parse implements Parser.
func (p *XMLParser) Parse(data []byte) (*Dataset, error) {
	root, err := readXMLTree(normalizeText(data))
	if err != nil {
		return nil, err
	}
	if len(root.children) == 0 {
		return nil, parseErr(FormatXML, "no list of items found", nil)
	}

	recordName := root.children[0].name
	var b builder
	first := true
	for _, rec := range root.children {
		if rec.name != recordName {
			continue
		}

		var keys []string
		cells := make(map[string]string, len(rec.children))
		for _, field := range rec.children {
			key := keyName(field.name)
			if _, dup := cells[key]; dup {
				continue
			}
			keys = append(keys, key)
			cells[key] = leafText(field)
		}

		if first {
			b.setHeaders(keys)
			first = false
		}
		b.addKeyed(cells)
	}
	return b.dataset(), nil
}

// leafText returns the element's own character data, or "" when it is only
// whitespace (e.g. indentation around nested elements).
func leafText(n *xmlNode) string {
	s := n.text.String()
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// readXMLTree builds the element tree under the single document root.
func readXMLTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseErr(FormatXML, "invalid XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, parseErr(FormatXML, "multiple root elements", nil)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, parseErr(FormatXML, "no root element", nil)
	}
	return root, nil
}
