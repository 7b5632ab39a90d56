// Package axml reads and edits compiled binary Android XML, the format
// aapt produces for AndroidManifest.xml. The parser builds an element
// tree; the editor mutates the underlying bytes in place where the edit
// is size-preserving and splices chunks where it is not.
package axml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
	"github.com/aetherlink/dexedit/internal/strpool"
)

// Chunk types.
const (
	chunkStringPool   = 0x0001
	chunkXML          = 0x0003
	chunkStartNS      = 0x0100
	chunkEndNS        = 0x0101
	chunkStartElement = 0x0102
	chunkEndElement   = 0x0103
	chunkCData        = 0x0104
	chunkResourceMap  = 0x0180
)

const androidNS = "http://schemas.android.com/apk/res/android"

// Attribute is one decoded element attribute. Value is the rendered form;
// Type and Data are the raw typed value.
type Attribute struct {
	Namespace string
	Name      string
	Value     string
	Type      uint8
	Data      uint32
}

// Element is one node of the XML tree.
type Element struct {
	Namespace  string
	Name       string
	Attributes []Attribute
	Children   []Element
	Text       string
}

// Attr returns the value of the named attribute, or "".
func (e *Element) Attr(name string) string {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// Document is a parsed AXML file.
type Document struct {
	Root Element
	pool *strpool.Pool
}

// Parse decodes an AXML buffer into a Document. Unknown chunks are
// skipped; a malformed chunk ends the walk without failing what was
// already decoded.
func Parse(data []byte) (*Document, error) {
	typ, err := bytecursor.U16(data, 0)
	if err != nil {
		return nil, fmt.Errorf("axml: %w", err)
	}
	if typ != chunkXML {
		return nil, fmt.Errorf("axml: root chunk type 0x%04x, want 0x0003", typ)
	}
	fileSize, _ := bytecursor.U32(data, 4)
	if int(fileSize) > len(data) {
		return nil, fmt.Errorf("axml: header claims %d bytes, buffer has %d", fileSize, len(data))
	}

	doc := &Document{}

	// First pass locates the string pool.
	offset := 8
	for offset+8 <= len(data) {
		chunkType, _ := bytecursor.U16(data, offset)
		chunkSize, _ := bytecursor.U32(data, offset+4)
		if chunkSize == 0 || offset+int(chunkSize) > len(data) {
			break
		}
		if chunkType == chunkStringPool {
			pool, _, err := strpool.Parse(data, offset)
			if err != nil {
				return nil, fmt.Errorf("axml: %w", err)
			}
			doc.pool = pool
			break
		}
		offset += int(chunkSize)
	}
	if doc.pool == nil {
		doc.pool = &strpool.Pool{UTF8: true}
	}

	doc.parseElements(data)
	return doc, nil
}

// parseElements walks the element chunks and assembles the tree.
func (doc *Document) parseElements(data []byte) {
	var stack []*Element
	pos := 8
	for pos+8 <= len(data) {
		chunkType, _ := bytecursor.U16(data, pos)
		chunkSize, _ := bytecursor.U32(data, pos+4)
		if chunkSize == 0 || pos+int(chunkSize) > len(data) {
			break
		}

		switch chunkType {
		case chunkStartElement:
			elem := doc.parseStartElement(data, pos)
			if len(stack) == 0 {
				doc.Root = elem
				stack = append(stack, &doc.Root)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
				stack = append(stack, &parent.Children[len(parent.Children)-1])
			}
		case chunkEndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case chunkCData:
			if len(stack) > 0 {
				if idx, err := bytecursor.U32(data, pos+16); err == nil {
					stack[len(stack)-1].Text = doc.pool.Get(idx)
				}
			}
		}

		pos += int(chunkSize)
	}
}

func (doc *Document) parseStartElement(data []byte, pos int) Element {
	var elem Element
	nsIdx, _ := bytecursor.U32(data, pos+16)
	nameIdx, _ := bytecursor.U32(data, pos+20)
	attrStart, _ := bytecursor.U16(data, pos+24)
	attrSize, _ := bytecursor.U16(data, pos+26)
	attrCount, _ := bytecursor.U16(data, pos+28)

	if nsIdx != 0xFFFFFFFF {
		elem.Namespace = doc.pool.Get(nsIdx)
	}
	elem.Name = doc.pool.Get(nameIdx)

	if attrSize == 0 {
		attrSize = 20
	}
	attrPos := pos + 16 + int(attrStart)
	for i := 0; i < int(attrCount) && attrPos+20 <= len(data); i++ {
		var attr Attribute
		attrNS, _ := bytecursor.U32(data, attrPos)
		attrName, _ := bytecursor.U32(data, attrPos+4)
		attrRaw, _ := bytecursor.U32(data, attrPos+8)
		typeField, _ := bytecursor.U16(data, attrPos+14)
		attrData, _ := bytecursor.U32(data, attrPos+16)

		if attrNS != 0xFFFFFFFF {
			attr.Namespace = doc.pool.Get(attrNS)
		}
		attr.Name = doc.pool.Get(attrName)
		attr.Type = uint8(typeField >> 8)
		attr.Data = attrData

		if attrRaw != 0xFFFFFFFF {
			attr.Value = doc.pool.Get(attrRaw)
		} else {
			attr.Value = renderValue(attr.Type, attrData, doc.pool.Get)
		}

		elem.Attributes = append(elem.Attributes, attr)
		attrPos += int(attrSize)
	}
	return elem
}

// Package returns the manifest package attribute.
func (doc *Document) Package() string { return doc.Root.Attr("package") }

// VersionName returns android:versionName from the manifest element.
func (doc *Document) VersionName() string { return doc.Root.Attr("versionName") }

// VersionCode returns android:versionCode, or 0.
func (doc *Document) VersionCode() int {
	n, _ := strconv.Atoi(doc.Root.Attr("versionCode"))
	return n
}

// MinSDK returns the uses-sdk minSdkVersion value as text.
func (doc *Document) MinSDK() string { return doc.usesSdkAttr("minSdkVersion") }

// TargetSDK returns the uses-sdk targetSdkVersion value as text.
func (doc *Document) TargetSDK() string { return doc.usesSdkAttr("targetSdkVersion") }

func (doc *Document) usesSdkAttr(name string) string {
	for i := range doc.Root.Children {
		if doc.Root.Children[i].Name == "uses-sdk" {
			return doc.Root.Children[i].Attr(name)
		}
	}
	return ""
}

// Permissions lists the uses-permission names.
func (doc *Document) Permissions() []string {
	var perms []string
	for i := range doc.Root.Children {
		c := &doc.Root.Children[i]
		if c.Name == "uses-permission" {
			if name := c.Attr("name"); name != "" {
				perms = append(perms, name)
			}
		}
	}
	return perms
}

// Activities lists activity names declared under application.
func (doc *Document) Activities() []string { return doc.applicationChildren("activity") }

// Services lists service names declared under application.
func (doc *Document) Services() []string { return doc.applicationChildren("service") }

// Receivers lists receiver names declared under application.
func (doc *Document) Receivers() []string { return doc.applicationChildren("receiver") }

func (doc *Document) applicationChildren(tag string) []string {
	var names []string
	for i := range doc.Root.Children {
		app := &doc.Root.Children[i]
		if app.Name != "application" {
			continue
		}
		for j := range app.Children {
			if app.Children[j].Name == tag {
				if name := app.Children[j].Attr("name"); name != "" {
					names = append(names, name)
				}
			}
		}
	}
	return names
}

// XML renders the tree as indented text for human consumption.
func (doc *Document) XML() string {
	var sb strings.Builder
	writeXML(&sb, &doc.Root, 0)
	return sb.String()
}

func writeXML(sb *strings.Builder, elem *Element, indent int) {
	ind := strings.Repeat("  ", indent)
	sb.WriteString(ind)
	sb.WriteByte('<')
	sb.WriteString(elem.Name)
	for _, attr := range elem.Attributes {
		sb.WriteByte(' ')
		if attr.Namespace != "" {
			if slash := strings.LastIndexByte(attr.Namespace, '/'); slash >= 0 {
				sb.WriteString(attr.Namespace[slash+1:])
				sb.WriteByte(':')
			}
		}
		sb.WriteString(attr.Name)
		sb.WriteString(`="`)
		sb.WriteString(attr.Value)
		sb.WriteByte('"')
	}
	if len(elem.Children) == 0 && elem.Text == "" {
		sb.WriteString("/>\n")
		return
	}
	sb.WriteString(">\n")
	for i := range elem.Children {
		writeXML(sb, &elem.Children[i], indent+1)
	}
	if elem.Text != "" {
		sb.WriteString(ind)
		sb.WriteString("  ")
		sb.WriteString(elem.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString(ind)
	sb.WriteString("</")
	sb.WriteString(elem.Name)
	sb.WriteString(">\n")
}
