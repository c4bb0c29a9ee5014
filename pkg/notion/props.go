package notion

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

// MaxTextChunk is the longest content Notion accepts in one rich text item.
const MaxTextChunk = 2000

// maxTextItems is the number of rich text items Notion accepts per property.
const maxTextItems = 100

// MaxTextLen is the most runes a single text property can hold. Text drops
// anything past it.
const MaxTextLen = MaxTextChunk * maxTextItems

// TextFits reports whether s survives Text without being cut.
func TextFits(s string) bool {
	return utf8.RuneCountInString(s) <= MaxTextLen
}

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: richText(s),
	}
}

// Text builds a rich text property. Long values are split into chunks of
// MaxTextChunk runes.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(s),
	}
}

// Number builds a number property.
func Number(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: v}
}

// URL builds a URL property.
func URL(u string) notionapi.URLProperty {
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: u}
}

// Checkbox builds a checkbox property.
func Checkbox(v bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: v}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

// Date builds a date property.
func Date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}

func richText(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	var out []notionapi.RichText
	runes := []rune(s)
	for len(runes) > 0 && len(out) < maxTextItems {
		n := min(len(runes), MaxTextChunk)
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	return out
}

// PlainText concatenates rich text items. Pages returned by the API carry
// PlainText; locally built ones only carry Text.Content.
func PlainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// TextValue reads a title or rich text property as plain text.
func TextValue(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.TitleProperty:
		return PlainText(p.Title)
	case notionapi.TitleProperty:
		return PlainText(p.Title)
	case *notionapi.RichTextProperty:
		return PlainText(p.RichText)
	case notionapi.RichTextProperty:
		return PlainText(p.RichText)
	}
	return ""
}

// NumberValue reads a number property. Notion reports an unset number as
// zero, so zero is returned as absent.
func NumberValue(props notionapi.Properties, name string) (float64, bool) {
	var v float64
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		v = p.Number
	case notionapi.NumberProperty:
		v = p.Number
	default:
		return 0, false
	}
	return v, v != 0
}

// URLValue reads a URL property.
func URLValue(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.URLProperty:
		return p.URL
	case notionapi.URLProperty:
		return p.URL
	}
	return ""
}

// CheckboxValue reads a checkbox property.
func CheckboxValue(props notionapi.Properties, name string) bool {
	switch p := props[name].(type) {
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case notionapi.CheckboxProperty:
		return p.Checkbox
	}
	return false
}

// SelectName reads a select or status property's option name.
func SelectName(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case notionapi.StatusProperty:
		return p.Status.Name
	}
	return ""
}
