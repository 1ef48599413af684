package event

import "unicode/utf8"

// Page describes the document an event happened on. The host fills it in
// from whatever it has (a browser bridge, a request, a CLI flag).
type Page struct {
	URL       string
	Title     string
	Referrer  string
	UserAgent string
}

// PageViewProperties returns the extra page_view fields.
func (p Page) PageViewProperties() map[string]any {
	return map[string]any{
		"page_title": p.Title,
		"referrer":   p.Referrer,
		"user_agent": p.UserAgent,
	}
}

// Element describes a clicked element.
type Element struct {
	ID    string
	Class string
	Tag   string
	Text  string
}

// MaxElementText bounds the element text copied into click events.
const MaxElementText = 100

// ClickProperties returns the click fields for el at (x, y). Empty
// identifiers are sent as null.
func ClickProperties(el Element, x, y int) map[string]any {
	return map[string]any{
		"element_id":    nullable(el.ID),
		"element_class": nullable(el.Class),
		"element_tag":   nullable(el.Tag),
		"element_text":  nullable(truncateRunes(el.Text, MaxElementText)),
		"x_position":    x,
		"y_position":    y,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
