package gallery

import "strconv"

// Enter key identifiers reported by hosts: the named key and the
// legacy numeric code.
const (
	KeyEnter     = "Enter"
	KeyEnterCode = "13"
)

// Paginator keeps a page-number field inside [1, Max] and produces the
// navigation target when the user confirms. Max is fixed for the
// lifetime of the page; BaseURL is the page URL without the trailing
// page number.
type Paginator struct {
	Max     int
	BaseURL string
}

// KeyResult tells the host what to do after a keystroke.
type KeyResult struct {
	// Value is the text the field should display.
	Value string
	// Rewrite reports whether Value differs from what the field held,
	// i.e. the host must update the DOM node.
	Rewrite bool
	// Navigate, when non-empty, is the URL to load. Empty means stay.
	Navigate string
}

// HandleKey normalizes the field text after every keystroke. Garbage
// (non-numeric, non-empty) input resets the field to 1 and never
// navigates. Anything else is clamped into [1, Max]; an empty field is
// treated as "not yet a number" and converges on 1 through the clamp.
// Pressing Enter with a parseable value navigates to
// {BaseURL}/{clamped}.
func (p Paginator) HandleKey(key, text string) KeyResult {
	n, err := strconv.Atoi(text)
	if err != nil {
		if text != "" {
			return KeyResult{Value: "1", Rewrite: true}
		}
		n = 1
	}
	if n > p.Max {
		n = p.Max
	}
	if n < 1 {
		n = 1
	}

	value := strconv.Itoa(n)
	res := KeyResult{Value: value, Rewrite: value != text}
	if key == KeyEnter || key == KeyEnterCode {
		res.Navigate = p.BaseURL + "/" + value
	}
	return res
}

// PageCount returns the number of gallery pages needed for total items
// at perPage items each, never less than one.
func PageCount(total, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}
