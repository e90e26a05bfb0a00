package ksg

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint is a compact deterministic descriptor of a web form, used to
// match new pages against stored patterns.
type Fingerprint struct {
	Host       string         `json:"host"`
	FieldTypes map[string]int `json:"field_types"`
	SubmitHint string         `json:"submit_hint,omitempty"`
	FormType   string         `json:"form_type,omitempty"`
}

// NormalizeHost lowercases the host and strips a leading www. A bare host
// without a scheme is accepted.
func NormalizeHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Treat the input as a bare host.
		u, err = url.Parse("https://" + rawURL)
		if err != nil || u.Host == "" {
			return strings.ToLower(strings.TrimPrefix(rawURL, "www."))
		}
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// BuildFingerprint parses the page HTML and summarizes its form fields.
func BuildFingerprint(pageURL, pageHTML, formType string) Fingerprint {
	fp := Fingerprint{
		Host:       NormalizeHost(pageURL),
		FieldTypes: map[string]int{},
		FormType:   formType,
	}
	if pageHTML == "" {
		return fp
	}

	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return fp
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				typ := attr(n, "type")
				if typ == "" {
					typ = "text"
				}
				if typ == "submit" {
					fp.SubmitHint = submitSelector(n, "input")
				} else if typ != "hidden" {
					fp.FieldTypes[typ]++
				}
			case "select":
				fp.FieldTypes["select"]++
			case "textarea":
				fp.FieldTypes["textarea"]++
			case "button":
				typ := attr(n, "type")
				if typ == "submit" || typ == "" {
					if fp.SubmitHint == "" {
						fp.SubmitHint = submitSelector(n, "button")
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return fp
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func submitSelector(n *html.Node, tag string) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	return tag + "[type='submit']"
}

// overlapScore is the 0..2 field-type overlap component of pattern scoring,
// computed as 2 * |intersection| / |union| over field type keys.
func overlapScore(a, b map[string]int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	union := map[string]bool{}
	for t := range a {
		union[t] = true
	}
	for t := range b {
		union[t] = true
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return 2.0 * float64(inter) / float64(len(union))
}

// normalizeFieldName reduces a field name to lowercase alphanumerics so
// "E-Mail", "email_address" and "userEmail" can be fuzzy-matched.
func normalizeFieldName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// fuzzyMatchField picks the closest target field for a source field by
// normalized equality, then containment. Returns "" when nothing plausible.
func fuzzyMatchField(source string, targets []string) string {
	ns := normalizeFieldName(source)
	if ns == "" {
		return ""
	}
	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)

	for _, t := range sorted {
		if normalizeFieldName(t) == ns {
			return t
		}
	}
	for _, t := range sorted {
		nt := normalizeFieldName(t)
		if nt != "" && (strings.Contains(nt, ns) || strings.Contains(ns, nt)) {
			return t
		}
	}
	return ""
}
