package validation

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidTagList is returned when a tags payload is not a list literal.
var ErrInvalidTagList = errors.New("enter a list of values")

const TagMaxLength = 100

// ParseTags turns a serialized list such as "['a', 'B']" or `["a","b"]` into
// lower-cased names. An empty payload is an empty list.
func ParseTags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}, nil
	}

	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		items, err = parseListLiteral(raw)
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := strings.ToLower(strings.TrimSpace(item))
		if name == "" {
			continue
		}
		if len([]rune(name)) > TagMaxLength {
			return nil, errors.New("tag names must not exceed 100 characters")
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// NormalizeTags lower-cases and de-duplicates tag names passed as a list.
func NormalizeTags(tags []string) ([]string, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return ParseTags(string(b))
}

// parseListLiteral accepts a bracketed list of quoted strings or bare scalars,
// e.g. ['a', "b", 3, True].
func parseListLiteral(s string) ([]string, error) {
	if len(s) < 2 {
		return nil, ErrInvalidTagList
	}
	open, closing := s[0], s[len(s)-1]
	if !((open == '[' && closing == ']') || (open == '(' && closing == ')')) {
		return nil, ErrInvalidTagList
	}
	body := []rune(s[1 : len(s)-1])

	var (
		items []string
		cur   strings.Builder
		quote rune
		had   bool
	)
	flush := func() error {
		item := strings.TrimSpace(cur.String())
		cur.Reset()
		if !had && item == "" {
			return nil
		}
		if !had {
			if strings.ContainsAny(item, " \t[]()'\"") {
				return ErrInvalidTagList
			}
		}
		items = append(items, item)
		had = false
		return nil
	}

	for i := 0; i < len(body); i++ {
		r := body[i]
		switch {
		case quote != 0 && r == '\\' && i+1 < len(body):
			i++
			cur.WriteRune(body[i])
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			if had || strings.TrimSpace(cur.String()) != "" {
				return nil, ErrInvalidTagList
			}
			cur.Reset()
			quote, had = r, true
		case r == ',':
			if err := flush(); err != nil {
				return nil, err
			}
		case had && !unicode.IsSpace(r):
			return nil, ErrInvalidTagList
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, ErrInvalidTagList
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return items, nil
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Slugify converts a tag name to its URL-safe slug.
// "Science Fiction" -> "science-fiction", "Poésie" -> "poesie".
func Slugify(s string) string {
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
