package validation

import (
	_ "embed"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const (
	UsernameMaxLength = 20
	UsernameMinLength = 3
)

// ErrUsernameExhausted is returned when every candidate tried was taken.
var ErrUsernameExhausted = errors.New("could not derive a free username")

//go:embed username_blacklist.yaml
var blacklistYAML []byte

var (
	blacklistOnce sync.Once
	blacklist     map[string]struct{}
)

func loadBlacklist() {
	var doc struct {
		Reserved []string `yaml:"reserved"`
	}
	blacklist = make(map[string]struct{})
	if err := yaml.Unmarshal(blacklistYAML, &doc); err != nil {
		panic("validation: bad username blacklist: " + err.Error())
	}
	for _, name := range doc.Reserved {
		blacklist[strings.ToLower(name)] = struct{}{}
	}
}

// IsBlacklisted reports whether username is reserved, ignoring case.
func IsBlacklisted(username string) bool {
	blacklistOnce.Do(loadBlacklist)
	_, ok := blacklist[strings.ToLower(username)]
	return ok
}

// UsernameBase derives the starting candidate from an email's local part.
func UsernameBase(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	local = norm.NFKC.String(strings.TrimSpace(local))
	return truncateRunes(local, UsernameMaxLength)
}

// UsernameCandidate returns the i-th candidate for base. Candidate 0 is the
// base itself; candidate i > 0 appends i, shortening the base so the result
// never exceeds UsernameMaxLength. Short results are padded with underscores.
func UsernameCandidate(base string, i int) string {
	name := truncateRunes(base, UsernameMaxLength)
	if i > 0 {
		suffix := strconv.Itoa(i)
		name = truncateRunes(name, UsernameMaxLength-len(suffix)) + suffix
	}
	for len([]rune(name)) < UsernameMinLength {
		name += "_"
	}
	return name
}

// GenerateUsername walks the candidates of email until taken reports a free,
// non-blacklisted one. It gives up after maxAttempts candidates.
func GenerateUsername(email string, maxAttempts int, taken func(string) (bool, error)) (string, error) {
	base := UsernameBase(email)
	for i := 0; i < maxAttempts; i++ {
		candidate := UsernameCandidate(base, i)
		if IsBlacklisted(candidate) {
			continue
		}
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrUsernameExhausted
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
