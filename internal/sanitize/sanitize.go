// Package sanitize cleans untrusted text before it is stored.
package sanitize

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxChatLength is the longest chat message kept, in runes.
const MaxChatLength = 2000

var ErrInvalidEmail = errors.New("invalid email format")

var (
	strict  = bluemonday.StrictPolicy()
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// 实体编码的标签解码后会重新出现，最多重复几轮
const maxPasses = 3

// Input truncates s to MaxChatLength runes and strips every HTML tag and
// attribute, including tags hidden behind entities. The result is plain
// text, entities decoded.
func Input(s string) string {
	if r := []rune(s); len(r) > MaxChatLength {
		s = string(r[:MaxChatLength])
	}
	return strings.TrimSpace(plain(s))
}

// plain decodes entities before stripping and repeats until the text no
// longer changes, so the decoded result never carries markup.
func plain(s string) string {
	s = html.UnescapeString(s)
	for i := 0; i < maxPasses; i++ {
		out := html.UnescapeString(strict.Sanitize(s))
		if out == s {
			return out
		}
		s = out
	}
	// 仍未稳定时保留转义形式
	return strict.Sanitize(s)
}

// Email strips markup, validates the shape and lowercases the address.
func Email(s string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(plain(s)))
	if !emailRe.MatchString(cleaned) {
		return "", ErrInvalidEmail
	}
	return cleaned, nil
}
