package features

import (
	"net"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/net/publicsuffix"

	"github.com/iamwavecut/strikeguard/internal/config"
	"github.com/iamwavecut/strikeguard/internal/utils/text"
)

const (
	TrickZeroWidth     = "zero_width"
	TrickBidiOverride  = "bidi_override"
	TrickCombiningMark = "combining_marks"
	TrickMixedScript   = "mixed_script"
)

var urlRegex = regexp.MustCompile(`(?:(?:https?://)|(?:www\.)|(?:[a-zA-Z0-9-]+\.[a-zA-Z]{2,}))(?:[^\s<>"'\)]+)?`)

type (
	// Metadata is what the transport knows about a message besides its text,
	// such as link targets hidden behind formatted text.
	Metadata struct {
		URLs []string
	}

	Link struct {
		Host string
		Path string
	}

	Features struct {
		Links              []Link
		LinkCount          int
		SuspiciousTLDCount int
		HasShortener       bool
		HasInviteLink      bool
		KeywordHits        []string
		HasUnicodeTrick    bool
		UnicodeTrick       string
		NonLatinRatio      float64
	}
)

// Extractor turns message text into Features for one rules snapshot.
// It is safe for concurrent use.
type Extractor struct {
	rules       *config.Rules
	tlds        map[string]struct{}
	shorteners  []string
	inviteHosts map[string]struct{}
	invitePaths []string
	keywords    []string

	matcherMu sync.Mutex
	matcher   *ahocorasick.Matcher
}

func NewExtractor(rules *config.Rules) *Extractor {
	e := &Extractor{
		rules:       rules,
		tlds:        make(map[string]struct{}, len(rules.SuspiciousTLDs)),
		inviteHosts: make(map[string]struct{}, len(rules.InviteHosts)),
		invitePaths: rules.InvitePaths,
	}
	for _, tld := range rules.SuspiciousTLDs {
		e.tlds[strings.TrimPrefix(strings.ToLower(tld), ".")] = struct{}{}
	}
	for _, host := range rules.Shorteners {
		e.shorteners = append(e.shorteners, strings.ToLower(host))
	}
	for _, host := range rules.InviteHosts {
		e.inviteHosts[strings.ToLower(host)] = struct{}{}
	}
	for _, kw := range rules.SpamKeywords {
		if folded := foldForMatching(kw); folded != "" {
			e.keywords = append(e.keywords, folded)
		}
	}
	if len(e.keywords) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(e.keywords)
	}
	return e
}

// Extract never fails: empty or whitespace-only text without link targets
// yields the zero Features.
func (e *Extractor) Extract(content string, meta Metadata) Features {
	if strings.TrimSpace(content) == "" && len(meta.URLs) == 0 {
		return Features{}
	}

	f := Features{}
	cleaned := Clean(content)

	f.Links = ExtractLinks(cleaned)
	seen := make(map[Link]struct{}, len(f.Links))
	for _, l := range f.Links {
		seen[l] = struct{}{}
	}
	for _, raw := range meta.URLs {
		l, ok := ParseLink(Clean(raw))
		if !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		f.Links = append(f.Links, l)
	}
	f.LinkCount = len(f.Links)

	for _, l := range f.Links {
		if e.isSuspiciousTLD(l.Host) {
			f.SuspiciousTLDCount++
		}
		if e.isShortener(l.Host) {
			f.HasShortener = true
		}
		if e.isInvite(l) {
			f.HasInviteLink = true
		}
	}

	f.KeywordHits = e.matchKeywords(foldForMatching(content))
	f.UnicodeTrick = e.detectUnicodeTrick(content)
	f.HasUnicodeTrick = f.UnicodeTrick != ""
	f.NonLatinRatio = text.NonLatinRatio(cleaned)
	return f
}

// ExtractLinks finds every URL-looking token, duplicates included.
func ExtractLinks(s string) []Link {
	var links []Link
	for _, m := range urlRegex.FindAllString(s, -1) {
		if l, ok := ParseLink(m); ok {
			links = append(links, l)
		}
	}
	return links
}

// ParseLink splits a raw URL into a lowercased host without "www." and its path.
func ParseLink(raw string) (Link, bool) {
	s := strings.TrimRight(strings.TrimSpace(raw), ".,;:!?")
	lower := strings.ToLower(s)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			break
		}
	}
	end := strings.IndexAny(s, "/?#")
	host, rest := s, ""
	if end >= 0 {
		host, rest = s[:end], s[end:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.Trim(host, ".")
	if host == "" || !strings.Contains(host, ".") {
		return Link{}, false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return Link{Host: host, Path: rest}, true
}

func (e *Extractor) isSuspiciousTLD(host string) bool {
	if net.ParseIP(host) != nil {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	if _, ok := e.tlds[suffix]; ok {
		return true
	}
	top := suffix
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		top = suffix[i+1:]
	}
	_, ok := e.tlds[top]
	return ok
}

func (e *Extractor) isShortener(host string) bool {
	for _, s := range e.shorteners {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func (e *Extractor) isInvite(l Link) bool {
	if _, ok := e.inviteHosts[l.Host]; !ok {
		return false
	}
	path := strings.ToLower(l.Path)
	for _, p := range e.invitePaths {
		if strings.HasPrefix(path, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (e *Extractor) matchKeywords(folded string) []string {
	if e.matcher == nil || folded == "" {
		return nil
	}
	e.matcherMu.Lock()
	idx := e.matcher.Match([]byte(folded))
	e.matcherMu.Unlock()

	hits := make([]string, 0, len(idx))
	for _, i := range idx {
		if kw := e.keywords[i]; containsWord(folded, kw) {
			hits = append(hits, kw)
		}
	}
	slices.Sort(hits)
	return hits
}

// containsWord reports an occurrence of kw that does not continue a word on
// either side. Edges of kw that are not word characters match anywhere.
func containsWord(s, kw string) bool {
	first, _ := utf8.DecodeRuneInString(kw)
	last, _ := utf8.DecodeLastRuneInString(kw)
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(kw)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !(isWordRune(first) && isWordRune(before)) && !(isWordRune(last) && isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

func (e *Extractor) detectUnicodeTrick(raw string) string {
	var total, marks int
	for _, r := range Compose(raw) {
		switch {
		case isInvisible(r):
			return TrickZeroWidth
		case isBidiOverride(r):
			return TrickBidiOverride
		}
		total++
		if unicode.Is(unicode.Mn, r) {
			marks++
		}
	}
	if total > 0 && float64(marks)/float64(total) > e.rules.CombiningMarkRatio {
		return TrickCombiningMark
	}
	for _, word := range strings.FieldsFunc(Clean(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r)
	}) {
		if text.MixesLatinAndCyrillic(word) {
			return TrickMixedScript
		}
	}
	return ""
}

// CanonicalizeLinks rewrites every URL in s as host+path, dropping scheme,
// "www.", query, fragment and trailing slashes.
func CanonicalizeLinks(s string) string {
	return urlRegex.ReplaceAllStringFunc(s, func(m string) string {
		l, ok := ParseLink(m)
		if !ok {
			return m
		}
		return l.Host + strings.TrimRight(l.Path, "/")
	})
}
