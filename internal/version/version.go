// Package version implements the permissive version-ordering algebra used to
// pick "latest" across a catalog. It never rejects an input: every pair of
// strings compares deterministically, even when one or both sides are not
// valid semantic versions.
package version

import (
	"strconv"
	"strings"
)

// Version is an immutable version label together with the total order
// defined by Compare. The Rust original kept separate owned/borrowed forms;
// Go's garbage collector removes the motivation for that split, so Version
// is a single value type wrapping the original string.
type Version struct {
	raw string
}

// New wraps a raw version string. Construction never fails: the ordering is
// total and defined for any input.
func New(raw string) Version { return Version{raw: raw} }

// String returns the original, unmodified input string.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0 or 1 according to whether a is less than, equal to,
// or greater than b, per the grammar and rules in §4.A.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	ta := tokenize(a)
	tb := tokenize(b)
	return compareTokenStreams(ta, tb)
}

// Less reports whether a orders strictly before b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// tokenKind distinguishes the four token shapes the scanner produces.
type tokenKind int

const (
	kindNum tokenKind = iota
	kindPrerel
	kindBuild
	kindMess
)

type token struct {
	kind tokenKind
	n    uint64 // valid when kind == kindNum
	raw  string // raw textual form, used for tie-breaks and for Prerel/Build/Mess bodies
}

// tokenize scans a version string left to right into the token stream
// described in §4.A: an optional leading v/V is stripped, then a
// dot-separated numeric head, an optional "-"-led prerelease, an optional
// "+"-led build, and any ungoverned remainder classified as mess.
func tokenize(s string) []token {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")

	var toks []token

	// Numeric head: dot-separated unsigned integers. A digit run is taken as
	// a Num token even when immediately followed by a non-digit (so "1a"
	// yields Num(1) then mess "a", not a rejected field) — only a dot
	// followed by another digit continues the head; anything else ends it.
	rest := s
	for {
		field, tail, ok := leadingDigitsField(rest)
		if !ok {
			break
		}
		n, _ := strconv.ParseUint(field, 10, 64)
		toks = append(toks, token{kind: kindNum, n: n, raw: field})
		rest = tail
		if strings.HasPrefix(rest, ".") && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9' {
			rest = rest[1:]
			continue
		}
		break
	}

	if rest == "" {
		return toks
	}

	if strings.HasPrefix(rest, "-") {
		body, tail := splitAt(rest[1:], '+')
		if isMess(body) {
			toks = append(toks, token{kind: kindMess, raw: body})
		} else {
			toks = append(toks, token{kind: kindPrerel, raw: body})
		}
		rest = tail
	}

	if strings.HasPrefix(rest, "+") {
		body := rest[1:]
		if isMess(body) {
			toks = append(toks, token{kind: kindMess, raw: body})
		} else {
			toks = append(toks, token{kind: kindBuild, raw: body})
		}
		rest = ""
	}

	if rest != "" {
		toks = append(toks, token{kind: kindMess, raw: rest})
	}

	return toks
}

// leadingDigitsField returns the leading run of ASCII digits in s and
// whatever follows, or ok=false if s does not start with a digit.
func leadingDigitsField(s string) (field, rest string, ok bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlphaNum(b byte) bool {
	return isAlpha(b) || (b >= '0' && b <= '9')
}

func splitAt(s string, sep byte) (head, tail string) {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// isMess reports whether a prerelease/build body is too irregular to be
// treated as a normal dot-separated identifier list: it must start and end
// alphanumeric and never contain two consecutive non-alphanumeric
// characters, and every character must be alphanumeric or one of `.-+`.
func isMess(s string) bool {
	if s == "" {
		return false
	}
	if !isAlphaNum(s[0]) || !isAlphaNum(s[len(s)-1]) {
		return true
	}
	prevSep := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlphaNum(c) {
			prevSep = false
			continue
		}
		if c != '.' && c != '-' && c != '+' {
			return true
		}
		if prevSep {
			return true
		}
		prevSep = true
	}
	return false
}

// compareTokenStreams implements rules 1-5 of §4.A: numeric prefix compared
// field by field, then mess/prerel/build precedence, each resolved in full
// before falling through to the next.
func compareTokenStreams(a, b []token) int {
	ai, bi := splitKind(a, kindNum), splitKind(b, kindNum)
	if c := compareNums(ai, bi); c != 0 {
		return c
	}

	aRest, bRest := a[len(ai):], b[len(bi):]

	aMess, aRest2 := firstOfKind(aRest, kindMess)
	bMess, bRest2 := firstOfKind(bRest, kindMess)
	if (aMess != nil) != (bMess != nil) {
		if aMess != nil {
			return -1
		}
		return 1
	}
	if aMess != nil {
		if c := messCmp(aMess.raw, bMess.raw); c != 0 {
			return c
		}
	}

	aPre, _ := firstOfKind(aRest2, kindPrerel)
	bPre, _ := firstOfKind(bRest2, kindPrerel)
	if (aPre != nil) != (bPre != nil) {
		if aPre != nil {
			return -1
		}
		return 1
	}
	if aPre != nil {
		if c := partCmp(aPre.raw, bPre.raw); c != 0 {
			return c
		}
	}

	aBuild, _ := firstOfKind(aRest2, kindBuild)
	bBuild, _ := firstOfKind(bRest2, kindBuild)
	if (aBuild != nil) != (bBuild != nil) {
		if aBuild != nil {
			return 1
		}
		return -1
	}
	if aBuild != nil {
		return partCmp(aBuild.raw, bBuild.raw)
	}

	return 0
}

func splitKind(toks []token, k tokenKind) []token {
	i := 0
	for i < len(toks) && toks[i].kind == k {
		i++
	}
	return toks[:i]
}

func firstOfKind(toks []token, k tokenKind) (*token, []token) {
	for i, t := range toks {
		if t.kind == k {
			cp := t
			return &cp, append(toks[:i:i], toks[i+1:]...)
		}
	}
	return nil, toks
}

// compareNums compares two numeric-field prefixes: field by field by
// integer value (raw-string tie-break for leading zeros), then a shorter
// head is less than a longer one once all shared fields are equal.
func compareNums(a, b []token) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].n != b[i].n {
			if a[i].n < b[i].n {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a[i].raw, b[i].raw); c != 0 {
			// Equal numeric value, different raw text: fewer leading
			// zeros sorts greater ("1.02" < "1.2").
			return rawNumTieBreak(a[i].raw, b[i].raw)
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return 0
}

func rawNumTieBreak(a, b string) int {
	if len(a) == len(b) {
		return strings.Compare(a, b)
	}
	if len(a) < len(b) {
		return 1
	}
	return -1
}

// partCmp compares prerelease/build bodies: split first on "-" then "." (so
// a body such as "alpha-1.2" yields subparts ["alpha", "1", "2"]), numeric
// subparts compare numerically, numeric sorts below non-numeric, and fewer
// subparts sorts below more once the common prefix is equal.
func partCmp(a, b string) int {
	pa := splitSubparts(a)
	pb := splitSubparts(b)
	return compareSubparts(pa, pb)
}

// mess_cmp splits on any run of non-alphanumeric separators instead of
// specifically "-" and ".".
func messCmp(a, b string) int {
	pa := splitMessSubparts(a)
	pb := splitMessSubparts(b)
	return compareSubparts(pa, pb)
}

func splitSubparts(s string) []string {
	var out []string
	for _, dashPart := range strings.Split(s, "-") {
		out = append(out, strings.Split(dashPart, ".")...)
	}
	return out
}

func splitMessSubparts(s string) []string {
	var out []string
	cur := strings.Builder{}
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		if isAlphaNum(s[i]) {
			cur.WriteByte(s[i])
		} else {
			flush()
		}
	}
	flush()
	return out
}

func compareSubparts(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareSubpart(a[i], b[i]); c != 0 {
			return c
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return 0
}

func compareSubpart(a, b string) int {
	na, aok := parseSubpartNum(a)
	nb, bok := parseSubpartNum(b)
	if aok && bok {
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
		return rawNumTieBreak(a, b)
	}
	if aok != bok {
		if aok {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func parseSubpartNum(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
