package docref

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// isSegmentStart reports whether r may begin a tag segment: a Unicode
// lowercase letter, a letter without case (e.g. ideographs), or a digit.
func isSegmentStart(r rune) bool {
	return unicode.IsDigit(r) || isLowerOrCaseless(r)
}

// isSegmentRune reports whether r may appear after the first rune of a
// tag segment.
func isSegmentRune(r rune) bool {
	return isSegmentStart(r) || r == '-' || r == '.'
}

func isLowerOrCaseless(r rune) bool {
	if !unicode.IsLetter(r) {
		return false
	}
	if unicode.IsUpper(r) {
		return false
	}
	// A letter is "without case" when it has neither an upper nor a
	// title-case mapping distinct from itself and is not classified
	// lowercase either (e.g. CJK ideographs).
	return unicode.IsLower(r) || (!unicode.IsUpper(r) && !unicode.IsTitle(r) && unicode.ToUpper(r) == r)
}

// ValidateTag checks a tag string against the hierarchical grammar of
// spec §6: "/"-separated segments, each starting with a lowercase or
// caseless letter or digit, followed by lowercase/caseless letters,
// digits, "-", or ".", with no leading, trailing, or empty segments.
func ValidateTag(tag string) error {
	if tag == "" {
		return kerrors.New(kerrors.KindInvalidInput, "tag is empty")
	}
	if strings.HasPrefix(tag, "/") || strings.HasSuffix(tag, "/") {
		return kerrors.New(kerrors.KindInvalidInput, "tag %q has a leading or trailing slash", tag)
	}

	segments := strings.Split(tag, "/")
	for _, seg := range segments {
		if seg == "" {
			return kerrors.New(kerrors.KindInvalidInput, "tag %q has an empty segment", tag)
		}
		runes := []rune(seg)
		if !isSegmentStart(runes[0]) {
			return kerrors.New(kerrors.KindInvalidInput, "tag %q segment %q has an invalid leading character", tag, seg)
		}
		for _, r := range runes[1:] {
			if !isSegmentRune(r) {
				return kerrors.New(kerrors.KindInvalidInput, "tag %q segment %q contains an invalid character %q", tag, seg, r)
			}
		}
	}
	return nil
}

// NormalizeTag returns the canonical matching form of a tag: NFC
// normalized, trimmed, and lowercased, per spec §6 ("matching compares
// NFC-lowercased trimmed forms").
func NormalizeTag(tag string) string {
	return NormalizeName(tag)
}

// NormalizeName returns the NFC-normalized, trimmed, lowercased form of
// s. This is the one matching-name normalization the engine uses
// everywhere two names must compare equal regardless of source
// formatting: tags (spec §6), wiki link targets, collection prefixes,
// and document basenames (spec §4.6).
func NormalizeName(s string) string {
	trimmed := strings.TrimSpace(s)
	nfc := norm.NFC.String(trimmed)
	return strings.ToLower(nfc)
}
