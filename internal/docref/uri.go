package docref

import (
	"net/url"
	"strings"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// Scheme is the URI scheme used for document references:
// kestrel://collection/relPath.
const Scheme = "kestrel"

// BuildURI constructs a document URI from a normalized collection name
// and a relative path, percent-encoding unsafe characters segment by
// segment per spec §6.
func BuildURI(collection, relPath string) (string, error) {
	if collection == "" {
		return "", kerrors.New(kerrors.KindInvalidInput, "collection name is empty")
	}
	normPath, err := NormalizePath(relPath)
	if err != nil {
		return "", err
	}

	segments := strings.Split(normPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(url.PathEscape(collection))
	b.WriteString("/")
	b.WriteString(strings.Join(segments, "/"))
	return b.String(), nil
}

// ParseURI decodes a document URI into its collection name and
// relative path, rejecting anything that fails the path guard.
func ParseURI(uri string) (collection, relPath string, err error) {
	prefix := Scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", kerrors.New(kerrors.KindInvalidInput, "uri %q does not use the %s scheme", uri, Scheme)
	}
	rawHost, rawPath, _ := strings.Cut(strings.TrimPrefix(uri, prefix), "/")
	if rawHost == "" {
		return "", "", kerrors.New(kerrors.KindInvalidInput, "uri %q is missing a collection", uri)
	}

	collection, cerr := url.PathUnescape(rawHost)
	if cerr != nil {
		return "", "", kerrors.Wrap(kerrors.KindInvalidInput, cerr, "uri %q has a malformed collection segment", uri)
	}

	if rawPath == "" {
		return "", "", kerrors.New(kerrors.KindInvalidPath, "uri %q is missing a relative path", uri)
	}

	decoded, derr := url.PathUnescape(rawPath)
	if derr != nil {
		return "", "", kerrors.Wrap(kerrors.KindInvalidPath, derr, "uri %q has a malformed path segment", uri)
	}

	normPath, verr := NormalizePath(decoded)
	if verr != nil {
		return "", "", verr
	}

	return collection, normPath, nil
}
