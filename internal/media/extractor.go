package media

import (
	"net/url"
	"regexp"
	"strings"
)

const uploadMarker = "upload"

var (
	versionSegment = regexp.MustCompile(`^v\d+$`)
	// c_fill,w_400 or f_auto: a delivery transformation, not a folder.
	transformationSegment = regexp.MustCompile(`^[a-z]{1,3}_[^/]*$`)
)

// ExtractPublicID turns a stored asset URL into the object store public id.
//
//	https://res.cloudinary.com/demo/image/upload/v1712/products/coat.jpg -> products/coat
//
// The version segment and the file extension are optional. Refs that do not
// follow this shape, including ones carrying transformation segments after
// the marker, yield ok == false; callers skip them instead of failing.
func ExtractPublicID(ref string) (publicID string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	marker := -1
	for i, s := range segments {
		if s == uploadMarker {
			marker = i
			break
		}
	}
	if marker < 0 {
		return "", false
	}

	rest := segments[marker+1:]
	if len(rest) > 0 && isTransformation(rest[0]) {
		return "", false
	}
	if len(rest) > 0 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", false
	}
	for _, s := range rest {
		if s == "" {
			return "", false
		}
	}

	last := rest[len(rest)-1]
	if dot := strings.LastIndex(last, "."); dot > 0 {
		rest[len(rest)-1] = last[:dot]
	} else if dot == 0 {
		return "", false
	}

	return strings.Join(rest, "/"), true
}

func isTransformation(segment string) bool {
	return strings.Contains(segment, ",") || transformationSegment.MatchString(segment)
}
