package apiclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/lexboard/lexboard/pkg/errors"
)

// IdentifierError reports a malformed numeric entity identifier found in an
// outbound request path. The request never reaches the network.
type IdentifierError struct {
	Value string
	Path  string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q in path %s", e.Value, e.Path)
}

func (e *IdentifierError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// IsIdentifierError reports whether err is an identifier validation failure.
func IsIdentifierError(err error) bool {
	var idErr *IdentifierError
	return errors.As(err, &idErr)
}

// idRule keys identifier validation on a resource path prefix. The segment
// immediately following the prefix must be a positive integer unless it is
// one of the exempt sub-route names. Rules are checked in order; the first
// matching prefix wins.
type idRule struct {
	prefix string
	exempt []string
}

// Staff ids are nested under the lawyer collection, so the staff rule must
// come before the plain lawyer rule. "staff" is also exempt on the lawyer
// rule so the nesting survives a reordering of the table. The exempt lists
// must cover every non-numeric sub-route under a prefix, including the
// portfolio and client listings the client grants a long timeout.
var idRules = []idRule{
	{prefix: "/lawyer/staff/"},
	{prefix: "/lawyer/", exempt: []string{"all", "recommend", "staff", "portfolio"}},
	{prefix: "/client/", exempt: []string{"all"}},
}

// SanitizePath validates and canonicalizes the numeric entity identifier in
// path, if path addresses one of the known id-bearing resources. Segments
// that are empty, "undefined", "null", non-numeric, or non-positive yield an
// IdentifierError. Parseable but non-canonical segments (leading zeros,
// surrounding whitespace) are rewritten to canonical decimal form.
//
// All three resource shapes reject malformed ids. The dashboard previously
// let malformed staff and client ids through to the backend unchanged; that
// asymmetry was a bug, not a contract.
func SanitizePath(path string) (string, error) {
	for _, rule := range idRules {
		at := strings.Index(path, rule.prefix)
		if at < 0 {
			continue
		}

		segStart := at + len(rule.prefix)
		seg, tail := splitSegment(path[segStart:])

		if isExemptSegment(seg, rule.exempt) {
			return path, nil
		}

		canonical, ok := canonicalID(seg)
		if !ok {
			return "", &IdentifierError{Value: seg, Path: path}
		}
		if canonical != seg {
			path = path[:segStart] + canonical + tail
		}
		return path, nil
	}
	return path, nil
}

// splitSegment cuts rest at the first slash, returning the leading segment
// and the remainder (slash included).
func splitSegment(rest string) (seg, tail string) {
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i:]
	}
	return rest, ""
}

func isExemptSegment(seg string, exempt []string) bool {
	for _, e := range exempt {
		if seg == e {
			return true
		}
	}
	return false
}

// canonicalID parses seg as a positive integer and returns its canonical
// decimal form. The literal strings "undefined" and "null" come from the
// dashboard serializing absent values into URLs and always mean a bug
// upstream of this layer.
func canonicalID(seg string) (string, bool) {
	trimmed := strings.TrimSpace(seg)
	if trimmed == "" || trimmed == "undefined" || trimmed == "null" {
		return "", false
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}
