package types

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Precision records how many components a revision was written with, so
// that "6.7" and "6.7.0" round-trip to their original spelling.
type Precision int

const (
	PrecisionMajor Precision = iota + 1
	PrecisionMinor
	PrecisionMicro
	PrecisionPreview
)

// NotAPreview is the preview number of a final release.
const NotAPreview = 0

var revisionPattern = regexp.MustCompile(`^\s*([0-9]+)(?:\.([0-9]+)(?:\.([0-9]+))?)?([\s-]*)?(?:(rc|alpha|beta)([0-9]+))?\s*$`)

// Revision is a major.minor.micro version with an optional numbered
// pre-release qualifier. Ordering is delegated to PEP 440 so a preview
// always sorts below the matching final release.
type Revision struct {
	Major     int
	Minor     int
	Micro     int
	Preview   int
	Qualifier string
	precision Precision
	separator string
}

// NewRevision builds a revision from its numeric parts. Missing parts are
// implicit zeros and do not count towards the precision.
func NewRevision(major int, parts ...int) Revision {
	rev := Revision{Major: major, precision: PrecisionMajor}
	if len(parts) > 0 {
		rev.Minor = parts[0]
		rev.precision = PrecisionMinor
	}
	if len(parts) > 1 {
		rev.Micro = parts[1]
		rev.precision = PrecisionMicro
	}
	if len(parts) > 2 && parts[2] != NotAPreview {
		rev.Preview = parts[2]
		rev.Qualifier = "rc"
		rev.precision = PrecisionPreview
		rev.separator = " "
	}
	return rev
}

// ParseRevision parses strings such as "5", "22.3.4", "1.2.3 rc4" or
// "1.2.3-beta6".
func ParseRevision(value string) (Revision, error) {
	match := revisionPattern.FindStringSubmatch(value)
	if match == nil {
		return Revision{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid revision: %s", value))
	}
	rev := Revision{precision: PrecisionMajor}
	rev.Major, _ = strconv.Atoi(match[1])
	if match[2] != "" {
		rev.Minor, _ = strconv.Atoi(match[2])
		rev.precision = PrecisionMinor
	}
	if match[3] != "" {
		rev.Micro, _ = strconv.Atoi(match[3])
		rev.precision = PrecisionMicro
	}
	if match[5] != "" {
		rev.Qualifier = match[5]
		rev.Preview, _ = strconv.Atoi(match[6])
		if rev.Preview == NotAPreview {
			return Revision{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid revision: %s", value))
		}
		rev.precision = PrecisionPreview
		rev.separator = " "
		if strings.Contains(match[4], "-") {
			rev.separator = "-"
		}
	} else if strings.TrimSpace(match[4]) != "" {
		return Revision{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid revision: %s", value))
	}
	return rev, nil
}

// MustParseRevision is ParseRevision for literals known to be valid.
func MustParseRevision(value string) Revision {
	rev, err := ParseRevision(value)
	if err != nil {
		panic(err)
	}
	return rev
}

func (r Revision) IsPreview() bool {
	return r.Preview != NotAPreview
}

// IsZero reports whether the revision was never set.
func (r Revision) IsZero() bool {
	return r.precision == 0 && r.Major == 0 && r.Minor == 0 && r.Micro == 0 && r.Preview == 0
}

func (r Revision) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Major))
	if r.precision >= PrecisionMinor || r.IsPreview() {
		b.WriteString("." + strconv.Itoa(r.Minor))
	}
	if r.precision >= PrecisionMicro || r.IsPreview() {
		b.WriteString("." + strconv.Itoa(r.Micro))
	}
	if r.IsPreview() {
		b.WriteString(r.previewSuffix())
	}
	return b.String()
}

// ShortString drops trailing zero components.
func (r Revision) ShortString() string {
	out := strconv.Itoa(r.Major)
	if r.Minor != 0 || r.Micro != 0 {
		out += "." + strconv.Itoa(r.Minor)
		if r.Micro != 0 {
			out += "." + strconv.Itoa(r.Micro)
		}
	}
	if r.IsPreview() {
		out += r.previewSuffix()
	}
	return out
}

func (r Revision) previewSuffix() string {
	sep := r.separator
	if sep == "" {
		sep = " "
	}
	qualifier := r.Qualifier
	if qualifier == "" {
		qualifier = "rc"
	}
	return sep + qualifier + strconv.Itoa(r.Preview)
}

// Compare returns -1, 0 or 1. Precision is ignored: "6.7" equals "6.7.0".
func (r Revision) Compare(other Revision) int {
	a, errA := pep440.Parse(r.pep440String())
	b, errB := pep440.Parse(other.pep440String())
	if errA != nil || errB != nil {
		return compareNumeric(r, other)
	}
	return cmp.Compare(a.Compare(b), 0)
}

func (r Revision) Equal(other Revision) bool {
	return r.Compare(other) == 0
}

func (r Revision) pep440String() string {
	base := fmt.Sprintf("%d.%d.%d", r.Major, r.Minor, r.Micro)
	if !r.IsPreview() {
		return base
	}
	switch r.Qualifier {
	case "alpha":
		return fmt.Sprintf("%sa%d", base, r.Preview)
	case "beta":
		return fmt.Sprintf("%sb%d", base, r.Preview)
	default:
		return fmt.Sprintf("%src%d", base, r.Preview)
	}
}

func compareNumeric(a Revision, b Revision) int {
	for _, pair := range [][2]int{{a.Major, b.Major}, {a.Minor, b.Minor}, {a.Micro, b.Micro}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	switch {
	case a.IsPreview() && !b.IsPreview():
		return -1
	case !a.IsPreview() && b.IsPreview():
		return 1
	case a.Preview < b.Preview:
		return -1
	case a.Preview > b.Preview:
		return 1
	}
	return 0
}
