package sage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PresRef identifies a presentation extracted from a share URL: either a
// numeric id usable with the Connect API, or an alphanumeric code from the
// newer share-link formats.
type PresRef struct {
	ID   int64
	Code string
}

// Numeric reports whether the reference carries an API-usable numeric id.
func (r PresRef) Numeric() bool { return r.ID != 0 }

var (
	sageconnectRe = regexp.MustCompile(`sageconnect\.sage\.com/Presentation/([A-Za-z0-9]+)`)
	vpCodeRe      = regexp.MustCompile(`viewpresentation\.com/p/([A-Za-z0-9\-]+)`)
	vpNumericRe   = regexp.MustCompile(`viewpresentation\.com/(\d+)`)
)

// ExtractPresRef parses a presentation reference out of a share URL.
// Supported formats:
//   - sageconnect.sage.com/Presentation/<code>
//   - viewpresentation.com/p/<code>
//   - viewpresentation.com/<digits>, where numbers longer than 7 digits
//     carry a 4-digit routing prefix ahead of the real presId.
func ExtractPresRef(url string) (PresRef, error) {
	if m := sageconnectRe.FindStringSubmatch(url); m != nil {
		return PresRef{Code: m[1]}, nil
	}
	if m := vpCodeRe.FindStringSubmatch(url); m != nil {
		return PresRef{Code: m[1]}, nil
	}
	m := vpNumericRe.FindStringSubmatch(url)
	if m == nil {
		return PresRef{}, eris.Errorf("sage: unrecognized presentation URL %q", url)
	}

	num := m[1]
	if len(num) > 7 {
		num = num[4:]
	}
	id, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return PresRef{}, eris.Wrapf(err, "sage: parse presId from %q", url)
	}
	return PresRef{ID: id}, nil
}

// dimensionRes match the dimension notations suppliers embed in free-text
// descriptions, in decreasing order of specificity.
var dimensionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+[\d\s/\.]*"\s*[HWLD]?\s*[x×]\s*[\d\s/\.]+"\s*[HWLD]?(?:\s*[x×]\s*[\d\s/\.]+"\s*[HWLD]?)?)`),
	regexp.MustCompile(`(?i)([\d.]+"\s*[HWLD]\s*[x×]\s*[\d.]+"\s*(?:Diameter|[HWLD]))`),
	regexp.MustCompile(`(?i)([\d.]+"\s*Diameter)`),
}

// ExtractDimensions pulls a dimension phrase out of free text, or returns
// the empty string when none is found.
func ExtractDimensions(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range dimensionRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
