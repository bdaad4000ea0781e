package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// dimPartRe matches one measurement inside a dimension phrase: a decimal
// or mixed-fraction number, an optional unit, and an optional axis label
// (H, W, L, D, Dia, Diameter).
var dimPartRe = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?(?:\s+\d+/\d+)?|\d+/\d+)\s*("|”|in\b|inch(?:es)?\b|cm\b|mm\b)?\s*(diameter|dia\b|[hwld]\b)?\.?\s*$`)

var dimSplitRe = regexp.MustCompile(`(?i)\s*[x×]\s*`)

// ParseDimensions parses a supplier dimension phrase such as
// `5.5" H x 3" W`, `3 1/2" x 2"`, or `4" Diameter` into numeric fields.
// Raw always carries the original phrase; the numeric fields stay nil for
// the parts that do not parse. Returns nil for an empty phrase.
func ParseDimensions(raw string) *Dimensions {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d := &Dimensions{Raw: raw}

	var unlabeled []*float64
	for _, part := range dimSplitRe.Split(raw, -1) {
		m := dimPartRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		val, ok := parseDimNumber(m[1])
		if !ok {
			continue
		}
		if d.Unit == "" {
			d.Unit = dimUnit(m[2])
		}
		v := val
		switch strings.ToLower(m[3]) {
		case "l":
			d.Length = &v
		case "w":
			d.Width = &v
		case "h":
			d.Height = &v
		case "d", "dia", "diameter":
			d.Diameter = &v
		default:
			unlabeled = append(unlabeled, &v)
		}
	}

	// Unlabeled measurements fill the open axes in L, W, H order.
	slots := []**float64{&d.Length, &d.Width, &d.Height}
	for _, v := range unlabeled {
		for _, slot := range slots {
			if *slot == nil {
				*slot = v
				break
			}
		}
	}
	return d
}

// parseDimNumber handles decimals, bare fractions, and mixed fractions
// like `3 1/2`.
func parseDimNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	whole := s
	frac := ""
	if i := strings.IndexByte(s, '/'); i >= 0 {
		if j := strings.LastIndexByte(s[:i], ' '); j >= 0 {
			whole, frac = s[:j], s[j+1:]
		} else {
			whole, frac = "", s
		}
	}
	var val float64
	if whole != "" {
		w, err := strconv.ParseFloat(strings.TrimSpace(whole), 64)
		if err != nil {
			return 0, false
		}
		val = w
	}
	if frac != "" {
		num, den, ok := strings.Cut(frac, "/")
		if !ok {
			return 0, false
		}
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		val += n / d
	}
	return val, true
}

func dimUnit(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `"`, "”", "in", "inch", "inches":
		return "in"
	case "cm":
		return "cm"
	case "mm":
		return "mm"
	default:
		return ""
	}
}
