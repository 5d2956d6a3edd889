package dedupe

import (
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/joshband/copy-that-sub005/internal/domain"
)

// Distance computes the category-specific perceptual distance between two
// candidate values. Incomparable values (bad parses, unit mismatches) are
// infinitely far apart so they never merge silently.
//
// Scales by category:
//   - color: CIEDE2000 delta-E (≈2 is just noticeable)
//   - dimension/number/duration: relative scalar delta in [0,1]
//   - fontFamily/fontWeight: normalized edit distance in [0,1]
//   - shadow/typography: mean of aligned component distances
func Distance(category domain.TokenType, a, b string) float64 {
	switch category {
	case domain.TypeColor:
		return colorDistance(a, b)
	case domain.TypeDimension, domain.TypeNumber, domain.TypeDuration:
		return scalarDistance(a, b)
	case domain.TypeFontFamily, domain.TypeFontWeight:
		return nameDistance(a, b)
	case domain.TypeShadow, domain.TypeTypography:
		return compositeDistance(a, b)
	}
	return math.Inf(1)
}

func colorDistance(a, b string) float64 {
	ca, okA := parseColor(a)
	cb, okB := parseColor(b)
	if !okA || !okB {
		return math.Inf(1)
	}
	return ca.DistanceCIEDE2000(cb)
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa (alpha ignored for the
// perceptual comparison).
func parseColor(s string) (colorful.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "#") && len(s) == 9 {
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}

// scalarDistance compares "16px"-style values: same unit required, then the
// relative delta against the larger magnitude.
func scalarDistance(a, b string) float64 {
	va, ua, okA := parseScalar(a)
	vb, ub, okB := parseScalar(b)
	if !okA || !okB || ua != ub {
		return math.Inf(1)
	}
	if va == vb {
		return 0
	}
	denom := math.Max(math.Abs(va), math.Abs(vb))
	if denom == 0 {
		return 0
	}
	return math.Abs(va-vb) / denom
}

func parseScalar(s string) (val float64, unit string, ok bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	i := len(s)
	for i > 0 {
		r := s[i-1]
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			break
		}
		i--
	}
	num, suffix := s[:i], strings.TrimSpace(s[i:])
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", false
	}
	return v, suffix, true
}

func nameDistance(a, b string) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == nb {
		return 0
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(na, nb)) / float64(longest)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `"'`)
	return strings.Join(strings.Fields(s), " ")
}

// compositeDistance aligns whitespace-separated components and averages
// their individual distances; colors in the composite weigh on the delta-E
// scale normalized to [0,1] by the merge-relevant range.
func compositeDistance(a, b string) float64 {
	fa := strings.Fields(strings.TrimSpace(a))
	fb := strings.Fields(strings.TrimSpace(b))
	if len(fa) == 0 || len(fb) == 0 || len(fa) != len(fb) {
		return math.Inf(1)
	}
	var sum float64
	for i := range fa {
		sum += componentDistance(fa[i], fb[i])
	}
	return sum / float64(len(fa))
}

func componentDistance(a, b string) float64 {
	if strings.HasPrefix(a, "#") || strings.HasPrefix(b, "#") {
		d := colorDistance(a, b)
		if math.IsInf(d, 1) {
			return d
		}
		return math.Min(d/100, 1)
	}
	if _, _, ok := parseScalar(a); ok {
		return scalarDistance(a, b)
	}
	return nameDistance(a, b)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
