// Package normalize holds the pure text and salary helpers shared by the
// scrapers and the dedup layer.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/amishk599/rolecall/internal/model"
)

// fingerprintPrefix is how much of the description contributes to a content hash.
const fingerprintPrefix = 200

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	numberRe     = regexp.MustCompile(`\d+\.?\d*`)
)

// NormalizeText lowercases s, collapses whitespace runs into a single space and trims.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// ContentHash fingerprints a listing so the same job posted on several boards
// collapses to one row. Only the first 200 runes of description take part.
func ContentHash(title, company, description string) string {
	desc := []rune(description)
	if len(desc) > fingerprintPrefix {
		desc = desc[:fingerprintPrefix]
	}
	sum := sha256.Sum256([]byte(NormalizeText(title + "|" + company + "|" + string(desc))))
	return hex.EncodeToString(sum[:])
}

// Salary is the structured form of a board's free-text salary.
type Salary struct {
	Min     *float64
	Max     *float64
	Type    model.SalaryType
	Display string
}

// ParseSalary extracts a range and cadence from text such as
// "$55,000 - $65,000" or "$30 - $35 per hour". Unparseable input keeps only
// the display string with an unknown type.
func ParseSalary(raw string) Salary {
	out := Salary{Type: model.SalaryUnknown, Display: strings.TrimSpace(raw)}
	if out.Display == "" {
		return out
	}

	cleaned := strings.ToLower(strings.NewReplacer(",", "", "$", "").Replace(raw))

	switch {
	case containsAny(cleaned, "per hour", "p/h", "/hr"):
		out.Type = model.SalaryHourly
	case containsAny(cleaned, "per day", "p/d", "/day"):
		out.Type = model.SalaryDaily
	case containsAny(cleaned, "per annum", "p.a.", "pa "):
		out.Type = model.SalaryAnnual
	}

	var nums []float64
	for _, m := range numberRe.FindAllString(cleaned, -1) {
		n, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return out
	}

	if out.Type == model.SalaryUnknown {
		switch {
		case nums[0] < 200:
			out.Type = model.SalaryHourly
		case nums[0] >= 20000:
			out.Type = model.SalaryAnnual
		}
	}

	out.Min = &nums[0]
	if len(nums) > 1 {
		out.Max = &nums[1]
	}
	return out
}

// Apply copies the parsed salary onto a listing. Unknown types are left blank.
func (s Salary) Apply(l *model.RawListing) {
	l.SalaryDisplay = s.Display
	l.SalaryMin = s.Min
	l.SalaryMax = s.Max
	if s.Type != model.SalaryUnknown {
		l.SalaryType = s.Type
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
