// Package dates turns user-typed dates into the YYYY-MM-DD and YYYY-Www
// strings stored on records.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Day offsets for words the English rules do not cover or resolve to the
// reference time anyway.
var relativeDays = map[string]int{
	"today":     0,
	"oggi":      0,
	"yesterday": -1,
	"ieri":      -1,
	"tomorrow":  1,
	"domani":    1,
}

// Resolve returns the calendar date input refers to, relative to now. An
// empty input is today. Accepted: YYYY-MM-DD, DD/MM/YYYY and English
// phrases such as "last monday" or "2 days ago".
func Resolve(input string, now time.Time) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return now.Format(types.DateLayout), nil
	}
	if off, ok := relativeDays[s]; ok {
		return now.AddDate(0, 0, off).Format(types.DateLayout), nil
	}
	if t, err := time.ParseInLocation(types.DateLayout, s, now.Location()); err == nil {
		return t.Format(types.DateLayout), nil
	}
	if t, err := time.ParseInLocation("02/01/2006", s, now.Location()); err == nil {
		return t.Format(types.DateLayout), nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", input, err)
	}
	if r == nil {
		return "", fmt.Errorf("invalid date %q", input)
	}
	return r.Time.Format(types.DateLayout), nil
}

// Week returns the ISO week of t as YYYY-Www.
func Week(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ResolveWeek is Resolve for payment weeks. A YYYY-Www input is returned
// as is; anything else is resolved to a date and mapped to its week.
func ResolveWeek(input string, now time.Time) (string, error) {
	s := strings.TrimSpace(input)
	var year, week int
	if n, err := fmt.Sscanf(strings.ToUpper(s), "%d-W%d", &year, &week); err == nil && n == 2 && week >= 1 && week <= 53 {
		return fmt.Sprintf("%d-W%02d", year, week), nil
	}

	day, err := Resolve(s, now)
	if err != nil {
		return "", err
	}
	t, _ := time.ParseInLocation(types.DateLayout, day, now.Location())
	return Week(t), nil
}
