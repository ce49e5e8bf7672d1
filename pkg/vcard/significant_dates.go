package vcard

import (
	"regexp"
	"strconv"
	"time"

	govcard "github.com/emersion/go-vcard"
)

// 1972 is a leap year, used as the placeholder year for a BDAY/ANNIVERSARY
// value that carries no year of its own (RFC 6350 §6.2.5 allows this).
const placeholderLeapYear = 1972

var reVCardMonthDay = regexp.MustCompile(`^--(\d{2})(\d{2})$`)

// SignificantDate is a BDAY or ANNIVERSARY value. HasYear is false when the
// vCard value omitted the year (e.g. "--0412"); in that case Date carries
// placeholderLeapYear so month/day arithmetic (yearly recurrence synthesis)
// still works.
type SignificantDate struct {
	Date    time.Time
	HasYear bool
}

// ParseSignificantDate parses a BDAY/ANNIVERSARY field value in any of the
// forms RFC 6350 and common vCard 3.0 producers emit: full date
// (YYYYMMDD or YYYY-MM-DD), or a year-less month/day (--MMDD).
func ParseSignificantDate(value string) (SignificantDate, bool) {
	if m := reVCardMonthDay.FindStringSubmatch(value); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return SignificantDate{}, false
		}
		return SignificantDate{
			Date:    time.Date(placeholderLeapYear, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			HasYear: false,
		}, true
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return SignificantDate{Date: t, HasYear: true}, true
		}
	}
	return SignificantDate{}, false
}

// BirthdayOf and AnniversaryOf read a card's BDAY/ANNIVERSARY property, if
// present and parseable, for birthday-calendar synthesis.
func BirthdayOf(c govcard.Card) (SignificantDate, bool) {
	if v := c.Value(govcard.FieldBirthday); v != "" {
		return ParseSignificantDate(v)
	}
	return SignificantDate{}, false
}

func AnniversaryOf(c govcard.Card) (SignificantDate, bool) {
	if v := c.Value(govcard.FieldAnniversary); v != "" {
		return ParseSignificantDate(v)
	}
	return SignificantDate{}, false
}
