package calendar

import "github.com/emersion/go-ical"

// Exchange and Outlook feeds use Windows zone names that time.LoadLocation rejects.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"Atlantic Standard Time":       "America/Halifax",
	"Alaskan Standard Time":        "America/Anchorage",
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"GMT Standard Time":            "Europe/London",
	"W. Europe Standard Time":      "Europe/Berlin",
	"Central Europe Standard Time": "Europe/Budapest",
	"Romance Standard Time":        "Europe/Paris",
	"Russian Standard Time":        "Europe/Moscow",
	"China Standard Time":          "Asia/Shanghai",
	"Tokyo Standard Time":          "Asia/Tokyo",
	"India Standard Time":          "Asia/Kolkata",
	"AUS Eastern Standard Time":    "Australia/Sydney",
}

// normalizeTimezones rewrites Windows TZIDs on time properties in place.
func normalizeTimezones(comp *ical.Component) {
	for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropRecurrenceID, ical.PropExceptionDates} {
		props := comp.Props[name]
		for i := range props {
			if iana, ok := windowsToIANA[props[i].Params.Get(ical.ParamTimezoneID)]; ok {
				props[i].Params.Set(ical.ParamTimezoneID, iana)
			}
		}
	}
}
