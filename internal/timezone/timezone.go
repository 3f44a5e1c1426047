// Package timezone maps owner country codes to IANA zone names.
package timezone

import "strings"

const Default = "Europe/London"

var byCountry = map[string]string{
	"GB": "Europe/London",
	"UK": "Europe/London",
	"IE": "Europe/Dublin",

	"FR": "Europe/Paris",
	"DE": "Europe/Berlin",
	"IT": "Europe/Rome",
	"ES": "Europe/Madrid",
	"PT": "Europe/Lisbon",
	"BE": "Europe/Brussels",
	"NL": "Europe/Amsterdam",
	"LU": "Europe/Luxembourg",
	"CH": "Europe/Zurich",
	"AT": "Europe/Vienna",

	"SE": "Europe/Stockholm",
	"NO": "Europe/Oslo",
	"DK": "Europe/Copenhagen",
	"FI": "Europe/Helsinki",
	"IS": "Atlantic/Reykjavik",

	"PL": "Europe/Warsaw",
	"CZ": "Europe/Prague",
	"SK": "Europe/Bratislava",
	"HU": "Europe/Budapest",
	"RO": "Europe/Bucharest",
	"BG": "Europe/Sofia",
	"HR": "Europe/Zagreb",
	"SI": "Europe/Ljubljana",
	"EE": "Europe/Tallinn",
	"LV": "Europe/Riga",
	"LT": "Europe/Vilnius",

	"GR": "Europe/Athens",
	"CY": "Asia/Nicosia",
	"MT": "Europe/Malta",

	"RS": "Europe/Belgrade",
	"ME": "Europe/Podgorica",
	"BA": "Europe/Sarajevo",
	"MK": "Europe/Skopje",
	"AL": "Europe/Tirane",

	"UA": "Europe/Kyiv",
	"BY": "Europe/Minsk",
	"MD": "Europe/Chisinau",
	"TR": "Europe/Istanbul",
}

// ForCountry returns the zone for an ISO country code, or Default.
func ForCountry(code string) string {
	if tz, ok := byCountry[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return tz
	}
	return Default
}
