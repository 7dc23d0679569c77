package i18n

import "strings"

type Lang string

const (
	EN Lang = "en"
	DE Lang = "de"
)

func Parse(s string) Lang {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "de":
		return DE
	case "en":
		return EN
	default:
		return EN
	}
}
