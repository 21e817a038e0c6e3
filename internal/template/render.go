// Package template renders outbound message templates.
//
// Templates support a {name} placeholder substituted with the contact's
// display name. Any {nik} placeholder, including a labeled "NIK: {nik}"
// form, is stripped entirely and never substituted: the national ID must
// not appear in outbound messages.
package template

import (
	"regexp"
	"strings"
)

var (
	nikLabelPattern = regexp.MustCompile(`(?i)NIK:? ?\{nik\}`)
	nikPattern      = regexp.MustCompile(`\{nik\}`)
)

// Render substitutes {name} with the given display name and removes all
// {nik} placeholders.
func Render(tpl, name string) string {
	msg := strings.ReplaceAll(tpl, "{name}", name)
	msg = nikLabelPattern.ReplaceAllString(msg, "")
	msg = nikPattern.ReplaceAllString(msg, "")
	return msg
}
