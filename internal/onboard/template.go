package onboard

import "strings"

// DefaultTemplate is used when no DM template is configured.
const DefaultTemplate = "Hi {first}, I tried to add you to {group} but Telegram privacy or permissions blocked it. " +
	"You can join directly using this link: {link}"

// Template renders the invite DM. Recognized placeholders: {first}, {group}, {link}.
// Unknown braces are left untouched.
type Template string

func (t Template) Render(first, group, link string) string {
	s := string(t)
	if strings.TrimSpace(s) == "" {
		s = DefaultTemplate
	}
	first = strings.TrimSpace(first)
	if first == "" {
		first = "there"
	}
	return strings.NewReplacer("{first}", first, "{group}", group, "{link}", link).Replace(s)
}
