package notifier

import "fmt"

// Text is the localized wording of a reminder.
type Text struct {
	Body    string
	Summary string
	Note    string
}

type templates struct {
	body    string // args: event name, display time
	summary string // args: event name
	note    string // args: display time
}

// DefaultLocale is the hard fallback when neither the recipient nor the
// operator configured one.
const DefaultLocale = "en_US"

var localeTemplates = map[string]templates{
	"en_US": {
		body:    "🔔 Reminder: Your event '%s' starts soon at %s.",
		summary: "Event: %s",
		note:    "Starts at %s",
	},
	"fr_FR": {
		body:    "🔔 Rappel : votre événement '%s' commence bientôt à %s.",
		summary: "Événement : %s",
		note:    "Commence à %s",
	},
	"de_DE": {
		body:    "🔔 Erinnerung: Dein Termin '%s' beginnt bald um %s.",
		summary: "Termin: %s",
		note:    "Beginnt um %s",
	},
}

// localize renders the reminder wording for a locale, falling back to
// DefaultLocale for locales without a translation.
func localize(locale, eventName, displayTime string) Text {
	tmpl, ok := localeTemplates[locale]
	if !ok {
		tmpl = localeTemplates[DefaultLocale]
	}
	return Text{
		Body:    fmt.Sprintf(tmpl.body, eventName, displayTime),
		Summary: fmt.Sprintf(tmpl.summary, eventName),
		Note:    fmt.Sprintf(tmpl.note, displayTime),
	}
}
