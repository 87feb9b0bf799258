package pipeline

import (
	"sort"

	"golang.org/x/text/language"
)

// MessageKey names a localized user-facing message.
type MessageKey string

const (
	MsgGeneralError    MessageKey = "errors.general"
	MsgSavingLeadError MessageKey = "errors.savingLead"
	MsgMediaError      MessageKey = "errors.mediaProcessing"
	MsgLeadSaved       MessageKey = "success.leadSaved"
	MsgNonText         MessageKey = "success.nontext"
)

var defaultMessages = map[language.Tag]map[MessageKey]string{
	language.English: {
		MsgGeneralError:    "Sorry about that! I'm having some connection issues on my end. Could you please try again in a moment?",
		MsgSavingLeadError: "I couldn't save your information properly - our system seems to be having a temporary issue. Let me try again later.",
		MsgMediaError:      "I'm having trouble viewing the photo you sent. Could you please try sending it again? Sometimes our connection can be a bit slow.",
		MsgLeadSaved:       "Perfect! I've saved all your details and our team will be reaching out to you soon. Is there anything else you'd like to know in the meantime?",
		MsgNonText:         "Thank you for your media, I will check it out as soon as possible.",
	},
	language.German: {
		MsgGeneralError:    "Entschuldigung, ich habe gerade Verbindungsprobleme. Könnten Sie es bitte in einem Moment noch einmal versuchen?",
		MsgSavingLeadError: "Ich konnte Ihre Informationen nicht speichern - unser System scheint ein vorübergehendes Problem zu haben. Ich werde es später erneut versuchen.",
		MsgMediaError:      "Ich habe Probleme, das von Ihnen gesendete Foto anzuzeigen. Könnten Sie es bitte erneut senden? Manchmal kann unsere Verbindung etwas langsam sein.",
		MsgLeadSaved:       "Perfekt! Ich habe alle Ihre Daten gespeichert und unser Team wird sich in Kürze bei Ihnen melden. Gibt es in der Zwischenzeit noch etwas, das Sie wissen möchten?",
		MsgNonText:         "Vielen Dank für Ihre Nachricht. Ich werde sie so schnell wie möglich überprüfen und mich bei Ihnen melden.",
	},
}

// Catalog resolves localized messages for a conversant's language tag.
type Catalog struct {
	texts    map[language.Tag]map[MessageKey]string
	tags     []language.Tag // fallback first
	matcher  language.Matcher
	fallback language.Tag
}

// DefaultCatalog returns the built-in English and German messages with
// English as the fallback.
func DefaultCatalog() *Catalog {
	return NewCatalog(language.English, defaultMessages)
}

// NewCatalog builds a catalog. fallback must be a key of texts.
func NewCatalog(fallback language.Tag, texts map[language.Tag]map[MessageKey]string) *Catalog {
	tags := make([]language.Tag, 0, len(texts))
	for tag := range texts {
		if tag != fallback {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })
	tags = append([]language.Tag{fallback}, tags...)

	return &Catalog{
		texts:    texts,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		fallback: fallback,
	}
}

// Get returns the message for key in the language closest to lang. Unknown
// languages and missing keys fall back to the catalog's fallback language.
func (c *Catalog) Get(lang string, key MessageKey) string {
	if text, ok := c.texts[c.match(lang)][key]; ok && text != "" {
		return text
	}
	return c.texts[c.fallback][key]
}

// Languages returns the base language codes the catalog has texts for,
// fallback first.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.tags))
	for _, tag := range c.tags {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

func (c *Catalog) match(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil {
		return c.fallback
	}
	_, index, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return c.fallback
	}
	return c.tags[index]
}
