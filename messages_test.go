package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestCatalogMatching(t *testing.T) {
	c := DefaultCatalog()
	en := defaultMessages[language.English][MsgGeneralError]
	de := defaultMessages[language.German][MsgGeneralError]

	tests := []struct {
		lang string
		want string
	}{
		{"en", en},
		{"de", de},
		{"DE", de},
		{"de-CH", de},
		{"fr", en},
		{"", en},
		{"not a tag!", en},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Get(tt.lang, MsgGeneralError))
		})
	}
}

func TestCatalogFallsBackForMissingKeys(t *testing.T) {
	c := NewCatalog(language.English, map[language.Tag]map[MessageKey]string{
		language.English: {MsgGeneralError: "sorry", MsgLeadSaved: "saved"},
		language.German:  {MsgGeneralError: "Entschuldigung"},
	})

	assert.Equal(t, "Entschuldigung", c.Get("de", MsgGeneralError))
	assert.Equal(t, "saved", c.Get("de", MsgLeadSaved))
	assert.Empty(t, c.Get("de", MsgNonText))
}

func TestCatalogLanguages(t *testing.T) {
	assert.Equal(t, []string{"en", "de"}, DefaultCatalog().Languages())
}
