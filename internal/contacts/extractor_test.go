package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/botlode/brain/internal/leads"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []Contact
	}{
		{
			name:    "no contacts",
			message: "Hola",
			want:    nil,
		},
		{
			name:    "email lower-cased once",
			message: "Escribime a Juan@Test.com o a juan@test.com, es el mismo",
			want:    []Contact{{Type: leads.FactEmail, Value: "juan@test.com"}},
		},
		{
			name:    "email with meeting",
			message: "mi email es juan@test.com, agendemos para el lunes",
			want:    []Contact{{Type: leads.FactEmail, Value: "juan@test.com"}},
		},
		{
			name:    "local mobile number",
			message: "Mi cel es 11 5555-1234",
			want:    []Contact{{Type: leads.FactPhone, Value: "1155551234"}},
		},
		{
			name:    "bare digit run",
			message: "llamame al 123456789012",
			want:    []Contact{{Type: leads.FactPhone, Value: "123456789012"}},
		},
		{
			name:    "whatsapp keyword wins over phone",
			message: "mi whatsapp: 11 5555 1234",
			want:    []Contact{{Type: leads.FactWhatsApp, Value: "1155551234"}},
		},
		{
			name:    "whatsapp keyword followed by es",
			message: "mi whatsapp es 11 5555 1234",
			want:    []Contact{{Type: leads.FactWhatsApp, Value: "1155551234"}},
		},
		{
			name:    "number that is a substring of another number",
			message: "llamame al 12345678 o al 912345678",
			want: []Contact{
				{Type: leads.FactPhone, Value: "12345678"},
				{Type: leads.FactPhone, Value: "912345678"},
			},
		},
		{
			name:    "phone kept beside whatsapp that contains it",
			message: "mi wsp 1155551234 y el fijo 55551234",
			want: []Contact{
				{Type: leads.FactPhone, Value: "55551234"},
				{Type: leads.FactWhatsApp, Value: "1155551234"},
			},
		},
		{
			name:    "short numbers ignored",
			message: "tengo 3 locales y 1200 clientes",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.message))
		})
	}
}

func TestExtract_NeverReportsNumberTwice(t *testing.T) {
	found := Extract("wsp 1155551234, o si preferís el fijo 1155551234")

	var phones, whatsApp int
	for _, c := range found {
		switch c.Type {
		case leads.FactPhone:
			phones++
		case leads.FactWhatsApp:
			whatsApp++
		}
	}
	assert.Equal(t, 1, whatsApp)
	assert.Equal(t, 0, phones)
}

func TestNormalizeNumber(t *testing.T) {
	got, ok := normalizeNumber(" +54 (11) 5555-1234 ")
	assert.True(t, ok)
	assert.Equal(t, "541155551234", got)

	_, ok = normalizeNumber("1234567")
	assert.False(t, ok)

	_, ok = normalizeNumber("1234567890123456")
	assert.False(t, ok)
}

func TestToFacts(t *testing.T) {
	facts := ToFacts([]Contact{{Type: leads.FactEmail, Value: "a@b.co"}}, "s1", "bot-1")
	assert.Equal(t, []leads.Fact{{SessionID: "s1", BotID: "bot-1", Type: leads.FactEmail, Value: "a@b.co"}}, facts)
	assert.True(t, HasContact([]Contact{{Type: leads.FactPhone, Value: "12345678"}}))
	assert.False(t, HasContact(nil))
}
