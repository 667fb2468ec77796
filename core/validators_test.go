package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators_translations(t *testing.T) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type form struct {
		Quantity int      `json:"quantity" validate:"min=1,max=100"`
		Username string   `json:"username" validate:"min=3,max=8"`
		Items    []string `json:"items" validate:"min=1,max=2"`
		Kind     string   `json:"kind" validate:"oneof=course merch"`
		Title    string   `json:"title" validate:"required"`
		Handle   string   `json:"handle" validate:"omitempty,alphanum_"`
	}
	valid := func() form {
		return form{Quantity: 1, Username: "hero", Items: []string{"c1"}, Kind: "course", Title: "Go 101"}
	}

	tests := []struct {
		name    string
		mutate  func(f *form)
		wantFld string
		wantMsg string
	}{
		{name: "valid", mutate: func(f *form) {}},
		{name: "number below min", mutate: func(f *form) { f.Quantity = 0 }, wantFld: "quantity", wantMsg: "must be at least 1"},
		{name: "number above max", mutate: func(f *form) { f.Quantity = 101 }, wantFld: "quantity", wantMsg: "must be at most 100"},
		{name: "string too short", mutate: func(f *form) { f.Username = "ab" }, wantFld: "username", wantMsg: "must be at least 3 characters long"},
		{name: "string too long", mutate: func(f *form) { f.Username = "abcdefghi" }, wantFld: "username", wantMsg: "must be at most 8 characters long"},
		{name: "empty list", mutate: func(f *form) { f.Items = []string{} }, wantFld: "items", wantMsg: "must contain at least 1 items"},
		{name: "long list", mutate: func(f *form) { f.Items = []string{"a", "b", "c"} }, wantFld: "items", wantMsg: "must contain at most 2 items"},
		{name: "not one of", mutate: func(f *form) { f.Kind = "ebook" }, wantFld: "kind", wantMsg: "must be one of: course, merch"},
		{name: "required", mutate: func(f *form) { f.Title = "" }, wantFld: "title", wantMsg: requiredText},
		{name: "alphanum_", mutate: func(f *form) { f.Handle = "a-b" }, wantFld: "handle", wantMsg: alphaNumUnderText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)
			err := validate.Struct(f)
			if tt.wantFld == "" {
				assert.NoError(t, err)
				return
			}

			var vErrs validator.ValidationErrors
			require.ErrorAs(t, err, &vErrs)
			require.Len(t, vErrs, 1)
			assert.Equal(t, tt.wantFld, vErrs[0].Field())
			assert.Equal(t, tt.wantMsg, vErrs[0].Translate(translator))
		})
	}
}
