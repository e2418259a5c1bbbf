package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type payload struct {
		Name     string `json:"name" validate:"required"`
		Username string `json:"username" validate:"alphanum_"`
		Notes    string `json:"notes" validate:"notblank"`
	}

	err := validate.Struct(payload{Username: "bad-name", Notes: "  "})
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)

	got := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		got[vErr.Field()] = vErr.Translate(translator)
	}
	assert.Equal(t, map[string]string{
		"name":     "this field is required",
		"username": "only alphanumeric characters and underscores are allowed",
		"notes":    "this field cannot be blank",
	}, got)

	assert.NoError(t, validate.Struct(payload{Name: "Ada", Username: "ada_l", Notes: "ok"}))
}

func TestParseOrderings(t *testing.T) {
	ords := ParseOrderings(" -due_date, title ,secret,", "due_date", "title")
	assert.Equal(t, []DBOrdering{{Field: "due_date"}, {Field: "title", Ascending: true}}, ords)
	assert.Nil(t, ParseOrderings("  "))
	assert.Equal(t, "title ASC", ords[1].String())
}
