package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []FieldError
	}{
		{
			name: "missing",
			raw:  ``,
			want: nil,
		},
		{
			name: "null",
			raw:  `null`,
			want: nil,
		},
		{
			name: "message",
			raw:  `"Email already registered"`,
			want: []FieldError{{Message: "Email already registered"}},
		},
		{
			name: "list of locations",
			raw: `[
				{"loc": ["body", "email"], "msg": "value is not a valid email address", "type": "value_error"},
				{"loc": ["query", "limit"], "msg": "Input should be a valid integer", "type": "int_parsing"}
			]`,
			want: []FieldError{
				{Field: "email", Message: "value is not a valid email address"},
				{Field: "limit", Message: "Input should be a valid integer"},
			},
		},
		{
			name: "list with nested location and index",
			raw:  `[{"loc": ["body", "location", "lat", 0], "msg": "too large"}]`,
			want: []FieldError{{Field: "lat", Message: "too large"}},
		},
		{
			name: "list without field",
			raw:  `[{"loc": ["body"], "msg": "Invalid JSON"}]`,
			want: []FieldError{{Message: "Invalid JSON"}},
		},
		{
			name: "list item without msg",
			raw:  `[{"code": 7, "hint": "retry"}, "plain"]`,
			want: []FieldError{
				{Message: `{"code":7,"hint":"retry"}`},
				{Message: "plain"},
			},
		},
		{
			name: "nested object",
			raw:  `{"phone": "invalid", "location": {"village": "required", "lat": 91}, "tags": ["too many", "duplicate"]}`,
			want: []FieldError{
				{Field: "location.lat", Message: "91"},
				{Field: "location.village", Message: "required"},
				{Field: "phone", Message: "invalid"},
				{Field: "tags", Message: "too many; duplicate"},
			},
		},
		{
			name: "number",
			raw:  `42`,
			want: []FieldError{{Message: "42"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDetail(json.RawMessage(tt.raw)))
		})
	}
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "", FormatFields(nil))
	assert.Equal(t, "Email already registered", FormatFields([]FieldError{{Message: "Email already registered"}}))
	assert.Equal(t, "email: invalid, Missing body", FormatFields([]FieldError{
		{Field: "email", Message: "invalid"},
		{Message: "Missing body"},
	}))
}

func TestErrorKindMatching(t *testing.T) {
	err := &Error{Kind: KindServer, Message: "boom"}

	assert.ErrorIs(t, err, ErrServer)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, KindUnknown, KindOf(assert.AnError))
}
