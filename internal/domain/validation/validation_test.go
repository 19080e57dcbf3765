package validation

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentence(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{name: "empty", parts: nil, want: ""},
		{name: "one", parts: []string{"a"}, want: "a"},
		{name: "two", parts: []string{"a", "b"}, want: "a and b"},
		{name: "three", parts: []string{"a", "b", "c"}, want: "a, b, and c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sentence(tt.parts))
		})
	}
}

func TestSet_Err(t *testing.T) {
	var s Set
	require.NoError(t, s.Err())

	s.Add("name", MsgBlank)
	s.Add("discount_type", MsgNotInList)
	s.Add(Base, "Merchant cannot have more than 5 active coupons.")
	s.Add("merchant_id", MsgMustExist)

	err := s.Err()
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{
		"Name can't be blank",
		"Discount type is not included in the list",
		"Merchant cannot have more than 5 active coupons.",
		"Merchant must exist",
	}, verr.FullMessages())
	assert.Equal(t, []string{MsgBlank}, verr.On("name"))
	assert.Empty(t, verr.On("code"))
	assert.Equal(t,
		"Name can't be blank, Discount type is not included in the list, "+
			"Merchant cannot have more than 5 active coupons., and Merchant must exist",
		err.Error())
}

func TestSingle(t *testing.T) {
	err := Single("status", "Invalid status filter")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Invalid status filter"}, verr.On("status"))
}
