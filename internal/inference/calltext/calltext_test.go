package calltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallSyntax(t *testing.T) {
	call, err := Parse("call:send_nudge{habit_id:h1, tone:gentle, message:time to stretch}")
	require.NoError(t, err)

	assert.Equal(t, "send_nudge", call.Name)
	assert.Equal(t, "h1", call.Arguments["habit_id"])
	assert.Equal(t, "gentle", call.Arguments["tone"])
	assert.Equal(t, "time to stretch", call.Arguments["message"])
}

func TestParseCoercion(t *testing.T) {
	call, err := Parse("call:adjust_difficulty{habit_id:h1, delta:-1, temporary:true, note:2nd try}")
	require.NoError(t, err)

	assert.Equal(t, -1.0, call.Arguments["delta"])
	assert.Equal(t, true, call.Arguments["temporary"])
	// Leading digit but not a number: stays a string.
	assert.Equal(t, "2nd try", call.Arguments["note"])
}

func TestParseQuotedValuesStayStrings(t *testing.T) {
	call, err := Parse(`call:set_cooldown{habit_id:"h1", hours:"4"}`)
	require.NoError(t, err)

	assert.Equal(t, "h1", call.Arguments["habit_id"])
	assert.Equal(t, "4", call.Arguments["hours"]) // quotes force string
}

func TestParseEmbeddedInProse(t *testing.T) {
	text := "I think the best move is call:defer_action{reason:user is in a meeting} here."
	call, err := Parse(text)
	require.NoError(t, err)

	assert.Equal(t, "defer_action", call.Name)
	assert.Equal(t, "user is in a meeting", call.Arguments["reason"])
}

func TestParseEmptyArguments(t *testing.T) {
	call, err := Parse("call:noop{}")
	require.NoError(t, err)
	assert.Equal(t, "noop", call.Name)
	assert.Empty(t, call.Arguments)
}

func TestParseQuotedCommaInsideValue(t *testing.T) {
	call, err := Parse(`call:send_nudge{message:"one, two", tone:firm}`)
	require.NoError(t, err)

	assert.Equal(t, "one, two", call.Arguments["message"])
	assert.Equal(t, "firm", call.Arguments["tone"])
}

func TestParseJSONFallback(t *testing.T) {
	call, err := Parse(`{"name":"reschedule_nudge","arguments":{"habit_id":"h2","delay_minutes":30}}`)
	require.NoError(t, err)

	assert.Equal(t, "reschedule_nudge", call.Name)
	assert.Equal(t, "h2", call.Arguments["habit_id"])
	assert.Equal(t, 30.0, call.Arguments["delay_minutes"])
}

func TestParseJSONWithSurroundingText(t *testing.T) {
	call, err := Parse("Here's my decision:\n{\"name\":\"defer_action\",\"arguments\":{}}\n")
	require.NoError(t, err)
	assert.Equal(t, "defer_action", call.Name)
	assert.NotNil(t, call.Arguments)
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"just some prose with no calls",
		"call:{missing:name}",
		"call:broken{key value}",
		"call:unterminated{key:value",
		`{"arguments":{}}`, // no name
	} {
		_, err := Parse(text)
		assert.Error(t, err, "text=%q", text)
	}
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 3.5, Coerce("3.5"))
	assert.Equal(t, -2.0, Coerce("-2"))
	assert.Equal(t, true, Coerce("true"))
	assert.Equal(t, false, Coerce("false"))
	assert.Equal(t, "True", Coerce("True")) // booleans are lowercase only
	assert.Equal(t, "hello", Coerce("hello"))
	assert.Equal(t, "quoted", Coerce(`"quoted"`))
}
