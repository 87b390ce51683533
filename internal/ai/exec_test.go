package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
}

func TestExtractJSON_MarkdownFenced(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, extractJSON(in))
}

func TestExtractJSON_PlainFence(t *testing.T) {
	in := "```\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, extractJSON(in))
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	in := "Sure, here's my answer:\n{\"a\":1}\nLet me know if you need anything else."
	assert.Equal(t, `{"a":1}`, extractJSON(in))
}

func TestExtractJSON_NoBraces(t *testing.T) {
	assert.Equal(t, "no json here", extractJSON("no json here"))
}
