package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestTokenLimits(t *testing.T) {
	reasoning := (&Client{Model: "o3-mini"}).request("p", "- RSA\n")
	assert.Equal(t, maxTokens, reasoning.MaxCompletionTokens)
	assert.Zero(t, reasoning.MaxTokens)

	chat := (&Client{Model: "gpt-4o"}).request("p", "- RSA\n")
	assert.Equal(t, maxTokens, chat.MaxTokens)
	assert.Zero(t, chat.MaxCompletionTokens)

	def := (&Client{}).request("p", "")
	assert.Equal(t, defaultModel, def.Model)
	assert.Len(t, def.Messages, 2)
	assert.Contains(t, def.Messages[1].Content, "no cryptographic assets")
}
