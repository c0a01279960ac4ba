package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestHistoryRole(t *testing.T) {
	assert.Equal(t, genai.Role(genai.RoleModel), historyRole("model"))
	assert.Equal(t, genai.Role(genai.RoleModel), historyRole("assistant"))
	assert.Equal(t, genai.Role(genai.RoleUser), historyRole("user"))
	assert.Equal(t, genai.Role(genai.RoleUser), historyRole(""))

	// NewContentFromText requires a typed role, not a bare string.
	content := genai.NewContentFromText("hi", historyRole("assistant"))
	assert.Equal(t, string(genai.RoleModel), content.Role)
}
