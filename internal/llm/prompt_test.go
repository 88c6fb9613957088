package llm_test

import (
	"errors"
	"testing"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestBuildRequest(t *testing.T) {
	req := llm.BuildRequest("write a function that reverses a string")

	assert.Equal(t, "write a function that reverses a string", req.Prompt)
	assert.Contains(t, req.System, "fenced code block")
	assert.Contains(t, req.System, "JavaScript")
	assert.Empty(t, req.Model)
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		code     string
		language string
	}{
		{
			"plain code",
			"console.log('hi');",
			"console.log('hi');",
			"javascript",
		},
		{
			"code with whitespace",
			"  \n  let x = 1;  \n",
			"let x = 1;",
			"javascript",
		},
		{
			"tagged code block",
			"```python\nprint('hi')\n```",
			"print('hi')",
			"python",
		},
		{
			"generic code block",
			"```\nconst a = [3, 1, 2].sort();\n```",
			"const a = [3, 1, 2].sort();",
			"javascript",
		},
		{
			"explanation around block",
			"Here you go:\n```Go\nfunc main() {}\n```\nThis defines main.",
			"func main() {}",
			"go",
		},
		{
			"first block wins",
			"```js\nfirst()\n```\nor\n```ts\nsecond()\n```",
			"first()",
			"js",
		},
		{
			"unterminated block is returned raw",
			"```python\nprint(1)",
			"```python\nprint(1)",
			"javascript",
		},
		{
			"multi line body keeps inner indentation",
			"```javascript\nfunction f() {\n  return 1;\n}\n```",
			"function f() {\n  return 1;\n}",
			"javascript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, language := llm.ExtractCode(tt.content)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.language, language)
		})
	}
}

func TestEnvelope(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		result := llm.Envelope(&llm.Response{Text: "```python\nprint(1)\n```"}, nil)
		assert.Equal(t, llm.StatusOK, result.Status)
		assert.Equal(t, "print(1)", result.Code)
		assert.Equal(t, "python", result.Language)
		assert.NoError(t, result.Err)
	})

	t.Run("empty text", func(t *testing.T) {
		result := llm.Envelope(&llm.Response{Text: "   "}, nil)
		assert.Equal(t, llm.StatusEmpty, result.Status)
		assert.Equal(t, llm.NoCodePlaceholder, result.Code)
		assert.Equal(t, domain.DefaultLanguage, result.Language)
	})

	t.Run("empty block", func(t *testing.T) {
		result := llm.Envelope(&llm.Response{Text: "```js\n```"}, nil)
		assert.Equal(t, llm.StatusEmpty, result.Status)
		assert.Equal(t, "// No code returned", result.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		result := llm.Envelope(nil, nil)
		assert.Equal(t, llm.StatusEmpty, result.Status)
	})

	t.Run("error", func(t *testing.T) {
		result := llm.Envelope(nil, errors.New("gemini returned status 503"))
		assert.Equal(t, llm.StatusError, result.Status)
		assert.Empty(t, result.Code)
		assert.ErrorIs(t, result.Err, domain.ErrCodegenFailed)
		assert.ErrorIs(t, result.Err, domain.ErrExternalService)
		assert.Equal(t, "codegen_failed", domain.Code(result.Err))
	})
}
