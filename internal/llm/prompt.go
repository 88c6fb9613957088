package llm

import (
	"fmt"
	"strings"

	"github.com/Rrens/codemuse/internal/domain"
)

// NoCodePlaceholder is stored when the provider answered without any text
const NoCodePlaceholder = "// No code returned"

// CodegenInstruction is the system instruction sent with transcripts
const CodegenInstruction = `You are a programming assistant that turns spoken requests into code.

Rules:
1. Answer with a single fenced code block tagged with its language
2. Default to JavaScript when the request does not name a language
3. Keep explanations out of the code block; short comments inside the code are fine`

// Status is the outcome class of a code generation call
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Result is the typed envelope around a provider answer
type Result struct {
	Status   Status `json:"status"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Err      error  `json:"-"`
}

// BuildRequest creates the code generation request for a transcript
func BuildRequest(transcript string) Request {
	return Request{
		Prompt: transcript,
		System: CodegenInstruction,
	}
}

// Envelope maps a provider answer to a Result. A failed call is StatusError
// with Err classified as domain.ErrCodegenFailed; an answer without text is
// StatusEmpty carrying NoCodePlaceholder.
func Envelope(resp *Response, err error) Result {
	if err != nil {
		return Result{Status: StatusError, Err: fmt.Errorf("%w: %v", domain.ErrCodegenFailed, err)}
	}

	if resp == nil {
		return Result{Status: StatusEmpty, Code: NoCodePlaceholder, Language: domain.DefaultLanguage}
	}

	code, language := ExtractCode(resp.Text)
	if code == "" {
		return Result{Status: StatusEmpty, Code: NoCodePlaceholder, Language: domain.DefaultLanguage}
	}

	return Result{Status: StatusOK, Code: code, Language: language}
}

// ExtractCode extracts code from an LLM answer. The first fenced block wins
// and its info string names the language; unfenced answers are returned
// trimmed. The language defaults to domain.DefaultLanguage.
func ExtractCode(content string) (string, string) {
	if code, language, ok := extractFromCodeBlock(content); ok {
		if language == "" {
			language = domain.DefaultLanguage
		}
		return code, language
	}

	return strings.TrimSpace(content), domain.DefaultLanguage
}

func extractFromCodeBlock(content string) (string, string, bool) {
	const fence = "```"

	startIdx := strings.Index(content, fence)
	if startIdx == -1 {
		return "", "", false
	}

	rest := content[startIdx+len(fence):]
	newline := strings.IndexByte(rest, '\n')
	if newline == -1 {
		return "", "", false
	}

	info := strings.TrimSpace(rest[:newline])
	body := rest[newline+1:]

	endIdx := strings.Index(body, fence)
	if endIdx == -1 {
		return "", "", false
	}

	language := ""
	if fields := strings.Fields(info); len(fields) > 0 {
		language = strings.ToLower(fields[0])
	}

	return strings.TrimSpace(body[:endIdx]), language, true
}
