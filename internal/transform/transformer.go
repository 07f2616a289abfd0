// Package transform asks a language model for a corrected version of a
// source file, given the file and the failure trace that implicates it.
package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"mender/internal/logging"
)

// SystemMessage instructs the model to answer with a whole file.
const SystemMessage = "You are an elite Python refactorer. Given a failing traceback and the " +
	"file's current contents, return a **complete replacement** inside one fenced code block."

var languageNames = map[string]string{
	".py":  "python",
	".rb":  "ruby",
	".js":  "javascript",
	".ts":  "typescript",
	".pl":  "perl",
	".php": "php",
	".lua": "lua",
	".sh":  "bash",
}

// LanguageForExtension maps a source extension to a fence tag. Unknown
// extensions yield "" (an untagged fence).
func LanguageForExtension(ext string) string {
	return languageNames[strings.ToLower(ext)]
}

// SystemMessageFor returns SystemMessage adjusted to another language.
func SystemMessageFor(language string) string {
	if language == "" || language == "python" {
		return SystemMessage
	}
	return strings.Replace(SystemMessage, "Python", language, 1)
}

// Transformer proposes a replacement for source given a failure trace.
// An empty string or a result equal to source means "no change proposed";
// neither is an error.
type Transformer interface {
	Transform(ctx context.Context, source, trace string) (string, error)
}

// LLMTransformer is a Transformer backed by a chat completion Client.
type LLMTransformer struct {
	client   Client
	system   string
	language string
	logger   *zap.Logger
}

// Verify LLMTransformer implements Transformer
var _ Transformer = (*LLMTransformer)(nil)

// NewLLMTransformer wraps client. language tags the source fence in the
// prompt and names the language in the system message.
func NewLLMTransformer(client Client, language string, logger *zap.Logger) *LLMTransformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMTransformer{
		client:   client,
		system:   SystemMessageFor(language),
		language: language,
		logger:   logger,
	}
}

// Transform sends the trace and source to the model and extracts the first
// fenced code block of the reply.
func (t *LLMTransformer) Transform(ctx context.Context, source, trace string) (string, error) {
	timer := logging.StartTimer(t.logger, "transformation request")
	defer timer.Stop()

	reply, err := t.client.CompleteWithSystem(ctx, t.system, BuildPrompt(trace, source, t.language))
	if err != nil {
		return "", fmt.Errorf("transformation request failed: %w", err)
	}

	code, err := ExtractCodeBlock(reply)
	if err != nil {
		t.logger.Warn("reply had no code block", zap.Int("reply_len", len(reply)))
		return "", err
	}
	return code, nil
}

// BuildPrompt renders the two-section user prompt.
func BuildPrompt(trace, source, language string) string {
	return fmt.Sprintf("### Traceback\n```\n%s\n```\n\n### Current Source\n```%s\n%s\n```", trace, language, source)
}

// fencePattern matches the first fenced block. An info string is only
// taken when a line break follows it, so ```x = 1``` keeps its first token.
var fencePattern = regexp.MustCompile("(?s)```(?:[^\\s`]*[ \\t]*\\r?\\n)?(.*?)```")

// ExtractCodeBlock returns the body of the first fenced code block with
// trailing whitespace trimmed and exactly one trailing newline.
func ExtractCodeBlock(reply string) (string, error) {
	m := fencePattern.FindStringSubmatch(reply)
	if m == nil {
		return "", ErrNoUsablePayload
	}
	body := strings.TrimRight(m[1], " \t\r\n")
	if body == "" {
		// An empty fence proposes no change
		return "", nil
	}
	return body + "\n", nil
}
