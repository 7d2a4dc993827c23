package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/auditgpt/src/internal/ai/parser"
)

func auditRequest(thinking int) Request {
	return Request{
		SystemPrompt:   "You are AuditGPT.",
		UserPrompt:     "AUDIT TARGET SOURCE CODE (Vault):\n\ncontract Vault {}",
		Schema:         parser.ReportSchema,
		ThinkingBudget: thinking,
	}
}

func TestGeminiClientAnalyze(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-3-pro-preview:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"text":"thinking about reentrancy","thought":true},
			{"text":"{\"overallScore\":90,"},{"text":"\"summary\":\"ok\"}"}]}}],
			"usageMetadata":{"promptTokenCount":12}}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "gemini-3-pro-preview"})
	require.NoError(t, err)
	defer c.Close()

	text, err := c.Analyze(context.Background(), auditRequest(32768))
	require.NoError(t, err)
	assert.Equal(t, `{"overallScore":90,"summary":"ok"}`, text)

	gen := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Equal(t, float64(32768), gen["thinkingConfig"].(map[string]any)["thinkingBudget"])
	assert.Equal(t, "OBJECT", gen["responseSchema"].(map[string]any)["type"])
	sys := got["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "You are AuditGPT.", sys["text"])
	assert.Equal(t, "Gemini (gemini-3-pro-preview)", c.GetName())
}

func TestGeminiClientNoThinkingAndErrors(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body["generationConfig"], "thinkingConfig")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := c.Analyze(context.Background(), auditRequest(0))
	require.NoError(t, err)
	assert.Empty(t, text)

	status = http.StatusServiceUnavailable
	_, err = c.Analyze(context.Background(), auditRequest(0))
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.StatusCode)
	assert.Contains(t, err.Error(), "The model is overloaded.")
}

func TestGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(Config{})
	assert.Error(t, err)
}

func TestOpenAIClientJSONSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.ResponseFormat)
		assert.Equal(t, JSONModeSchema, body.ResponseFormat.Type)
		assert.Equal(t, "audit_report", body.ResponseFormat.JSONSchema.Name)
		assert.True(t, body.ResponseFormat.JSONSchema.Strict)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"a\":1}"}}],"usage":{"total_tokens":5}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)
	text, err := c.Analyze(context.Background(), auditRequest(0))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestOpenAIClientJSONObjectMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, JSONModeObject, body.ResponseFormat.Type)
		assert.Nil(t, body.ResponseFormat.JSONSchema)
		assert.Contains(t, body.Messages[0].Content, "JSON FIELDS:")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "deepseek-chat", JSONMode: JSONModeObject})
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), auditRequest(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestOllamaClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "object", body["format"].(map[string]any)["type"])
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"{}"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{BaseURL: srv.URL, Model: "llama3"})
	require.NoError(t, err)
	text, err := c.Analyze(context.Background(), auditRequest(0))
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
	assert.Equal(t, "Local LLM (llama3)", c.GetName())
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", apiErrorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "nested", apiErrorMessage([]byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "plain text", apiErrorMessage([]byte(" plain text ")))
}
