package openai

import (
	"encoding/json"
	"testing"

	"github.com/flemzord/parley/internal/provider"
)

func TestToMessages_AllRoles(t *testing.T) {
	msgs := []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: "You are helpful."},
		{Role: provider.MessageRoleUser, Content: "Hello"},
		{Role: provider.MessageRoleAssistant, Content: "Hi!"},
	}

	out := toMessages(msgs)

	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	want := []chatMessage{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi!"},
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, out[i], want[i])
		}
	}
}

func TestToMessages_Empty(t *testing.T) {
	out := toMessages(nil)
	if len(out) != 0 {
		t.Errorf("expected 0 messages, got %d", len(out))
	}

	// Must marshal as [] rather than null.
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("marshal = %s, want []", data)
	}
}

func TestFromResponse(t *testing.T) {
	raw := `{
		"id": "chatcmpl-abc",
		"model": "gpt-4-0613",
		"choices": [{"message": {"role": "assistant", "content": "Paris."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`
	var resp chatResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatal(err)
	}

	cr := fromResponse(&resp)
	if cr.ID != "chatcmpl-abc" || cr.Model != "gpt-4-0613" {
		t.Errorf("id/model = %q/%q", cr.ID, cr.Model)
	}
	if cr.Content != "Paris." {
		t.Errorf("content = %q, want Paris.", cr.Content)
	}
	if cr.FinishReason != provider.FinishReasonStop {
		t.Errorf("finish_reason = %q, want stop", cr.FinishReason)
	}
	if cr.Usage.PromptTokens != 12 || cr.Usage.CompletionTokens != 3 || cr.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", cr.Usage)
	}
	if cr.FromCache {
		t.Error("fresh response must not be marked from_cache")
	}
}

func TestFromResponse_NoChoices(t *testing.T) {
	cr := fromResponse(&chatResponse{ID: "x"})
	if cr.Content != "" || cr.FinishReason != "" {
		t.Errorf("expected empty content and finish reason, got %+v", cr)
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		input *string
		want  provider.FinishReason
	}{
		{strPtr("stop"), provider.FinishReasonStop},
		{strPtr("length"), provider.FinishReasonLength},
		{strPtr("content_filter"), provider.FinishReasonFiltering},
		{strPtr("function_call"), provider.FinishReason("function_call")},
		{nil, ""},
	}

	for _, tt := range tests {
		got := mapFinishReason(tt.input)
		if got != tt.want {
			input := "<nil>"
			if tt.input != nil {
				input = *tt.input
			}
			t.Errorf("mapFinishReason(%s) = %q, want %q", input, got, tt.want)
		}
	}
}

func TestRequest_Stream(t *testing.T) {
	p := &Provider{config: Config{Model: "gpt-4"}}

	body := p.request(provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		Stop:     []string{"\n\n"},
	}, true)

	if !body.Stream || body.StreamOptions == nil || !body.StreamOptions.IncludeUsage {
		t.Errorf("stream flags = %v/%+v, want stream with usage", body.Stream, body.StreamOptions)
	}
	if len(body.Stop) != 1 || body.Stop[0] != "\n\n" {
		t.Errorf("stop = %v", body.Stop)
	}
}
