package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGradingResponseValidatesSchema(t *testing.T) {
	valid := `{"grade": 120, "feedback": "ok", "outcomes": [
		{"question": "Q1", "justification": "missed base case", "scoreAwarded": 2,
		 "rubricCriteriaMatched": ["Correctness"], "sourceTextExcerpts": ["recursion needs a base case"]}
	]}`
	result, err := parseGradingResponse(valid, 100)
	require.NoError(t, err)
	require.Equal(t, 100.0, result.Grade)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, []string{"Correctness"}, result.Outcomes[0].RubricCriteriaMatched)

	_, err = parseGradingResponse(`{"grade": 10, "feedback": "x", "outcomes": [{"question": "Q1"}]}`, 0)
	require.Error(t, err)

	_, err = parseGradingResponse(`not json`, 0)
	require.Error(t, err)
}

func TestOpenAIGraderGrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		content := `{"grade": 7, "feedback": "Review loops", "outcomes": [{"question": "Q2", "justification": "off by one",
			"scoreAwarded": 1, "rubricCriteriaMatched": ["Accuracy"], "sourceTextExcerpts": ["loop bounds"]}]}`
		payload := map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	defer server.Close()

	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	result, err := grader.Grade(context.Background(), GradingInput{
		AssignmentName: "Loops",
		SubmissionText: "for i := 0; i <= n; i++",
		Rubric:         []RubricItem{{Name: "Accuracy", Points: 5}},
		MaxScore:       10,
	})
	require.NoError(t, err)
	require.Equal(t, 7.0, result.Grade)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, "Q2", result.Outcomes[0].Question)
}

func TestNewOpenAIGraderRequiresKey(t *testing.T) {
	_, err := NewOpenAIGrader(OpenAIConfig{})
	require.Error(t, err)
}
