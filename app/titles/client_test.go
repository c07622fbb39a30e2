package titles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEmbed = `<blockquote class="twitter-tweet"><p lang="en" dir="ltr">Hello world from the timeline</p>&mdash; Alice (@alice) <a href="https://twitter.com/alice/status/1">January 1, 2024</a></blockquote> <script async src="https://platform.twitter.com/widgets.js" charset="utf-8"></script>`

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func TestClientTitle(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(completion(`"Alice Says Hello"`)))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1/", "secret", "small-model", 5*time.Second)
	title, err := client.Title(context.Background(), sampleEmbed)
	require.NoError(t, err)

	assert.Equal(t, "Alice Says Hello", title)
	assert.Equal(t, "small-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, promptPrefix))
	assert.Contains(t, got.Messages[0].Content, "Hello world from the timeline")
}

func TestClientTitleErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "malformed body", status: http.StatusOK, body: "{"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrEmptyTitle},
		{name: "blank answer", status: http.StatusOK, body: completion("  \n"), wantErr: ErrEmptyTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "", "m", time.Second).Title(context.Background(), sampleEmbed)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClientTitleHonoursContext(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer server.Close()
	// the handler never reads the body, so it may not see the client leave
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "", "m", time.Minute).Title(ctx, sampleEmbed)
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `"Quoted Title"`, want: "Quoted Title"},
		{raw: "Title: Plain answer", want: "Plain answer"},
		{raw: "First line\nsecond line", want: "First line"},
		{raw: "one two three four five six seven eight nine ten eleven", want: "one two three four five six seven eight nine ten"},
		{raw: "   ", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.raw), "raw %q", tt.raw)
	}
}

func TestContextText(t *testing.T) {
	text := ContextText(sampleEmbed)
	assert.Contains(t, text, "Hello world from the timeline")
	assert.NotContains(t, text, "\n")

	assert.Empty(t, ContextText("   "))
}
