package localmodel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointPath(t *testing.T) {
	assert.Equal(t, "/suggest-tools-enhanced", EndpointPath("tool-suggest"))
	assert.Equal(t, "/suggest-workflows-enhanced", EndpointPath("workflow-suggest"))
	assert.Equal(t, "/workflow-execution", EndpointPath("workflow-execution"))
	assert.Equal(t, "/suggest-tools-enhanced", EndpointPath(""))
	assert.Equal(t, "/suggest-tools-enhanced", EndpointPath("no-such-key"))
}

func TestQuerySendsExpectedRequest(t *testing.T) {
	var gotPath string
	var gotBody queryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"results": "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5, 0)
	reply, err := client.Query(context.Background(), EndpointWorkflowSuggest, "align my reads")
	require.NoError(t, err)

	assert.Equal(t, "ok", reply)
	assert.Equal(t, "/suggest-workflows-enhanced", gotPath)
	assert.Equal(t, "align my reads", gotBody.Query)
	assert.Equal(t, 5, gotBody.TopK)
}

func TestQueryFallsBackThroughReplyChain(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "results preferred",
			body: `{"results":"from results","response":"from response"}`,
			want: "from results",
		},
		{
			name: "whitespace results falls through to choices",
			body: `{"results":"  ","choices":[{"message":{"content":"from choices"}}],"response":"from response"}`,
			want: "from choices",
		},
		{
			name: "empty choices falls through to response",
			body: `{"results":"","choices":[],"response":"from response"}`,
			want: "from response",
		},
		{
			name: "nothing usable yields fixed fallback",
			body: `{"unrelated":true}`,
			want: FallbackReply,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, 5, 0)
			reply, err := client.Query(context.Background(), "", "hello")
			require.NoError(t, err)
			assert.Equal(t, tc.want, reply)
		})
	}
}

func TestQueryErrorOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5, 0)
	_, err := client.Query(context.Background(), "", "hello")
	assert.Error(t, err)
}

func TestQueryErrorOnUnreachableEndpoint(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 5, 0)
	_, err := client.Query(context.Background(), "", "hello")
	assert.Error(t, err)
}
