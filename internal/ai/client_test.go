package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	tests := []struct {
		name              string
		request           Request
		mockServerHandler func(t *testing.T, w http.ResponseWriter, r *http.Request)

		wantResponse    Response
		wantError       bool
		wantErrorString string
		wantRateLimit   bool
		wantRetryAfter  time.Duration
	}{
		{
			name: "Successful completion",
			request: Request{
				Messages: []Message{
					{Role: RoleSystem, Content: "You are a concise writing assistant."},
					{Role: RoleUser, Content: "Photosynthesis converts light into chemical energy."},
				},
				Temperature: 0.3,
				MaxTokens:   1024,
			},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				// Verify request
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/generate", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var reqBody Request
				err := json.NewDecoder(r.Body).Decode(&reqBody)
				require.NoError(t, err)
				require.Len(t, reqBody.Messages, 2)
				assert.Equal(t, RoleUser, reqBody.Messages[1].Role)
				assert.Equal(t, 1024, reqBody.MaxTokens)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(Response{
					Response: "Plants turn sunlight into sugar.",
				})
			},
			wantResponse: Response{
				Response: "Plants turn sunlight into sugar.",
			},
		},
		{
			name: "Rate limited with retryAfter",
			request: Request{
				Messages: []Message{{Role: RoleUser, Content: "hello"}},
			},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate_limited", "message": "too many requests", "retryAfter": 7}`))
			},
			wantError:      true,
			wantRateLimit:  true,
			wantRetryAfter: 7 * time.Second,
		},
		{
			name: "Rate limited without retryAfter falls back to default",
			request: Request{
				Messages: []Message{{Role: RoleUser, Content: "hello"}},
			},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantError:      true,
			wantRateLimit:  true,
			wantRetryAfter: 3 * time.Second,
		},
		{
			name: "HTTP 500 error",
			request: Request{
				Messages: []Message{{Role: RoleUser, Content: "hello"}},
			},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error": "internal", "message": "upstream unavailable"}`))
			},
			wantError:       true,
			wantErrorString: "upstream unavailable",
		},
		{
			name: "Empty response content",
			request: Request{
				Messages: []Message{{Role: RoleUser, Content: "hello"}},
			},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"response": ""}`))
			},
			wantError:       true,
			wantErrorString: "empty response content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.mockServerHandler(t, w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			defer client.Close()

			ctx := context.Background()
			gotResponse, gotErr := client.Complete(ctx, tt.request)

			if tt.wantError {
				require.Error(t, gotErr)
				if tt.wantErrorString != "" {
					assert.Contains(t, gotErr.Error(), tt.wantErrorString)
				}
				if tt.wantRateLimit {
					require.True(t, IsRateLimit(gotErr))
					var rl *RateLimitError
					require.ErrorAs(t, gotErr, &rl)
					assert.Equal(t, tt.wantRetryAfter, rl.RetryAfter)
				}
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.wantResponse, gotResponse)
		})
	}
}

func TestClient_Available(t *testing.T) {
	tests := []struct {
		name              string
		mockServerHandler func(t *testing.T, w http.ResponseWriter, r *http.Request)
		want              bool
	}{
		{
			name: "Endpoint responds OK",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			want: true,
		},
		{
			name: "Endpoint responds 404 but is reachable",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: true,
		},
		{
			name: "Endpoint responds 503",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.mockServerHandler(t, w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			defer client.Close()

			assert.Equal(t, tt.want, client.Available(context.Background()))
		})
	}
}

func TestClient_Available_unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL)
	defer client.Close()

	assert.False(t, client.Available(context.Background()))
}
