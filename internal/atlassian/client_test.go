package atlassian

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/atlastools/internal/config"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

func newTestClient(t *testing.T, h http.Handler, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient("jira", config.AtlassianConfig{
		URL:        srv.URL,
		Username:   "me@example.com",
		APIToken:   "token",
		Timeout:    5,
		MaxRetries: retries,
	}, zerolog.Nop(), WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	_, err := NewClient("jira", config.AtlassianConfig{}, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, "JIRA_URL environment variable is required", err.Error())
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = NewClient("confluence", config.AtlassianConfig{URL: "not a url", Username: "u", APIToken: "t"}, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestClientSendsAuthAndQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "token", pass)
		assert.Equal(t, "/rest/api/3/issue/PROJ-1", r.URL.Path)
		assert.Equal(t, "*all", r.URL.Query().Get("fields"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"key":"PROJ-1"}`))
	}), 0)

	body, err := c.Get(context.Background(), "/rest/api/3/issue/PROJ-1", url.Values{"fields": {"*all"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"PROJ-1"}`, string(body))
}

func TestClientEncodesJSONBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "doc", got["body"].(map[string]any)["type"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10"}`))
	}), 0)

	_, err := c.Post(context.Background(), "rest/api/3/issue/A-1/comment", nil, map[string]any{"body": TextToADF("hi")})
	require.NoError(t, err)
}

func TestClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		kind    Kind
		code    tool.FailureCode
		message string
	}{
		{400, `{"errorMessages":["bad jql","second"]}`, KindValidation, tool.CodeInvalidRequest, "Validation failed: bad jql; second"},
		{400, `{"errorMessages":[],"errors":{"summary":"required"}}`, KindValidation, tool.CodeInvalidRequest, "Validation failed: summary: required"},
		{401, `{"message":"Client must be authenticated"}`, KindAuthentication, tool.CodeUnauthorized, "Authentication failed: Client must be authenticated"},
		{403, `forbidden`, KindAuthorization, tool.CodeForbidden, "Permission denied: forbidden"},
		{404, `{"errorMessages":["Issue does not exist"]}`, KindNotFound, tool.CodeNotFound, "Not found: Issue does not exist"},
		{409, ``, KindUnknown, tool.CodeRemoteError, "HTTP 409: HTTP 409"},
		{503, `{"message":"down"}`, KindService, tool.CodeRemoteError, "Server error: down"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), 0)

			_, err := c.Get(context.Background(), "/x", nil)
			require.Error(t, err)
			var ae *Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.status, ae.StatusCode)
			assert.Equal(t, tt.code, ae.Code())
			assert.Equal(t, tt.message, ae.Error())
		})
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}), 3)

	body, err := c.Get(context.Background(), "/rest/api/3/project", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}), 2)

	_, err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, KindOf(err))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}), 3)

	_, err := c.Get(context.Background(), "/x", nil)
	assert.True(t, IsNotFound(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientDoesNotResendFailedPost(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), 3)

	_, err := c.Post(context.Background(), "/rest/api/3/issue", nil, map[string]any{"fields": map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, KindService, KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientResendsRateLimitedPost(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}), 3)

	body, err := c.Post(context.Background(), "/rest/api/3/issue/A-1/comment", nil, map[string]any{"body": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(body))
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientRetriesIdempotentWrites(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			}), 2)

			_, err := c.Do(context.Background(), method, "/rest/api/3/issue/A-1", nil, nil)
			require.NoError(t, err)
			assert.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestClientEscapesPathSegmentsOnce(t *testing.T) {
	tests := []struct {
		segment string
		want    string
	}{
		{"a b", "/rest/api/3/issue/a%20b"},
		{"a/b", "/rest/api/3/issue/a%2Fb"},
		{"PROJ-1", "/rest/api/3/issue/PROJ-1"},
	}
	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.want, r.URL.EscapedPath())
				_, _ = w.Write([]byte(`{}`))
			}), 0)

			_, err := c.Get(context.Background(), "/rest/api/3/issue/"+PathEscape(tt.segment), nil)
			require.NoError(t, err)
		})
	}
}

func TestClientTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "/slow", nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, tool.CodeTimeout, err.(*Error).Code())
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient("jira", config.AtlassianConfig{URL: addr, Username: "u", APIToken: "t"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
}
