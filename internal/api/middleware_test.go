package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler records the session ID seen by the inner handler.
func captureHandler(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetSessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func sessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware_IssuesCookie(t *testing.T) {
	var captured string
	handler := SessionMiddleware(false)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	c := sessionCookie(t, w.Result())
	require.NotNil(t, c)
	assert.Equal(t, captured, c.Value)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	_, err := uuid.Parse(captured)
	assert.NoError(t, err)
}

func TestSessionMiddleware_ReusesValidCookie(t *testing.T) {
	var captured string
	handler := SessionMiddleware(false)(captureHandler(&captured))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, id, captured)
	assert.Nil(t, sessionCookie(t, w.Result()), "no new cookie for a known session")
}

func TestSessionMiddleware_ReplacesMalformedCookie(t *testing.T) {
	var captured string
	handler := SessionMiddleware(true)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "../../etc"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	c := sessionCookie(t, w.Result())
	require.NotNil(t, c)
	assert.NotEqual(t, "../../etc", captured)
	assert.Equal(t, c.Value, captured)
	assert.True(t, c.Secure)
}

func TestGetSessionID_EmptyContext(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	assert.Equal(t, "", GetSessionID(ctx))
}
