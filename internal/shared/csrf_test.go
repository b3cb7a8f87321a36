package shared

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "s1"}
	ctx := context.Background()

	assert.ErrorIs(t, m.VerifyToken(ctx, sess, "x"), ErrCSRFTokenMissing)

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)

	m.Rotate(sess)
	fresh, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{CSRFFormField: {"form"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "form", TokenFromRequest(req))

	req.Header.Set(CSRFHeader, "header")
	assert.Equal(t, "header", TokenFromRequest(req))

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(CSRFFormField, "ignored"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Empty(t, TokenFromRequest(req))
}
