package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		max      int64
		wantOK   bool
		wantCode int
		wantErr  string
	}{
		{name: "valid", body: `{"password":"abc"}`, max: 1024, wantOK: true},
		{name: "unknown field", body: `{"pw":"abc"}`, max: 1024, wantCode: http.StatusBadRequest, wantErr: codeInvalidJSON},
		{name: "trailing data", body: `{"password":"a"}{}`, max: 1024, wantCode: http.StatusBadRequest, wantErr: codeInvalidJSON},
		{name: "empty", body: "", max: 1024, wantCode: http.StatusBadRequest, wantErr: codeInvalidJSON},
		{name: "too large", body: `{"password":"` + strings.Repeat("x", 64) + `"}`, max: 16, wantCode: http.StatusRequestEntityTooLarge, wantErr: codeBodyTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/password/score", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			var dst scoreRequest
			ok := readBody(rec, req, tc.max, &dst)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, "abc", dst.Password)
				return
			}
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantErr, decode[errorResponse](t, rec).Error.Code)
		})
	}
}
