package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "campusattend"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	tok, err := Issue("lecturer-7", RoleStaff, testIssuer, testKey, time.Hour, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), tok.ExpiresAt, time.Second)

	claims, err := Parse(tok.Token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "lecturer-7", claims.Subject)
	assert.Equal(t, RoleStaff, claims.Role)
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	good, err := Issue("s", RoleStaff, testIssuer, testKey, time.Hour, now)
	require.NoError(t, err)
	expired, err := Issue("s", RoleStaff, testIssuer, testKey, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)

	_, err = Parse(good.Token, "other-key", testIssuer)
	assert.Error(t, err, "wrong key")
	_, err = Parse(good.Token, testKey, "someone-else")
	assert.Error(t, err, "wrong issuer")
	_, err = Parse(expired.Token, testKey, testIssuer)
	assert.Error(t, err, "expired")
	_, err = Parse("not.a.jwt", testKey, testIssuer)
	assert.Error(t, err)
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := Issue("", RoleStaff, testIssuer, testKey, time.Hour, time.Now())
	assert.Error(t, err)
}

func TestAPIKeyMatches(t *testing.T) {
	assert.True(t, APIKeyMatches("k1", "k1"))
	assert.False(t, APIKeyMatches("k1", "k2"))
	assert.False(t, APIKeyMatches("k1", ""))
	assert.False(t, APIKeyMatches("", ""), "an unset key never matches")
}

func TestStaffAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/staff", StaffAuth(testKey, testIssuer), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(Claims)
		c.String(http.StatusOK, claims.Subject)
	})

	staff, err := Issue("lecturer-7", RoleStaff, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)
	student, err := Issue("21BCS001", "student", testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + student.Token, http.StatusForbidden},
		{"staff", "Bearer " + staff.Token, http.StatusOK},
		{"lowercase scheme", "bearer " + staff.Token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/staff", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "lecturer-7", w.Body.String())
			}
		})
	}
}
