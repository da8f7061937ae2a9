package session

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"user-123", "user-123"},
		{"user_ABC", "user_ABC"},
		{"a/b\\c:d", "a-b-c-d"},
		{"../../etc", "------etc"},
		{"  spaced out  ", "spaced-out"},
		{"", AnonymousID},
		{"...", AnonymousID},
		{strings.Repeat("x", 200), strings.Repeat("x", 64)},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOutputDir(t *testing.T) {
	got := OutputDir("renders", "sess/../../x")
	if got != filepath.Join("renders", "sess-------x") {
		t.Fatalf("unexpected output dir: %s", got)
	}
}

func TestConfineAccepts(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "sess", "export_a.mp4")

	abs, err := Confine(base, path)
	if err != nil {
		t.Fatalf("Confine returned error: %v", err)
	}
	if !strings.HasPrefix(abs, base) {
		t.Fatalf("unexpected resolved path: %s", abs)
	}
}

func TestConfineRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	cases := []string{
		filepath.Join(base, "..", "outside.mp4"),
		filepath.Join(base, "sess", "..", "..", "outside.mp4"),
		"/etc/passwd",
	}
	for _, path := range cases {
		if _, err := Confine(base, path); err == nil {
			t.Fatalf("expected rejection for %s", path)
		}
	}
}

func TestConfineAcceptsBaseItself(t *testing.T) {
	base := t.TempDir()
	if _, err := Confine(base, base); err != nil {
		t.Fatalf("Confine rejected base dir: %v", err)
	}
}

func TestFromContextHeaderWins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions(CookieName, store))
	router.Use(Middleware())

	var got string
	router.GET("/", func(c *gin.Context) {
		got = FromContext(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderName, "cli/client:1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got != "cli-client-1" {
		t.Fatalf("session id = %q, want %q", got, "cli-client-1")
	}
}

func TestMiddlewareAssignsID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions(CookieName, store))
	router.Use(Middleware())

	var got string
	router.GET("/", func(c *gin.Context) {
		got = FromContext(c)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got == "" || got == AnonymousID {
		t.Fatalf("expected generated session id, got %q", got)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected session cookie to be set")
	}
}
