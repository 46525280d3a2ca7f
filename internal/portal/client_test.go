package portal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

type fakePortal struct {
	mu           sync.Mutex
	setCookie    string
	loginStatus  int
	indexBody    string
	statusBody   string
	loginCalls   atomic.Int32
	indexCalls   atomic.Int32
	statusCalls  atomic.Int32
	lastLoginRaw string
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		setCookie:   "JSESSIONID=abc123; Path=/",
		loginStatus: http.StatusOK,
		indexBody:   "<script>var k3n = 'tok-9f2e';</script>",
		statusBody: statusPage([5][2]string{
			{"1024 ", "LanguageGB"},
			{"10", "LanguageMB"},
			{"20", "LanguageMB"},
			{"24", "LanguageGB"},
			{"1000", "LanguageGB"},
		}),
	}
}

func (f *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case controllerPath:
		f.loginCalls.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		f.lastLoginRaw = string(raw)
		if f.setCookie != "" {
			w.Header().Set("Set-Cookie", f.setCookie)
		}
		w.WriteHeader(f.loginStatus)
	case accountIndexPath:
		f.indexCalls.Add(1)
		if r.Header.Get("Cookie") != "JSESSIONID=abc123" {
			_, _ = io.WriteString(w, "<html>login</html>")
			return
		}
		_, _ = io.WriteString(w, f.indexBody)
	case accountStatusPath:
		f.statusCalls.Add(1)
		if r.Header.Get("X-CSRF-Token") != "tok-9f2e" || r.Header.Get("Cookie") != "JSESSIONID=abc123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if !strings.HasSuffix(r.Header.Get("Referer"), refererPath) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		if q.Get("popup") != "0" || q.Get("t") != "1767225600000" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, f.statusBody)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fp *fakePortal) *Client {
	t.Helper()
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		Now: func() time.Time {
			return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		},
	})
}

func TestFetchQuotaEndToEnd(t *testing.T) {
	fp := newFakePortal()
	c := newTestClient(t, fp)

	quota, err := c.FetchQuota(context.Background(), Credentials{Username: "f20200001", Password: "p@ss word&1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quota.Traffic.Total != 1024 || quota.Traffic.Remaining != 1000 {
		t.Fatalf("unexpected traffic: %+v", quota.Traffic)
	}
	if quota.Units.Total != "GB" || quota.Units.Last != "MB" {
		t.Fatalf("unexpected units: %+v", quota.Units)
	}
	if !quota.FetchedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected fetched_at: %v", quota.FetchedAt)
	}

	fp.mu.Lock()
	raw := fp.lastLoginRaw
	fp.mu.Unlock()
	if !strings.HasPrefix(raw, "mode=451&json=") {
		t.Fatalf("expected mode field first, got %q", raw)
	}
	form, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse login form: %v", err)
	}
	blob := form.Get("json")
	if gjson.Get(blob, "username").String() != "f20200001" ||
		gjson.Get(blob, "password").String() != "p@ss word&1" ||
		gjson.Get(blob, "languageid").Int() != 1 ||
		gjson.Get(blob, "browser").String() != "Chrome_106" {
		t.Fatalf("unexpected login json: %s", blob)
	}
}

func TestFetchQuotaWithoutCookieIsInvalidCredentials(t *testing.T) {
	fp := newFakePortal()
	fp.setCookie = ""
	c := newTestClient(t, fp)

	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u", Password: "p"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if fp.indexCalls.Load() != 0 || fp.statusCalls.Load() != 0 {
		t.Fatalf("expected no further steps after failed login")
	}
}

func TestFetchQuotaRejectedStatusIsInvalidCredentials(t *testing.T) {
	fp := newFakePortal()
	fp.loginStatus = http.StatusUnauthorized
	c := newTestClient(t, fp)

	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u", Password: "p"})
	if KindOf(err) != KindInvalidCredentials {
		t.Fatalf("expected invalid credentials kind, got %v", err)
	}
}

func TestFetchQuotaMissingTokenIsParseError(t *testing.T) {
	fp := newFakePortal()
	fp.indexBody = "<html>no token here</html>"
	c := newTestClient(t, fp)

	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u", Password: "p"})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if fp.statusCalls.Load() != 0 {
		t.Fatalf("expected status page not to be requested")
	}
}

func TestFetchQuotaChangedMarkupIsParseError(t *testing.T) {
	fp := newFakePortal()
	fp.statusBody = "<html><body><div id=\"content9\"></div></body></html>"
	c := newTestClient(t, fp)

	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u", Password: "p"})
	if KindOf(err) != KindParse {
		t.Fatalf("expected parse kind, got %v", err)
	}
}

func TestFetchQuotaIncompleteCredentialsMakesNoRequest(t *testing.T) {
	fp := newFakePortal()
	c := newTestClient(t, fp)

	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if fp.loginCalls.Load() != 0 {
		t.Fatalf("expected no network call for incomplete credentials")
	}
}

func TestFetchQuotaUnreachablePortalIsNotOnNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(Options{BaseURL: base, RequestTimeout: time.Second})
	_, err := c.FetchQuota(context.Background(), Credentials{Username: "u", Password: "p"})
	if !errors.Is(err, ErrNotOnNetwork) {
		t.Fatalf("expected not-on-network, got %v", err)
	}
}

func TestVerifyUsesLoginOnly(t *testing.T) {
	fp := newFakePortal()
	c := newTestClient(t, fp)

	if err := c.Verify(context.Background(), Credentials{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.loginCalls.Load() != 1 || fp.indexCalls.Load() != 0 {
		t.Fatalf("expected a single login call, got login=%d index=%d", fp.loginCalls.Load(), fp.indexCalls.Load())
	}

	fp.mu.Lock()
	fp.setCookie = ""
	fp.mu.Unlock()
	if err := c.Verify(context.Background(), Credentials{Username: "u", Password: "p"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials without cookie, got %v", err)
	}
}

func TestLoginDoesNotFollowRedirects(t *testing.T) {
	fp := newFakePortal()
	fp.loginStatus = http.StatusFound
	c := newTestClient(t, fp)

	if err := c.Verify(context.Background(), Credentials{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("expected redirecting login with cookie to succeed, got %v", err)
	}
}
