package portal

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

const (
	DefaultBaseURL        = "https://campnet.bits-goa.ac.in:8093"
	DefaultRequestTimeout = 5 * time.Second

	controllerPath    = "/userportal/Controller"
	accountIndexPath  = "/userportal/webpages/myaccount/index.jsp"
	accountStatusPath = "/userportal/webpages/myaccount/AccountStatus.jsp"
	refererPath       = "/userportal/webpages/myaccount/login.jsp"

	loginMode       = "451"
	loginLanguageID = 1
	loginBrowser    = "Chrome_106"

	maxBodyBytes = 2_000_000
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	InsecureTLS    bool
	HTTPClient     *http.Client
	Logger         *log.Entry
	Now            func() time.Time
}

// Client talks to the user portal. It keeps no session between calls.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *log.Entry
	now        func() time.Time
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.InsecureTLS)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "portal")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:    base,
		timeout:    timeout,
		httpClient: httpClient,
		log:        logger,
		now:        now,
	}
}

// newHTTPClient returns a client that never follows redirects: the login
// response's own Set-Cookie header is the session.
func newHTTPClient(insecureTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed portals
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *Client) Name() string {
	return "userportal"
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchQuota logs in, reads the CSRF token and scrapes the account-status
// page. The three requests are strictly sequential.
func (c *Client) FetchQuota(ctx context.Context, creds Credentials) (*Quota, error) {
	if !creds.Complete() {
		return nil, newError(KindInvalidCredentials, "login", fmt.Errorf("username and password are required"))
	}

	cookie, err := c.login(ctx, creds)
	if err != nil {
		return nil, err
	}
	sess := session{cookie: cookie}

	sess.csrf, err = c.csrfToken(ctx, sess.cookie)
	if err != nil {
		return nil, err
	}

	traffic, units, err := c.accountStatus(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &Quota{
		Traffic:   traffic,
		Units:     units,
		FetchedAt: c.now().UTC(),
	}, nil
}

// Verify performs only the login step. A login succeeds when the portal
// answers with a non-error status and sets a session cookie; FetchQuota uses
// the same criterion.
func (c *Client) Verify(ctx context.Context, creds Credentials) error {
	if !creds.Complete() {
		return newError(KindInvalidCredentials, "login", fmt.Errorf("username and password are required"))
	}
	_, err := c.login(ctx, creds)
	return err
}

func (c *Client) login(ctx context.Context, creds Credentials) (string, error) {
	body, err := loginForm(creds)
	if err != nil {
		return "", newError(KindUnknown, "login", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+controllerPath, strings.NewReader(body))
	if err != nil {
		return "", newError(KindUnknown, "login", fmt.Errorf("build login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport("login", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyBytes))

	if res.StatusCode >= http.StatusBadRequest {
		return "", newError(KindInvalidCredentials, "login", fmt.Errorf("portal returned HTTP %d", res.StatusCode))
	}
	cookie := ExtractSessionCookie(res.Header)
	if cookie == "" {
		return "", newError(KindInvalidCredentials, "login", fmt.Errorf("portal set no session cookie"))
	}
	c.log.Debugf("portal login ok (status=%d)", res.StatusCode)
	return cookie, nil
}

func (c *Client) csrfToken(ctx context.Context, cookie string) (string, error) {
	headers := http.Header{}
	headers.Set("Cookie", cookie)
	body, err := c.get(ctx, "account page", c.baseURL+accountIndexPath, headers)
	if err != nil {
		return "", err
	}
	token, err := ExtractCSRFToken(string(body))
	if err != nil {
		return "", newError(KindParse, "account page", err)
	}
	return token, nil
}

func (c *Client) accountStatus(ctx context.Context, sess session) (Traffic, TrafficUnits, error) {
	q := url.Values{}
	q.Set("popup", "0")
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))

	headers := http.Header{}
	headers.Set("Cookie", sess.cookie)
	headers.Set("X-CSRF-Token", sess.csrf)
	headers.Set("Referer", c.baseURL+refererPath)

	body, err := c.get(ctx, "account status", c.baseURL+accountStatusPath+"?"+q.Encode(), headers)
	if err != nil {
		return Traffic{}, TrafficUnits{}, err
	}
	traffic, units, err := ParseAccountStatus(bytes.NewReader(body))
	if err != nil {
		return Traffic{}, TrafficUnits{}, newError(KindParse, "account status", err)
	}
	return traffic, units, nil
}

func (c *Client) get(ctx context.Context, op, target string, headers http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newError(KindUnknown, op, fmt.Errorf("build request: %w", err))
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(op, fmt.Errorf("read response: %w", err))
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, newError(KindUnknown, op, fmt.Errorf("portal returned HTTP %d: %s", res.StatusCode, summarizeBody(body)))
	}
	return body, nil
}

// loginForm builds the Controller payload. Field order follows the portal's
// own login page.
func loginForm(creds Credentials) (string, error) {
	blob, err := sjson.Set("", "username", creds.Username)
	if err != nil {
		return "", fmt.Errorf("encode login json: %w", err)
	}
	if blob, err = sjson.Set(blob, "password", creds.Password); err != nil {
		return "", fmt.Errorf("encode login json: %w", err)
	}
	if blob, err = sjson.Set(blob, "languageid", loginLanguageID); err != nil {
		return "", fmt.Errorf("encode login json: %w", err)
	}
	if blob, err = sjson.Set(blob, "browser", loginBrowser); err != nil {
		return "", fmt.Errorf("encode login json: %w", err)
	}
	return "mode=" + loginMode + "&json=" + url.QueryEscape(blob), nil
}

func summarizeBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
