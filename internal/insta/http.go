package insta

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL   = "https://i.instagram.com"
	defaultUserAgent = "Instagram 269.0.0.18.75 Android"
	defaultTimeout   = 30 * time.Second

	// connectionsPageSize matches what official clients request per chunk.
	connectionsPageSize = 100
)

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type apiClient struct {
	cfg  Config
	http *http.Client
	jar  *cookiejar.Jar

	mu          sync.Mutex
	loggedIn    bool
	username    string
	deviceID    string
	twoFactorID string
	pendingUser string
}

// NewClient builds a fresh, logged-out capability object.
func NewClient(cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		cfg:      cfg,
		jar:      jar,
		http:     &http.Client{Timeout: cfg.Timeout, Jar: jar},
		deviceID: newDeviceID(),
	}, nil
}

func newDeviceID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "android-" + hex.EncodeToString(b[:])
}

// apiEnvelope is the common shape of private API responses.
type apiEnvelope struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ErrorType         string `json:"error_type"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	TwoFactorInfo     struct {
		Identifier string `json:"two_factor_identifier"`
	} `json:"two_factor_info"`
}

func (c *apiClient) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"username":  {username},
		"password":  {password},
		"device_id": {c.deviceID},
	}
	var env apiEnvelope
	if err := c.postForm(ctx, "login", "/api/v1/accounts/login/", form, &env); err != nil {
		var tfa *TwoFactorRequiredError
		if errors.As(err, &tfa) {
			c.mu.Lock()
			c.twoFactorID = tfa.Identifier
			c.pendingUser = username
			c.mu.Unlock()
		}
		return err
	}

	c.mu.Lock()
	c.loggedIn = true
	c.username = username
	c.twoFactorID = ""
	c.pendingUser = ""
	c.mu.Unlock()
	return nil
}

func (c *apiClient) CompleteTwoFactor(ctx context.Context, code string) error {
	c.mu.Lock()
	identifier := c.twoFactorID
	username := c.pendingUser
	c.mu.Unlock()
	if identifier == "" {
		return &APIError{Op: "two_factor_login", Message: "no two-factor login pending"}
	}

	form := url.Values{
		"username":              {username},
		"verification_code":     {code},
		"two_factor_identifier": {identifier},
		"device_id":             {c.deviceID},
	}
	var env apiEnvelope
	if err := c.postForm(ctx, "two_factor_login", "/api/v1/accounts/two_factor_login/", form, &env); err != nil {
		return err
	}

	c.mu.Lock()
	c.loggedIn = true
	c.username = username
	c.twoFactorID = ""
	c.pendingUser = ""
	c.mu.Unlock()
	return nil
}

func (c *apiClient) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *apiClient) ResolveUser(ctx context.Context, handle string) (int64, error) {
	var out struct {
		apiEnvelope
		User struct {
			PK int64 `json:"pk"`
		} `json:"user"`
	}
	path := "/api/v1/users/" + url.PathEscape(handle) + "/usernameinfo/"
	if err := c.get(ctx, "resolve_user", path, nil, &out); err != nil {
		return 0, err
	}
	if out.User.PK == 0 {
		return 0, ErrNotFound
	}
	return out.User.PK, nil
}

func (c *apiClient) Connections(ctx context.Context, userID int64, kind ListKind, cursor string) (Page, error) {
	var out struct {
		apiEnvelope
		Users     []User `json:"users"`
		NextMaxID string `json:"next_max_id"`
	}
	q := url.Values{"count": {strconv.Itoa(connectionsPageSize)}}
	if cursor != "" {
		q.Set("max_id", cursor)
	}
	path := fmt.Sprintf("/api/v1/friendships/%d/%s/", userID, kind)
	if err := c.get(ctx, "list_"+string(kind), path, q, &out); err != nil {
		return Page{}, err
	}
	return Page{Users: out.Users, NextCursor: out.NextMaxID}, nil
}

func (c *apiClient) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	form := url.Values{
		"text":            {text},
		"recipient_users": {fmt.Sprintf("[[%d]]", userID)},
		"device_id":       {c.deviceID},
	}
	var env apiEnvelope
	return c.postForm(ctx, "direct_send", "/api/v1/direct_v2/threads/broadcast/text/", form, &env)
}

// ---- session serialization ----

type sessionBlob struct {
	Username string          `json:"username"`
	DeviceID string          `json:"device_id"`
	LoggedIn bool            `json:"logged_in"`
	Cookies  []sessionCookie `json:"cookies"`
}

type sessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path"`
}

func (c *apiClient) ExportSession() ([]byte, error) {
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	blob := sessionBlob{Username: c.username, DeviceID: c.deviceID, LoggedIn: c.loggedIn}
	c.mu.Unlock()
	for _, ck := range c.jar.Cookies(base) {
		blob.Cookies = append(blob.Cookies, sessionCookie{Name: ck.Name, Value: ck.Value, Path: ck.Path})
	}
	return json.Marshal(blob)
}

func (c *apiClient) RestoreSession(data []byte) error {
	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return err
	}
	cookies := make([]*http.Cookie, 0, len(blob.Cookies))
	for _, ck := range blob.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: ck.Path})
	}
	c.jar.SetCookies(base, cookies)

	c.mu.Lock()
	c.username = blob.Username
	if blob.DeviceID != "" {
		c.deviceID = blob.DeviceID
	}
	c.loggedIn = blob.LoggedIn
	c.mu.Unlock()
	return nil
}

// ---- transport ----

func (c *apiClient) get(ctx context.Context, op, path string, q url.Values, out any) error {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *apiClient) postForm(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

func (c *apiClient) do(op string, req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var env apiEnvelope
	_ = json.Unmarshal(body, &env)

	if err := classify(op, resp.StatusCode, env); err != nil {
		// A dead session upstream means everything else will fail too.
		if resp.StatusCode == http.StatusUnauthorized || env.Message == "login_required" {
			c.mu.Lock()
			c.loggedIn = false
			c.mu.Unlock()
		}
		return err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// classify maps an API response onto the package error taxonomy.
func classify(op string, status int, env apiEnvelope) error {
	if env.TwoFactorRequired {
		return &TwoFactorRequiredError{Identifier: env.TwoFactorInfo.Identifier}
	}
	if status == http.StatusTooManyRequests || env.ErrorType == "rate_limit_error" ||
		strings.Contains(env.Message, "wait a few minutes") {
		return ErrRateLimited
	}
	switch env.ErrorType {
	case "bad_password", "sms_code_validation_code_invalid", "invalid_verification_code":
		return ErrBadCredentials
	case "checkpoint_challenge_required":
		return ErrChallengeRequired
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status >= 400 || (env.Status != "" && env.Status != "ok") {
		return &APIError{Op: op, Status: status, Message: env.Message}
	}
	return nil
}
