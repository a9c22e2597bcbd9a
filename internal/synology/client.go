// Package synology talks to the Synology Photos web API on behalf of many
// concurrent callers sharing one upstream session. Every call goes through
// an explicit retry state machine that absorbs transient failures and
// session rejections within a bounded budget.
package synology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/session"
)

const (
	webAPIPath       = "/photo/webapi"
	entryPath        = webAPIPath + "/entry.cgi"
	authPath         = webAPIPath + "/auth.cgi"
	defaultUserAgent = "synophoto/0.1"

	// maxEnvelopeBytes bounds how much of a JSON envelope is read.
	maxEnvelopeBytes = 32 << 20
)

// RetryPolicy bounds how hard a single call tries.
type RetryPolicy struct {
	NetworkRetries int
	ReloginRetries int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 3 network retries with 150ms..1500ms backoff
// and a single relogin.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		NetworkRetries: 3,
		ReloginRetries: 1,
		BaseBackoff:    150 * time.Millisecond,
		MaxBackoff:     1500 * time.Millisecond,
	}
}

// Backoff returns the wait before network retry n (1-based):
// min(MaxBackoff, BaseBackoff * 2^(n-1)).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	d := float64(p.BaseBackoff) * math.Pow(2, float64(n-1))
	if d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}

	return time.Duration(d)
}

// SessionSource hands out upstream sessions. session.Manager implements it.
type SessionSource interface {
	Version(ctx context.Context) (int64, error)
	GetOrCreate(ctx context.Context) (*session.Session, error)
	ForceRelogin(ctx context.Context, observedVersion int64) (*session.Session, error)
}

// APIRequest names one upstream API invocation.
type APIRequest struct {
	API     string
	Version int
	Method  string

	// HTTPMethod defaults to GET. POST sends Params as a form body.
	HTTPMethod string
	Params     map[string]any
	// Header is forwarded as-is, for example Range on downloads.
	Header http.Header

	// NetworkRetries and ReloginRetries override the client policy when
	// positive. A negative value disables that kind of retry.
	NetworkRetries int
	ReloginRetries int
}

func (r APIRequest) name() string {
	return r.API + "." + r.Method
}

// Client executes upstream API calls with session handling and retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   SessionSource
	logger     *slog.Logger
	userAgent  string
	retry      RetryPolicy

	// sleepFunc waits between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client for the Synology host at baseURL, for example
// "https://nas.example.com". An empty baseURL makes every call fail with a
// configuration error.
func NewClient(baseURL string, httpClient *http.Client, sessions SessionSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		sessions:   sessions,
		logger:     logger,
		userAgent:  defaultUserAgent,
		retry:      DefaultRetryPolicy(),
		sleepFunc:  timeSleep,
	}
}

// WithRetryPolicy replaces the default retry policy and returns c.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// WithUserAgent sets the User-Agent header and returns c.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}

	return c
}

// CallJSON performs req and returns the envelope's data payload.
func (c *Client) CallJSON(ctx context.Context, req APIRequest) (json.RawMessage, error) {
	out, err := c.run(ctx, req, c.exchangeJSON)
	if err != nil {
		return nil, err
	}

	return out.data, nil
}

// CallRaw performs req and returns the upstream response for streaming. The
// caller closes the body. A JSON envelope on a binary endpoint is classified
// like CallJSON; a successful envelope comes back as a fresh JSON response.
// Non-2xx binary responses are returned untouched except 401/403.
func (c *Client) CallRaw(ctx context.Context, req APIRequest) (*http.Response, error) {
	out, err := c.run(ctx, req, c.exchangeRaw)
	if err != nil {
		return nil, err
	}

	return out.resp, nil
}

// callState enumerates the retry state machine.
type callState int

const (
	stateAttempt callState = iota
	stateClassify
	stateRetrySameSession
	stateReloginAndRetry
	stateFail
	stateDone
)

// outcome is the result of one exchange with the upstream.
type outcome struct {
	class  codeClass
	code   int
	status int
	err    error
	data   json.RawMessage
	resp   *http.Response
}

type exchangeFunc func(ctx context.Context, req APIRequest, sess *session.Session) outcome

func (c *Client) run(ctx context.Context, req APIRequest, exchange exchangeFunc) (outcome, error) {
	if c.baseURL == "" {
		return outcome{}, apperr.MissingConfig("synology.base_url")
	}

	networkBudget := budget(req.NetworkRetries, c.retry.NetworkRetries)
	reloginBudget := budget(req.ReloginRetries, c.retry.ReloginRetries)

	version, err := c.sessions.Version(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("synology: reading session version: %w", err)
	}

	sess, err := c.sessions.GetOrCreate(ctx)
	if err != nil {
		return outcome{}, err
	}

	// A session minted after the snapshot carries the newer version.
	version = max(version, sess.Version)

	var (
		out             outcome
		networkAttempts int
		relogins        int
		state           = stateAttempt
	)

	for {
		switch state {
		case stateAttempt:
			out = exchange(ctx, req, sess)
			state = stateClassify

		case stateClassify:
			state = nextState(out.class, networkAttempts < networkBudget, relogins < reloginBudget)

			if state == stateFail && out.class != classCanceled {
				c.logger.Warn("upstream call failed",
					slog.String("api", req.name()),
					slog.String("class", out.class.String()),
					slog.Int("code", out.code),
					slog.Int("status", out.status),
					slog.Int("network_retries", networkAttempts),
					slog.Int("relogins", relogins),
				)
			}

		case stateRetrySameSession:
			networkAttempts++
			backoff := c.retry.Backoff(networkAttempts)

			c.logger.Warn("retrying after transient upstream error",
				slog.String("api", req.name()),
				slog.Int("code", out.code),
				slog.Int("attempt", networkAttempts),
				slog.Int("max_retries", networkBudget),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return outcome{}, fmt.Errorf("synology: %s canceled: %w", req.name(), err)
			}

			state = stateAttempt

		case stateReloginAndRetry:
			relogins++

			c.logger.Info("upstream rejected session, relogging",
				slog.String("api", req.name()),
				slog.Int("code", out.code),
				slog.Int("status", out.status),
				slog.Int64("observed_version", version),
			)

			sess, err = c.sessions.ForceRelogin(ctx, version)
			if err != nil {
				return outcome{}, err
			}

			if version, err = c.sessions.Version(ctx); err != nil {
				return outcome{}, fmt.Errorf("synology: reading session version: %w", err)
			}

			version = max(version, sess.Version)

			state = stateAttempt

		case stateFail:
			return outcome{}, c.failure(req, out)

		case stateDone:
			c.logger.Debug("upstream call succeeded",
				slog.String("api", req.name()),
				slog.Int("status", out.status),
				slog.Int("network_retries", networkAttempts),
				slog.Int("relogins", relogins),
			)

			return out, nil
		}
	}
}

// nextState is the transition out of stateClassify.
func nextState(class codeClass, networkLeft, reloginLeft bool) callState {
	switch class {
	case classNone:
		return stateDone
	case classTransient:
		if networkLeft {
			return stateRetrySameSession
		}
	case classSession:
		if reloginLeft {
			return stateReloginAndRetry
		}
	}

	return stateFail
}

// budget resolves a per-request override against the client default.
func budget(override, fallback int) int {
	switch {
	case override < 0:
		return 0
	case override > 0:
		return override
	default:
		return fallback
	}
}

func (c *Client) failure(req APIRequest, out outcome) error {
	if out.class == classCanceled {
		return fmt.Errorf("synology: %s canceled: %w", req.name(), out.err)
	}

	cause := apperr.ErrUpstreamFatal
	if out.err != nil {
		cause = fmt.Errorf("%w: %w", apperr.ErrUpstreamFatal, out.err)
	}

	return &apperr.UpstreamError{
		API:    req.API,
		Method: req.Method,
		Code:   out.code,
		Status: out.status,
		Err:    cause,
	}
}

func (c *Client) exchangeJSON(ctx context.Context, req APIRequest, sess *session.Session) outcome {
	resp, err := c.send(ctx, req, sess)
	if err != nil {
		return transportOutcome(ctx, err)
	}
	defer resp.Body.Close()

	if isSessionStatus(resp.StatusCode) {
		return outcome{class: classSession, status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return transportOutcome(ctx, err)
	}

	return parseEnvelope(body, resp.StatusCode)
}

func (c *Client) exchangeRaw(ctx context.Context, req APIRequest, sess *session.Session) outcome {
	resp, err := c.send(ctx, req, sess)
	if err != nil {
		return transportOutcome(ctx, err)
	}

	if isSessionStatus(resp.StatusCode) {
		resp.Body.Close()
		return outcome{class: classSession, status: resp.StatusCode}
	}

	if !isJSONContent(resp.Header.Get("Content-Type")) {
		return outcome{class: classNone, status: resp.StatusCode, resp: resp}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	resp.Body.Close()

	if err != nil {
		return transportOutcome(ctx, err)
	}

	out := parseEnvelope(body, resp.StatusCode)
	if out.class == classNone {
		out.resp = &http.Response{
			Status:        resp.Status,
			StatusCode:    resp.StatusCode,
			Proto:         resp.Proto,
			ProtoMajor:    resp.ProtoMajor,
			ProtoMinor:    resp.ProtoMinor,
			Header:        http.Header{"Content-Type": {"application/json"}},
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Request:       resp.Request,
		}
	}

	return out
}

// envelope is the upstream response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code int `json:"code"`
	} `json:"error,omitempty"`
}

func parseEnvelope(body []byte, status int) outcome {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return outcome{class: classFatal, status: status, err: fmt.Errorf("invalid response envelope: %w", err)}
	}

	if env.Success {
		return outcome{class: classNone, status: status, data: env.Data}
	}

	if env.Error == nil {
		return outcome{class: classFatal, status: status, err: fmt.Errorf("failure envelope without error code")}
	}

	return outcome{class: classifyCode(env.Error.Code), code: env.Error.Code, status: status}
}

// transportOutcome classifies a failure below the envelope. Network errors
// are retried like transient upstream codes unless the caller gave up.
func transportOutcome(ctx context.Context, err error) outcome {
	if ctx.Err() != nil {
		return outcome{class: classCanceled, err: ctx.Err()}
	}

	return outcome{class: classTransient, err: err}
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}

	return mediaType == "application/json"
}

// send builds and executes one upstream request carrying sess.
func (c *Client) send(ctx context.Context, req APIRequest, sess *session.Session) (*http.Response, error) {
	params := encodeParams(req.Params)

	query := url.Values{}
	method := req.HTTPMethod

	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if method == http.MethodGet {
		for k, v := range params {
			query[k] = v
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	query.Set("api", req.API)
	query.Set("version", strconv.Itoa(req.Version))
	query.Set("method", req.Method)
	query.Set("_sid", sess.SessionID)

	if sess.CSRFToken != "" {
		query.Set("SynoToken", sess.CSRFToken)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+entryPath+"?"+query.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	applySessionHeaders(httpReq.Header, sess)

	return c.httpClient.Do(httpReq)
}

// applySessionHeaders injects the CSRF header and session cookies, keeping
// any cookie the caller already set.
func applySessionHeaders(h http.Header, sess *session.Session) {
	if sess.CSRFToken != "" {
		h.Set("X-SYNO-TOKEN", sess.CSRFToken)
	}

	var parts []string
	if existing := h.Get("Cookie"); existing != "" {
		parts = append(parts, existing)
	}

	parts = append(parts, "id="+sess.SessionID)

	if sess.CSRFToken != "" {
		parts = append(parts, "synotoken="+sess.CSRFToken)
	}

	if sess.DeviceID != "" {
		parts = append(parts, "did="+sess.DeviceID)
	}

	h.Set("Cookie", strings.Join(parts, "; "))
}

// encodeParams renders parameter values the way the upstream expects:
// strings as-is, numbers and booleans in their literal form, anything else
// as JSON.
func encodeParams(params map[string]any) url.Values {
	out := make(url.Values, len(params))

	for k, v := range params {
		out.Set(k, encodeParam(v))
	}

	return out
}

func encodeParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}

		return string(b)
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
