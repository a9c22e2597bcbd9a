package synology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/session"
)

const authAPI = "SYNO.API.Auth"

// Credentials identify the service account used for the shared session.
type Credentials struct {
	Username string
	Password string
	// DeviceName, when set, asks the upstream for a device token so later
	// logins can skip second-factor prompts.
	DeviceName string
}

// Authenticator performs upstream logins. Its Login method is the
// session.LoginFunc handed to session.Manager.
type Authenticator struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	userAgent  string
	logger     *slog.Logger
}

// NewAuthenticator returns an Authenticator for the host at baseURL.
func NewAuthenticator(baseURL string, httpClient *http.Client, creds Credentials, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		userAgent:  defaultUserAgent,
		logger:     logger,
	}
}

type loginData struct {
	SID       string `json:"sid"`
	SynoToken string `json:"synotoken"`
	DID       string `json:"did"`
	DeviceID  string `json:"device_id"`
}

// Login exchanges the account credentials for a session. deviceID, when
// non-empty, is sent so a device-bound token stays valid across relogins.
// Login failures are fatal; the caller decides whether to try again.
func (a *Authenticator) Login(ctx context.Context, deviceID string) (*session.Session, error) {
	switch {
	case a.baseURL == "":
		return nil, apperr.MissingConfig("synology.base_url")
	case a.creds.Username == "":
		return nil, apperr.MissingConfig("synology.username")
	case a.creds.Password == "":
		return nil, apperr.MissingConfig("synology.password")
	}

	form := url.Values{}
	form.Set("api", authAPI)
	form.Set("version", "7")
	form.Set("method", "login")
	form.Set("account", a.creds.Username)
	form.Set("passwd", a.creds.Password)
	form.Set("format", "sid")
	form.Set("enable_syno_token", "yes")

	if a.creds.DeviceName != "" {
		form.Set("enable_device_token", "yes")
		form.Set("device_name", a.creds.DeviceName)
	}

	if deviceID != "" {
		form.Set("device_id", deviceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+authPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("synology: creating login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.userAgent)

	a.logger.Info("logging in to upstream", slog.Bool("device_id", deviceID != ""))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamError{
			API: authAPI, Method: "login",
			Err: fmt.Errorf("%w: %w", apperr.ErrUpstreamFatal, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return nil, &apperr.UpstreamError{
			API: authAPI, Method: "login", Status: resp.StatusCode,
			Err: fmt.Errorf("%w: %w", apperr.ErrUpstreamFatal, err),
		}
	}

	out := parseEnvelope(body, resp.StatusCode)
	if out.class != classNone {
		cause := apperr.ErrUpstreamFatal
		if out.err != nil {
			cause = fmt.Errorf("%w: %w", apperr.ErrUpstreamFatal, out.err)
		}

		return nil, &apperr.UpstreamError{
			API: authAPI, Method: "login", Code: out.code, Status: resp.StatusCode, Err: cause,
		}
	}

	var data loginData
	if err := json.Unmarshal(out.data, &data); err != nil || data.SID == "" {
		return nil, &apperr.UpstreamError{
			API: authAPI, Method: "login", Status: resp.StatusCode,
			Err: fmt.Errorf("%w: login response missing sid", apperr.ErrUpstreamFatal),
		}
	}

	sess := &session.Session{
		SessionID: data.SID,
		CSRFToken: data.SynoToken,
		DeviceID:  firstNonEmpty(data.DID, data.DeviceID, deviceID),
	}

	a.logger.Info("upstream login succeeded",
		slog.Bool("sid", sess.SessionID != ""),
		slog.Bool("synotoken", sess.CSRFToken != ""),
		slog.Bool("device_id", sess.DeviceID != ""),
	)

	return sess, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
