package forumapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forumly/forumcore/internal/domain/faults"
)

// Client talks to the forum REST backend, which owns users, posts and comments.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
}

type RequestError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

// Credential is the identity attached to a backend call.
type Credential struct {
	ActorID string
	Token   string
}

type credentialContextKeyType struct{}

var credentialContextKey credentialContextKeyType

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewClient builds a backend client. serviceToken is used only when the
// request context carries no caller credential (jobs, CLI).
func NewClient(baseURL string, serviceToken string, timeout time.Duration) (*Client, error) {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		return nil, &RequestError{
			Op:  "create forum api client",
			Err: errors.New("forum api url is empty"),
		}
	}

	parsed, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, &RequestError{
			Op:  "parse forum api url",
			Err: err,
		}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{
			Op:  "validate forum api url",
			Err: fmt.Errorf("invalid forum api url: %s", trimmedBaseURL),
		}
	}

	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(trimmedBaseURL, "/"),
		serviceToken: strings.TrimSpace(serviceToken),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func WithCredential(ctx context.Context, cred Credential) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, credentialContextKey, cred)
}

func CredentialFromContext(ctx context.Context) (Credential, bool) {
	if ctx == nil {
		return Credential{}, false
	}
	cred, ok := ctx.Value(credentialContextKey).(Credential)
	return cred, ok
}

func (c *Client) DoJSON(ctx context.Context, method string, path string, requestBody any, responseBody any) error {
	if c == nil || c.httpClient == nil {
		return &RequestError{
			Op:  "do json request",
			Err: errors.New("forum api client is not initialized"),
		}
	}

	var payload []byte
	if requestBody != nil {
		rawPayload, err := json.Marshal(requestBody)
		if err != nil {
			return &RequestError{
				Op:  "marshal request body",
				Err: err,
			}
		}
		payload = rawPayload
	}

	statusCode, responseBytes, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if responseBody == nil || len(responseBytes) == 0 {
		return nil
	}

	if err := json.Unmarshal(responseBytes, responseBody); err != nil {
		return &RequestError{
			Op:         "decode http response",
			StatusCode: statusCode,
			Err:        err,
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte) (int, []byte, error) {
	if strings.TrimSpace(method) == "" {
		method = http.MethodGet
	}

	fullURL := c.baseURL + ensureLeadingSlash(path)

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return 0, nil, &RequestError{
			Op:  "create http request",
			Err: err,
		}
	}

	token := c.serviceToken
	if cred, ok := CredentialFromContext(ctx); ok {
		if strings.TrimSpace(cred.Token) != "" {
			token = cred.Token
		}
		if actor := strings.TrimSpace(cred.ActorID); actor != "" {
			req.Header.Set("X-Actor-Email", actor)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &RequestError{
			Op:        "execute http request",
			Retryable: isRetryableNetworkError(err),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	responseBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if readErr != nil {
		return resp.StatusCode, nil, &RequestError{
			Op:         "read http response",
			StatusCode: resp.StatusCode,
			Err:        readErr,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := strings.TrimSpace(string(responseBytes))
		if errMessage == "" {
			errMessage = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, responseBytes, &RequestError{
			Op:         method + " " + ensureLeadingSlash(path),
			StatusCode: resp.StatusCode,
			Retryable:  isRetryableStatus(resp.StatusCode),
			Err:        errors.New(errMessage),
		}
	}

	return resp.StatusCode, responseBytes, nil
}

// mapStatus converts backend status codes the flows care about into faults sentinels.
func mapStatus(err error, notFound error) error {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return err
	}
	switch reqErr.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", faults.ErrForbidden, err)
	case http.StatusNotFound:
		if notFound != nil {
			return fmt.Errorf("%w: %w", notFound, err)
		}
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", faults.ErrConflict, err)
	}
	return err
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

func ensureLeadingSlash(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}

func pathEscape(value string) string {
	return url.PathEscape(strings.TrimSpace(value))
}
