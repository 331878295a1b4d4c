// Package push delivers notifications through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/oauth2"
	"github.com/milow-app/milow-functions/secret"
)

// DefaultBaseURL is the FCM API root.
const DefaultBaseURL = "https://fcm.googleapis.com/"

const maxErrorBody = 4 << 10

// SendError reports a non-2xx response from FCM for one device.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("push: fcm returned %d: %s", e.StatusCode, e.Body)
}

// FCM implements milow.Messenger using the FCM v1 API.
type FCM struct {
	baseURL    string
	projectID  string
	tokens     milow.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures FCM.
type Option func(*FCM)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(f *FCM) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		f.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client whose transport carries the calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *FCM) { f.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *FCM) { f.logger = l }
}

// NewFCM creates a messenger for projectID. tokens must request the
// firebase.messaging scope.
func NewFCM(projectID string, tokens milow.TokenSource, opts ...Option) *FCM {
	f := &FCM{
		baseURL:    DefaultBaseURL,
		projectID:  projectID,
		tokens:     tokens,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Send implements milow.Messenger.
func (f *FCM) Send(ctx context.Context, deviceToken string, msg milow.PushMessage) error {
	tok, err := f.tokens.Token(ctx)
	if err != nil {
		return err
	}

	svc, err := fcm.NewService(ctx,
		option.WithHTTPClient(oauth2.NewHTTPClient(f.httpClient, tok)),
		option.WithEndpoint(f.baseURL),
	)
	if err != nil {
		return fmt.Errorf("push: failed to create service: %w", err)
	}

	_, err = svc.Projects.Messages.Send("projects/"+f.projectID, &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token:        deviceToken,
			Notification: &fcm.Notification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		},
	}).Context(ctx).Do()
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		f.logger.DebugContext(ctx, "fcm rejected message", "status", apiErr.Code, "body", body)
		return &SendError{StatusCode: apiErr.Code, Body: body}
	}
	return &milow.TransportError{Endpoint: f.baseURL, Err: err}
}

// Connector produces a Messenger for one broadcast.
type Connector func(ctx context.Context) (milow.Messenger, error)

// Static returns a Connector that always yields m.
func Static(m milow.Messenger) Connector {
	return func(context.Context) (milow.Messenger, error) { return m, nil }
}

// ServiceAccountConnector returns a Connector that reloads the Firebase
// service account stored under key on every call, obtains one access token
// for the whole broadcast and returns an FCM messenger for its project.
// Credential, signing and token exchange failures are returned before
// anything is sent.
func ServiceAccountConnector(p milow.ConfigProvider, key string, e *oauth2.Exchanger, opts ...Option) Connector {
	return func(ctx context.Context) (milow.Messenger, error) {
		creds, err := secret.Load(p, key)
		if err != nil {
			return nil, err
		}
		if creds.ProjectID == "" {
			return nil, &milow.ConfigurationError{Key: key, Reason: "missing project_id"}
		}
		tokens := oauth2.NewCachedSource(oauth2.NewServiceAccountSource(p, key, oauth2.ScopeFirebaseMessaging, e))
		if _, err := tokens.Token(ctx); err != nil {
			return nil, err
		}
		return NewFCM(creds.ProjectID, tokens, opts...), nil
	}
}

var _ milow.Messenger = (*FCM)(nil)
