// Package webhook handles database change events delivered by the backend:
// app release announcements and load status changes.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/audit"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/milow-app/milow-functions/push"
)

// Event types sent by database webhooks.
const (
	TypeInsert = "INSERT"
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
)

// Payload is the body of a database webhook.
type Payload struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Schema    string         `json:"schema"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// field returns the string form of a record column, or "" when absent.
func field(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Backend is the subset of the backend client used by Releases.
type Backend interface {
	ListFCMTokens(ctx context.Context) ([]string, error)
	InsertAnnouncement(ctx context.Context, a milow.Announcement) error
}

const (
	releaseTable     = "app_version"
	defaultChangelog = "Check out the new features!"
)

// ReleaseResult is the outcome of a release notification.
type ReleaseResult struct {
	Message   string `json:"message"`
	Delivered int    `json:"delivered,omitempty"`
	Failed    int    `json:"failed,omitempty"`
}

// Releases announces new app versions: it stores an in-app announcement and
// pushes a notification to every registered device.
type Releases struct {
	backend        Backend
	connect        push.Connector
	maxConcurrency int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	audit          *audit.Logger
}

// Option configures Releases.
type Option func(*Releases)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Releases) { r.logger = l }
}

// WithMetrics records push delivery outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Releases) { r.metrics = m }
}

// WithAudit records release broadcasts as audit events.
func WithAudit(a *audit.Logger) Option {
	return func(r *Releases) { r.audit = a }
}

// WithMaxConcurrency bounds concurrent sends. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(r *Releases) { r.maxConcurrency = n }
}

// NewReleases creates a release notifier. connect is only called when there
// is at least one device to notify.
func NewReleases(backend Backend, connect push.Connector, opts ...Option) *Releases {
	r := &Releases{
		backend: backend,
		connect: connect,
		logger:  slog.Default(),
		metrics: metrics.New(false),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handle processes an app_version INSERT. Other events are acknowledged
// without side effects.
func (r *Releases) Handle(ctx context.Context, p Payload) (res *ReleaseResult, err error) {
	if p.Type != TypeInsert || p.Table != releaseTable {
		return &ReleaseResult{Message: "Not an app_version INSERT event"}, nil
	}

	version := field(p.Record, "latest_version")
	platform := field(p.Record, "platform")
	changelog := field(p.Record, "changelog")
	if changelog == "" {
		changelog = defaultChangelog
	}
	if r.audit != nil {
		defer func() { r.audit.LogAdmin(ctx, audit.ActionNotifyRelease, "webhook", version, false, err) }()
	}

	tokens, err := r.backend.ListFCMTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("webhook: list push tokens: %w", err)
	}
	r.logger.InfoContext(ctx, "release announced", "version", version, "platform", platform, "devices", len(tokens))

	err = r.backend.InsertAnnouncement(ctx, milow.Announcement{
		Title:    "New Update: v" + version,
		Body:     changelog,
		Version:  version,
		IsActive: true,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "saving announcement failed", "version", version, "error", err)
	}

	if len(tokens) == 0 {
		return &ReleaseResult{Message: "Saved announcement, no devices to notify"}, nil
	}

	m, err := r.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("webhook: connect messenger: %w", err)
	}

	msg := milow.PushMessage{
		Title: "New Update Available: v" + version,
		Body:  platformName(platform) + " update available. \n" + changelog,
		Data: map[string]string{
			"click_action": "FLUTTER_NOTIFICATION_CLICK",
			"type":         "app_update",
			"version":      version,
			"url":          field(p.Record, "download_url"),
		},
	}
	deliveries := push.Broadcast(ctx, m, tokens, msg, push.BroadcastOptions{
		MaxConcurrency: r.maxConcurrency,
		Logger:         r.logger,
		Metrics:        r.metrics,
	})
	delivered, failed := push.Count(deliveries)
	return &ReleaseResult{
		Message:   fmt.Sprintf("Sent notifications to %d devices", len(tokens)),
		Delivered: delivered,
		Failed:    failed,
	}, nil
}

func platformName(p string) string {
	if strings.EqualFold(p, "android") {
		return "Android"
	}
	return "iOS"
}
