package service

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAccountCreated, n.handleAccountCreated)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventAccountDeleted, n.handleAccountDeleted)
}

func (n *NotificationService) handleAccountCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("AccountCreated", zap.String("account_id", event.AccountID))
	if payload, ok := event.Payload.(events.AccountCreatedPayload); ok {
		n.sendEmailStub(ctx, event, payload.Email, "welcome", "")
	}
	return nil
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	n.logger.Info("PasswordResetRequested", zap.String("account_id", event.AccountID))
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return nil
	}
	n.sendEmailStub(ctx, event, payload.Email, "password_reset", n.ResetLink(payload.Token))
	return nil
}

func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("PasswordChanged", zap.String("account_id", event.AccountID))
	if payload, ok := event.Payload.(events.PasswordChangedPayload); ok {
		n.sendEmailStub(ctx, event, payload.Email, "password_changed", "")
	}
	return nil
}

func (n *NotificationService) handleAccountDeleted(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("account_id", event.AccountID)}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *event.ActorID))
	}
	n.logger.Info("AccountDeleted", fields...)
	return nil
}

// ResetLink builds the link mailed for a reset token. Without a configured
// base URL the bare token is returned.
func (n *NotificationService) ResetLink(token string) string {
	base := strings.TrimSpace(n.cfg.ResetURLBase)
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return token
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (n *NotificationService) sendEmailStub(_ context.Context, event events.Event, to, template, link string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || to == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("account_id", event.AccountID),
		zap.String("template", template),
		zap.Bool("has_link", link != ""),
		zap.String("event_type", string(event.Type)))
}
