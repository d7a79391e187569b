package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
)

func TestNotificationServiceHandlesEvents(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "noreply@example.com"})
	svc.RegisterHandlers()

	ctx := context.Background()
	actor := "acc-root"
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventAccountCreated, "acc-1", nil, events.AccountCreatedPayload{Email: "a@example.com"})))
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventPasswordResetRequested, "acc-1", nil, events.PasswordResetRequestedPayload{
		Email:     "a@example.com",
		Token:     "secret-token",
		ExpiresAt: time.Now().Add(time.Hour),
	})))
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventPasswordChanged, "acc-1", nil, events.PasswordChangedPayload{Email: "a@example.com", Reset: true})))
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventAccountDeleted, "acc-1", &actor, events.AccountDeletedPayload{Email: "a@example.com"})))

	assert.Equal(t, 1, logs.FilterMessage("AccountCreated").Len())
	assert.Equal(t, 1, logs.FilterMessage("PasswordResetRequested").Len())
	assert.Equal(t, 1, logs.FilterMessage("PasswordChanged").Len())
	deleted := logs.FilterMessage("AccountDeleted").All()
	require.Len(t, deleted, 1)
	assert.Equal(t, actor, deleted[0].ContextMap()["actor_id"])
	assert.Equal(t, 3, logs.FilterMessage("sendEmailStub").Len())

	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			assert.NotEqual(t, "secret-token", v, "reset tokens never reach the logs")
		}
	}
}

func TestResetLink(t *testing.T) {
	bare := NewNotificationService(nil, nil, config.NotificationConfig{})
	assert.Equal(t, "tok", bare.ResetLink("tok"))

	linked := NewNotificationService(nil, nil, config.NotificationConfig{ResetURLBase: "https://app.example.com/reset?lang=en"})
	assert.Equal(t, "https://app.example.com/reset?lang=en&token=tok", linked.ResetLink("tok"))
}
