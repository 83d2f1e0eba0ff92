package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/application/eventhandler"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func sampleNotification() eventhandler.Notification {
	return eventhandler.Notification{
		RecipientID: "stu-1",
		Kind:        eventhandler.KindInvitationReceived,
		Message:     "You have been invited to join Distributed Cache",
		Metadata:    map[string]string{"group_id": "grp-1"},
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var got webhookPayload
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(DefaultWebhookConfig(srv.URL, "secret"), quietLogger())
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), sampleNotification()))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "stu-1", got.RecipientID)
	assert.Equal(t, "invitation_received", got.Kind)
	assert.Equal(t, "grp-1", got.Metadata["group_id"])
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultWebhookConfig(srv.URL, "")
	n, err := NewWebhookNotifier(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, n.Notify(ctx, sampleNotification()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifierDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(DefaultWebhookConfig(srv.URL, ""), quietLogger())
	require.NoError(t, err)

	err = n.Notify(context.Background(), sampleNotification())
	assert.ErrorContains(t, err, "422")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifierRequiresURL(t *testing.T) {
	_, err := NewWebhookNotifier(WebhookConfig{}, quietLogger())
	assert.Error(t, err)
}
