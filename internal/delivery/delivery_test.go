package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

func testAgent(id, endpoint string) *models.AgentView {
	return &models.AgentView{Agent: models.Agent{ID: id, Endpoint: endpoint, Status: models.AgentOnline}}
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID:        "n-1",
		AgentID:   "dev",
		Type:      models.NotifyTaskAssigned,
		Title:     "Task assigned: TASK-00001",
		TaskID:    "TASK-00001",
		CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestHTTPDeliverer(t *testing.T) {
	t.Run("posts JSON and accepts 2xx", func(t *testing.T) {
		var got Payload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "n-1", r.Header.Get("X-Claw-Notification"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		err := NewHTTPDeliverer(srv.Client()).Deliver(context.Background(), testAgent("dev", srv.URL), testNotification())
		require.NoError(t, err)
		assert.Equal(t, "dev", got.AgentID)
		assert.Equal(t, "TASK-00001", got.Notification.TaskID)
	})

	t.Run("non-2xx is a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := NewHTTPDeliverer(nil).Deliver(context.Background(), testAgent("dev", srv.URL), testNotification())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewHTTPDeliverer(nil).Deliver(context.Background(), testAgent("dev", url), testNotification())
		require.Error(t, err)
		assert.False(t, errors.Is(err, core.ErrNoRoute))
	})

	t.Run("respects context deadline", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := NewHTTPDeliverer(nil).Deliver(ctx, testAgent("dev", srv.URL), testNotification())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("no endpoint is no route", func(t *testing.T) {
		err := NewHTTPDeliverer(nil).Deliver(context.Background(), testAgent("dev", ""), testNotification())
		assert.ErrorIs(t, err, core.ErrNoRoute)
	})
}

func setupRedis(t *testing.T, requireSubscriber bool) (*RedisDeliverer, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	d, err := NewRedisDeliverer(&redis.Options{Addr: mr.Addr()}, "test-instance", requireSubscriber)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, mr
}

func TestNotificationChannel(t *testing.T) {
	assert.Equal(t, "claw:prod:agent:qa-bot:notifications", NotificationChannel("prod", "qa-bot"))
}

func TestNewRedisDeliverer_RejectsEmptyInstance(t *testing.T) {
	_, err := NewRedisDeliverer(&redis.Options{Addr: "localhost:6379"}, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance name cannot be empty")
}

func TestRedisDeliverer_PublishesToSubscriber(t *testing.T) {
	d, mr := setupRedis(t, true)
	ctx := context.Background()
	require.NoError(t, d.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, NotificationChannel("test-instance", "dev"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Deliver(ctx, testAgent("dev", ""), testNotification()))

	select {
	case msg := <-sub.Channel():
		var p Payload
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &p))
		assert.Equal(t, "n-1", p.Notification.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published notification")
	}
}

func TestRedisDeliverer_NoSubscriber(t *testing.T) {
	t.Run("tolerated by default", func(t *testing.T) {
		d, _ := setupRedis(t, false)
		assert.NoError(t, d.Deliver(context.Background(), testAgent("dev", ""), testNotification()))
	})

	t.Run("failure when required", func(t *testing.T) {
		d, _ := setupRedis(t, true)
		err := d.Deliver(context.Background(), testAgent("dev", ""), testNotification())
		assert.ErrorIs(t, err, ErrNoSubscriber)
	})

	t.Run("redis down", func(t *testing.T) {
		d, mr := setupRedis(t, false)
		mr.Close()
		assert.Error(t, d.Deliver(context.Background(), testAgent("dev", ""), testNotification()))
	})
}

type recordingDeliverer struct {
	name  string
	calls *[]string
}

func (r recordingDeliverer) Deliver(_ context.Context, agent *models.AgentView, _ *models.Notification) error {
	*r.calls = append(*r.calls, r.name+":"+agent.ID)
	return nil
}

func TestMultiDeliverer_Routes(t *testing.T) {
	var calls []string
	web := recordingDeliverer{name: "http", calls: &calls}
	pubsub := recordingDeliverer{name: "redis", calls: &calls}
	ctx := context.Background()

	m := NewMultiDeliverer(web, pubsub)
	require.NoError(t, m.Deliver(ctx, testAgent("hooked", "http://agent/notify"), testNotification()))
	require.NoError(t, m.Deliver(ctx, testAgent("listener", ""), testNotification()))
	assert.Equal(t, []string{"http:hooked", "redis:listener"}, calls)

	httpOnly := NewMultiDeliverer(web, nil)
	err := httpOnly.Deliver(ctx, testAgent("poller", ""), testNotification())
	assert.ErrorIs(t, err, core.ErrNoRoute)
}
