package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticAuth struct{ token string }

func (s staticAuth) Authenticate(_ context.Context, token string) (service.Caller, bool) {
	if token != s.token {
		return service.Caller{}, false
	}
	return service.Caller{ID: uuid.New(), Username: "demo", Role: model.RoleEmployee}, true
}

func newServer(t *testing.T) (*Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, staticAuth{token: "good"}) })
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestServeWs_RejectsBadToken(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/ws?token=bad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, srv := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	id := uuid.New()
	// registration happens asynchronously, so keep publishing until the client sees it
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	received := make(chan events.Event, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev events.Event
		if json.Unmarshal([]byte(strings.SplitN(string(msg), "\n", 2)[0]), &ev) == nil {
			received <- ev
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		hub.Publish(events.New(events.SubmissionSigned, id, nil, nil))
		select {
		case ev := <-received:
			assert.Equal(t, events.SubmissionSigned, ev.Type)
			assert.Equal(t, id, ev.SubmissionID)
			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := &Client{Hub: hub, Send: make(chan []byte, 1)}
	require.True(t, hub.join(client))
	cancel()
	select {
	case <-hub.done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	finished := make(chan struct{})
	go func() {
		hub.leave(client)
		assert.False(t, hub.join(&Client{Hub: hub, Send: make(chan []byte, 1)}))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("join or leave blocked after shutdown")
	}

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, staticAuth{token: "good"}) })
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "got %v", err)
}
