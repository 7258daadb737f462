package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"funding/internal/domain"
	"funding/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	body          interface{}
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{exchange, routingKey, body})
	return p.err
}

func (p *recordingPublisher) Close() {}

type stubDonations map[int64]*domain.Donation

func (s stubDonations) GetDonation(_ context.Context, id int64, username string, isAdmin bool) (*domain.Donation, error) {
	d, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !isAdmin && d.DonorUsername != username {
		return nil, domain.ErrForbidden
	}
	return d, nil
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "donation.completed", RoutingKey(domain.DonationCompleted))
	assert.Equal(t, "donation.cancelled", RoutingKey(domain.DonationCancelled))
}

func TestNotifier_PublishesWithoutSubscribers(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, NewHub(), "", nil)

	n.DonationStatusChanged(context.Background(), domain.DonationStatusChange{DonationID: 7, From: domain.DonationPending, To: domain.DonationCompleted})

	require.Len(t, pub.sent, 1)
	assert.Equal(t, DefaultExchange, pub.sent[0].exchange)
	assert.Equal(t, "donation.completed", pub.sent[0].key)
	ev, ok := pub.sent[0].body.(Event)
	require.True(t, ok)
	assert.Equal(t, EventStatusChanged, ev.Type)
	assert.Equal(t, int64(7), ev.DonationID)
}

func TestNotifier_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	n := NewNotifier(pub, nil, "events", nil)
	assert.NotPanics(t, func() {
		n.DonationStatusChanged(context.Background(), domain.DonationStatusChange{DonationID: 1, To: domain.DonationFailed})
	})
	assert.Equal(t, "events", pub.sent[0].exchange)
}

func newStreamServer(t *testing.T, hub *Hub, donations stubDonations) (*httptest.Server, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := jwt.New("ws-secret", time.Hour)
	r := gin.New()
	NewWSHandler(hub, tokens, donations, nil, nil).RegisterRoutes(r.Group(""))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStream_SnapshotThenChanges(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	donations := stubDonations{5: {ID: 5, DonorUsername: "ann", Status: domain.DonationPending}}
	srv, tokens := newStreamServer(t, hub, donations)
	token, err := tokens.GenerateToken("ann", "donor")
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/donations/5/ws?token="+token), nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap Event
	require.NoError(t, ws.ReadJSON(&snap))
	assert.Equal(t, EventSnapshot, snap.Type)
	assert.Equal(t, domain.DonationPending, snap.Status)
	assert.Equal(t, 1, hub.Subscribers(5))

	n := NewNotifier(&recordingPublisher{}, hub, "", nil)
	n.DonationStatusChanged(context.Background(), domain.DonationStatusChange{DonationID: 5, From: domain.DonationPending, To: domain.DonationCompleted})
	n.DonationStatusChanged(context.Background(), domain.DonationStatusChange{DonationID: 6, To: domain.DonationCompleted})

	var ev Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, EventStatusChanged, ev.Type)
	assert.Equal(t, domain.DonationCompleted, ev.Status)
	require.NotNil(t, ev.Change)
	assert.Equal(t, domain.DonationPending, ev.Change.From)
}

func TestStream_Rejections(t *testing.T) {
	hub := NewHub()
	donations := stubDonations{5: {ID: 5, DonorUsername: "ann"}}
	srv, tokens := newStreamServer(t, hub, donations)
	bob, _ := tokens.GenerateToken("bob", "donor")
	ann, _ := tokens.GenerateToken("ann", "donor")

	cases := []struct {
		path string
		want int
	}{
		{"/donations/5/ws", http.StatusUnauthorized},
		{"/donations/5/ws?token=garbage", http.StatusUnauthorized},
		{"/donations/5/ws?token=" + bob, http.StatusForbidden},
		{"/donations/99/ws?token=" + ann, http.StatusNotFound},
		{"/donations/abc/ws?token=" + ann, http.StatusBadRequest},
	}
	for _, tc := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tc.path), nil)
		require.Error(t, err, tc.path)
		require.NotNil(t, resp, tc.path)
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
		_ = resp.Body.Close()
	}
	assert.Zero(t, hub.Subscribers(5))
}
