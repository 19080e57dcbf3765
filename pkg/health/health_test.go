package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Status string
	Checks map[string]string
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) status {
	t.Helper()
	var s status
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "checks":
			s.Checks = make(map[string]string)
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				s.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return s
}

func passing() CheckFunc { return func(context.Context) error { return nil } }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		check      CheckFunc
		runs       int
		wantCode   int
		wantChecks map[string]string
	}{
		{name: "passing", check: passing(), runs: 1, wantCode: http.StatusOK},
		{name: "below threshold", check: failing("flaky"), runs: failureThreshold - 1, wantCode: http.StatusOK},
		{
			name: "failing", check: failing("connection refused"), runs: failureThreshold,
			wantCode: http.StatusServiceUnavailable, wantChecks: map[string]string{"db": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("db", time.Second, tt.check)
			for range tt.runs {
				h.live[0].run(context.Background())
			}

			w := serve(h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			s := decodeStatus(t, w)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", s.Status)
				assert.Nil(t, s.Checks)
				return
			}
			assert.Equal(t, "unhealthy", s.Status)
			assert.Equal(t, tt.wantChecks, s.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, passing())

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service is not ready", decodeStatus(t, w).Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	w = serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeStatus(t, w).Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestReadyEndpoint_OneFailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, passing())
	h.AddReadinessCheck("redis", time.Second, failing("dial tcp: refused"))
	h.SetReady(true)
	for range failureThreshold {
		h.readyc[1].run(context.Background())
	}

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	s := decodeStatus(t, w)
	assert.Equal(t, map[string]string{"redis": "dial tcp: refused"}, s.Checks)
	assert.False(t, h.IsReady())
}

func TestCheckRecovers(t *testing.T) {
	var (
		mu   sync.Mutex
		fail = true
	)
	c := newCheck("flappy", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("down")
		}
		return nil
	})

	for range failureThreshold {
		c.run(context.Background())
	}
	assert.Equal(t, "down", c.failure())

	mu.Lock()
	fail = false
	mu.Unlock()
	c.run(context.Background())
	assert.Empty(t, c.failure())
}

func TestStartAndStop(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, failing("gone"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck("postgres", pinger{})(context.Background()))

	err := PingCheck("redis", pinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Equal(t, "redis ping: refused", err.Error())
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	require.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
