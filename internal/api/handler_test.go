package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NamiraNet/handoff/internal/app"
	"github.com/NamiraNet/handoff/internal/board"
	"github.com/NamiraNet/handoff/internal/crypto"
	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/NamiraNet/handoff/internal/message"
	"github.com/NamiraNet/handoff/internal/metrics"
	"github.com/NamiraNet/handoff/internal/store"
	"github.com/NamiraNet/handoff/internal/worker"
	"github.com/gorilla/mux"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	router *mux.Router
	app    *app.App
	store  *store.Memory
	loop   *looper.Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithMetrics(t, nil)
}

func newFixtureWithMetrics(t *testing.T, reg *prom.Registry) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	w := worker.New(worker.WithLogger(logger), worker.WithStopPolicy(worker.StopPolicyDrain))
	require.NoError(t, w.Start(context.Background()))

	mem := store.NewMemory()
	loop := looper.New(logger)
	opts := app.Options{
		Worker: w,
		Loop:   loop,
		Store:  mem,
		Key:    crypto.DeriveKey("api test"),
		Logger: logger,
	}
	var metricsHandler http.Handler
	if reg != nil {
		exporter, err := metrics.NewExporter("test", reg)
		require.NoError(t, err)
		require.NoError(t, metrics.RegisterWorker(reg, "test", w))
		opts.Metrics = exporter
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	a, err := app.New(opts)
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() { res <- loop.Run(context.Background()) }()

	t.Cleanup(func() {
		loop.Quit()
		assert.NoError(t, <-res)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Close(ctx))
	})

	h := NewHandler(a, logger, VersionInfo{Version: "test"}, time.Second)
	return &fixture{router: NewRouter(h, metricsHandler), app: a, store: mem, loop: loop}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHandler(t *testing.T) {
	t.Run("Push and fetch", func(t *testing.T) {
		f := newFixture(t)

		body := bytes.NewBufferString(`{"text":"attack at dawn"}`)
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/messages", body))
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		key := decode[PushResponse](t, rec).Key
		require.NotEmpty(t, key)

		var view MessageView
		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/"+key, nil))
			if rec.Code != http.StatusOK {
				return false
			}
			return json.Unmarshal(rec.Body.Bytes(), &view) == nil &&
				view.Status == board.StatusEncrypted
		}, 5*time.Second, 10*time.Millisecond)

		assert.Equal(t, "attack at dawn", view.PlainText)
		assert.NotEmpty(t, view.CipherText)
		assert.Equal(t, "board", view.Source)
	})

	t.Run("Empty body pushes a generated message", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/messages", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.NotEmpty(t, decode[PushResponse](t, rec).Key)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, http.StatusBadRequest, decode[MessageResponse](t, rec).Status)
	})

	t.Run("File upload", func(t *testing.T) {
		f := newFixture(t)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "messages.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte("one\n\ntwo\nthree\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/messages", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := f.do(t, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, decode[PushResponse](t, rec).Keys, 3)

		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages", nil))
			var list ListResponse
			return json.Unmarshal(rec.Body.Bytes(), &list) == nil &&
				list.Total == 3 && list.Pending == 0
		}, 5*time.Second, 10*time.Millisecond)

		list := decode[ListResponse](t, f.do(t, httptest.NewRequest(http.MethodGet, "/messages", nil)))
		var texts []string
		for _, m := range list.Messages {
			texts = append(texts, m.PlainText)
		}
		assert.Equal(t, []string{"one", "two", "three"}, texts)
	})

	t.Run("Lookup falls back to store", func(t *testing.T) {
		f := newFixture(t)
		now := time.Now()
		m := message.New("archived")
		require.NoError(t, f.store.Save(context.Background(),
			message.NewTimed(m, now).Done(m.WithCipherText("c"), now.Add(time.Millisecond))))

		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/messages/"+m.Key, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		view := decode[MessageView](t, rec)
		assert.Equal(t, "store", view.Source)
		assert.Equal(t, board.StatusEncrypted, view.Status)
	})

	t.Run("Unknown key", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/messages/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Health", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		health := decode[HealthResponse](t, rec)
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "test", health.Version)
		assert.Equal(t, worker.StateRunning.String(), health.Worker.State)
		assert.Equal(t, "drain", health.Worker.StopPolicy)
	})

	t.Run("Metrics", func(t *testing.T) {
		f := newFixtureWithMetrics(t, prom.NewRegistry())

		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/messages", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)

		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			return rec.Code == http.StatusOK &&
				strings.Contains(rec.Body.String(), `test_messages_total{status="encrypted"} 1`)
		}, 5*time.Second, 10*time.Millisecond)

		rec = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, rec.Body.String(), "test_worker_executed_total")
	})

	t.Run("No metrics route by default", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Foreground closed", func(t *testing.T) {
		f := newFixture(t)
		f.loop.Quit()
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/messages", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Push is dropped when the foreground times out", func(t *testing.T) {
		f := newFixture(t)
		router := NewRouter(NewHandler(f.app, zaptest.NewLogger(t), VersionInfo{}, 10*time.Millisecond), nil)

		gate := make(chan struct{})
		require.NoError(t, f.loop.Post(func() { <-gate }))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"text":"late"}`)))
		close(gate)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

		// runs after the abandoned push closure
		var n int
		require.NoError(t, f.loop.Call(context.Background(), func() { n = f.app.Board().Len() }))
		assert.Zero(t, n)
		assert.Zero(t, f.app.Worker().Stats().Submitted)
	})

	t.Run("CORS preflight", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodOptions, "/messages", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
