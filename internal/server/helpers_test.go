package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"photo-guess/internal/config"
	"photo-guess/internal/game"
	"photo-guess/internal/media"
	"photo-guess/internal/store"
)

var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

type testEnv struct {
	srv *Server
	svc *game.Service
	ts  *httptest.Server
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Game.PhotosPerPlayer = 1
	cfg.Media.Dir = t.TempDir()
	for _, o := range opts {
		o(&cfg)
	}
	files, err := media.NewLocalStorage(cfg.Media.Dir, cfg.Media.BaseURL)
	require.NoError(t, err)
	svc := game.New(store.NewMemoryStore(store.NewBroker(0)), files, cfg.Game, zerolog.Nop(),
		game.WithMaxUpload(cfg.Media.MaxUploadBytes))
	srv := New(svc, cfg, zerolog.Nop())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, svc: svc, ts: ts}
}

// user is one browser with its own cookie jar.
type user struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
	jar    http.CookieJar
}

func (e *testEnv) newUser(t *testing.T) *user {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u := &user{t: t, env: e, client: &http.Client{Jar: jar}, jar: jar}
	resp := u.do(http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return u
}

func (u *user) do(method, path string, payload any) *http.Response {
	u.t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(u.t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, u.env.ts.URL+path, &body)
	require.NoError(u.t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := u.client.Do(req)
	require.NoError(u.t, err)
	u.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (u *user) upload(path string, data []byte) *http.Response {
	u.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "photo.png")
	require.NoError(u.t, err)
	_, err = part.Write(data)
	require.NoError(u.t, err)
	require.NoError(u.t, w.Close())

	req, err := http.NewRequest(http.MethodPost, u.env.ts.URL+path, &body)
	require.NoError(u.t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := u.client.Do(req)
	require.NoError(u.t, err)
	u.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type seatBody struct {
	Room struct {
		ID           string `json:"id"`
		Code         string `json:"code"`
		Status       string `json:"status"`
		CurrentRound *int   `json:"current_round"`
	} `json:"room"`
	Player struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"player"`
}

func (u *user) create(nickname string) seatBody {
	u.t.Helper()
	resp := u.do(http.MethodPost, "/api/rooms", map[string]string{"nickname": nickname})
	require.Equal(u.t, http.StatusCreated, resp.StatusCode)
	return decode[seatBody](u.t, resp)
}

func (u *user) join(code, nickname string) seatBody {
	u.t.Helper()
	resp := u.do(http.MethodPost, "/api/rooms/join", map[string]string{"code": code, "nickname": nickname})
	require.Equal(u.t, http.StatusOK, resp.StatusCode)
	return decode[seatBody](u.t, resp)
}

type errorBody struct {
	Error string `json:"error"`
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
