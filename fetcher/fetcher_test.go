package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rnav-scraper/page"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/hoteles_asociados.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="row app-brief"><div id="hoteles-foto">
<a href="hotel.php?id=1">Uno</a>
<a href="hotel.php?id=2">Dos</a>
<a>Sin enlace</a>
</div></div></body></html>`)
	})
	mux.HandleFunc("/hotel.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><h1 id="hotel-interno-nombre-hotel">Hotel %s</h1></body></html>`, r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func newTestFetcher(t *testing.T) *CollyFetcher {
	cf, err := NewCollyFetcher(0, 5*time.Second, zap.NewNop().Sugar())
	require.NoError(t, err)
	return cf
}

func TestCollyLinks(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	links, err := newTestFetcher(t).Links(context.Background(), srv.URL+"/hoteles_asociados.php?fil=1", ".row.app-brief #hoteles-foto a")
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/hotel.php?id=1",
		srv.URL + "/hotel.php?id=2",
	}, links)
}

func TestCollyFetch(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cf := newTestFetcher(t)
	body, err := cf.Fetch(context.Background(), srv.URL+"/hotel.php?id=7")
	require.NoError(t, err)
	assert.Contains(t, body, "Hotel 7")

	// the same collector serves repeated visits
	body, err = cf.Fetch(context.Background(), srv.URL+"/hotel.php?id=7")
	require.NoError(t, err)
	assert.Contains(t, body, "Hotel 7")

	_, err = cf.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestCollyCancelled(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(t).Fetch(ctx, srv.URL+"/hotel.php?id=1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapRodError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), page.ErrTimeout},
		{"not found", fmt.Errorf("find: %w", &rod.ElementNotFoundError{}), page.ErrElementNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapRodError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapRodError() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, mapRodError(plain))
}

func TestBrowserBinPrefersExplicit(t *testing.T) {
	assert.Equal(t, "/opt/chrome/chrome", browserBin("/opt/chrome/chrome"))
}

type fakeProcess struct {
	killed, cleaned int
}

func (f *fakeProcess) Kill()    { f.killed++ }
func (f *fakeProcess) Cleanup() { f.cleaned++ }

func TestAttachKillsBrowserWhenConnectFails(t *testing.T) {
	tests := []struct {
		name        string
		tempProfile bool
		wantCleaned int
	}{
		{"launcher profile", true, 1},
		{"user profile kept", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcess{}
			refused := errors.New("connection refused")

			browser, err := attach("ws://127.0.0.1:1/devtools", proc, tt.tempProfile, func(*rod.Browser) error { return refused })
			assert.Nil(t, browser)
			assert.ErrorIs(t, err, refused)
			assert.Equal(t, 1, proc.killed)
			assert.Equal(t, tt.wantCleaned, proc.cleaned)
		})
	}
}

func TestAttachKeepsBrowserWhenConnected(t *testing.T) {
	proc := &fakeProcess{}
	browser, err := attach("ws://127.0.0.1:1/devtools", proc, true, func(*rod.Browser) error { return nil })
	require.NoError(t, err)
	assert.NotNil(t, browser)
	assert.Zero(t, proc.killed)
	assert.Zero(t, proc.cleaned)
}
