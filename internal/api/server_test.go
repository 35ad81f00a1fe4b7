package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStartAndShutdown(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := NewServer(r, "127.0.0.1:0")
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
	assert.NotNil(t, srv.Router())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Give the listener a moment, then shut down cleanly.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err, "Start returns nil after graceful shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
