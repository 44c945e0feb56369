package transfer

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campuskit/coursemover/internal/canvas"
)

func newTestClient(t *testing.T, server *httptest.Server) *canvas.Client {
	t.Helper()
	c, err := canvas.New(server.URL, "test-token",
		canvas.WithHTTPClient(server.Client()),
		canvas.WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("canvas.New: %v", err)
	}
	return c
}
