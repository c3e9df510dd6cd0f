package logging_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/batch"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/client"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/logging"
	"github.com/rs/zerolog"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestInjectedLogger_ReachesClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logging.Setup(logging.Config{Level: logging.LevelDebug, Output: &bytes.Buffer{}})

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).With().Str("component", "run").Logger()

	c, err := client.New(client.Config{
		BaseURL:    server.URL,
		MaxRetries: 2,
		Sleep:      noSleep,
		Logger:     &logger,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	if res := c.FetchLeagues(context.Background(), 31); res.OK() {
		t.Fatal("Expected failed fetch")
	}

	output := buf.String()
	for _, want := range []string{
		`"component":"run"`,
		`"entry_id":31`,
		`"error_class":"server"`,
		"All attempts failed for entry",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %s in injected logger output, got %s", want, output)
		}
	}
}

func TestInjectedLogger_ReachesScheduler(t *testing.T) {
	logging.Setup(logging.Config{Level: logging.LevelInfo, Output: &bytes.Buffer{}})

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	s := batch.NewScheduler(batch.Config{BatchSize: 2, Logger: &logger})
	entries := []fpl.Entry{{Name: "A", ID: 1}, {Name: "B", ID: 2}, {Name: "C", ID: 3}}

	err := s.Run(context.Background(), entries,
		func(ctx context.Context, e fpl.Entry) client.Result {
			return client.Result{EntryID: e.ID, Status: client.StatusOK, Leagues: []fpl.League{}}
		},
		func(b batch.Batch, results []client.Result) {},
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n := strings.Count(buf.String(), "Batch complete"); n != 2 {
		t.Errorf("Expected 2 batch progress lines, got %d: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"batches":2`) {
		t.Errorf("Expected batch count field, got %s", buf.String())
	}
}
