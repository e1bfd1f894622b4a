package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/stream"
)

type scriptedAnalyzer struct {
	events  []stream.Event[domain.InsightRecord]
	locator chan string
	stopped chan struct{}
}

func newScripted(events ...stream.Event[domain.InsightRecord]) *scriptedAnalyzer {
	return &scriptedAnalyzer{events: events, locator: make(chan string, 1), stopped: make(chan struct{})}
}

func (a *scriptedAnalyzer) Run(ctx context.Context, locator string) <-chan stream.Event[domain.InsightRecord] {
	a.locator <- locator
	out := make(chan stream.Event[domain.InsightRecord])
	go func() {
		defer close(a.stopped)
		defer close(out)
		for _, ev := range a.events {
			if !stream.Send(ctx, out, ev) {
				return
			}
		}
	}()
	return out
}

var okRecord = domain.InsightRecord{
	ProductName:   "Kettle",
	Pros:          []string{"fast"},
	Cons:          []string{},
	Summary:       "Good.",
	PositiveCount: 2,
	NegativeCount: 1,
}

func TestAnalyzeStreamsNDJSON(t *testing.T) {
	t.Parallel()

	analyzer := newScripted(
		stream.Progress[domain.InsightRecord](33),
		stream.Progress[domain.InsightRecord](66),
		stream.Progress[domain.InsightRecord](100),
		stream.Final(okRecord),
	)
	ts := httptest.NewServer(New("", analyzer, nil).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/analyze", "application/json", strings.NewReader(`{"url":" https://shop.example.com/k "}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ndjsonContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, "https://shop.example.com/k", <-analyzer.locator)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"progress":33}`, lines[0])
	assert.JSONEq(t, `{"progress":100}`, lines[2])

	var final struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &final))
	assert.Equal(t, "Kettle", final.Result["product_name"])
	assert.Equal(t, float64(2), final.Result["positive_count"])
}

func TestAnalyzeRejectsMissingURL(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(New("", newScripted(), nil).Handler())
	defer ts.Close()

	for _, body := range []string{`{}`, `{"url":"  "}`, `not json`} {
		resp, err := http.Post(ts.URL+"/analyze", "application/json", strings.NewReader(body))
		require.NoError(t, err)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, map[string]string{"error": "No URL provided"}, payload)
	}
}

func TestAnalyzeSingleDocument(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		events []stream.Event[domain.InsightRecord]
		status int
		want   string
	}{
		"insight": {
			events: []stream.Event[domain.InsightRecord]{stream.Progress[domain.InsightRecord](100), stream.Final(domain.FailedInsight("loc", "No data"))},
			status: http.StatusOK,
			want:   `{"product_name":"loc","error":"No data"}`,
		},
		"failure": {
			events: []stream.Event[domain.InsightRecord]{stream.Failure[domain.InsightRecord](errors.New("summarizer contract"))},
			status: http.StatusBadGateway,
			want:   `{"error":"summarizer contract"}`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(New("", newScripted(tc.events...), nil).Handler())
			defer ts.Close()

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/analyze", strings.NewReader(`{"url":"loc"}`))
			require.NoError(t, err)
			req.Header.Set("Accept", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var got json.RawMessage
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestAnalyzeWebSocket(t *testing.T) {
	t.Parallel()

	analyzer := newScripted(
		stream.Progress[domain.InsightRecord](50),
		stream.Progress[domain.InsightRecord](100),
		stream.Final(okRecord),
	)
	ts := httptest.NewServer(New("", analyzer, nil).Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/analyze/ws?url=" + url.QueryEscape("https://shop.example.com/k")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var messages []map[string]json.RawMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		messages = append(messages, msg)
	}

	require.Len(t, messages, 3)
	assert.JSONEq(t, `50`, string(messages[0]["progress"]))
	assert.Contains(t, messages[2], "result")
	assert.Equal(t, "https://shop.example.com/k", <-analyzer.locator)
}

func TestAnalyzeWebSocketDisconnectCancels(t *testing.T) {
	t.Parallel()

	events := make([]stream.Event[domain.InsightRecord], 0, 1000)
	for i := 0; i < 1000; i++ {
		events = append(events, stream.Progress[domain.InsightRecord](i/10))
	}
	analyzer := newScripted(events...)
	ts := httptest.NewServer(New("", analyzer, nil).Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/analyze/ws?url=loc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, conn.Close())

	select {
	case <-analyzer.stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("analysis kept running after the websocket closed")
	}
}

func TestWebSocketRequiresURL(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(New("", newScripted(), nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analyze/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(New("", newScripted(), nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srv := New("127.0.0.1:0", newScripted(), nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
