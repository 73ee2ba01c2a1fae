package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/backend"
	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
	"github.com/KaramelBytes/datasage-cli/internal/session"
	"github.com/KaramelBytes/datasage-cli/internal/store"
)

type fakeHistory struct{ snaps []store.Snapshot }

func (f fakeHistory) ListSnapshots(ctx context.Context, sessionID string) ([]store.Snapshot, error) {
	return f.snaps, nil
}

func setup(t *testing.T, csv string) (*httptest.Server, *session.Session) {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(src, []byte(csv), 0o644))
	sess := session.New(root, "demo", "")
	require.NoError(t, sess.AttachDataset(src))
	require.NoError(t, sess.Save())

	srv := New(Config{
		SessionsDir: root,
		Ingest:      ingest.DefaultOptions(),
		History:     fakeHistory{snaps: []store.Snapshot{{ID: "snap-1", SessionID: sess.ID, Rows: 4}}},
		Logger:      zap.NewNop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, sess
}

const demoCSV = "x,y,city\n1,2,Oslo\n2,4,Rome\n3,6,Rome\n4,8.5,\n"

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndSessions(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health["status"])

	var list struct {
		Sessions []session.Session `json:"sessions"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions", &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, sess.ID, list.Sessions[0].ID)
}

func TestOverviewByNameOrID(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	for _, ref := range []string{sess.ID, "demo"} {
		var p profile.DatasetProfile
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+ref+"/overview", &p))
		assert.Equal(t, 4, p.TotalRows)
		assert.Equal(t, 3, p.TotalColumns)
		assert.Equal(t, 1, p.MissingCells)
		assert.Equal(t, 2, p.TypeCounts.Numeric)
	}
}

func TestColumnProfileRoute(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	var body struct {
		Profile         profile.ColumnProfile    `json:"profile"`
		Recommendations []profile.Recommendation `json:"recommendations"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/columns/city/profile", &body))
	assert.Equal(t, profile.TypeCategorical, body.Profile.Type)
	assert.Equal(t, "Rome", body.Profile.MostFrequent)
	assert.NotEmpty(t, body.Recommendations)
}

func TestBackendClientAgainstServer(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	c := backend.NewClient(ts.URL, 2*time.Second, 1, 0, 0)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	st, err := c.ColumnStatistics(ctx, sess.ID, "x")
	require.NoError(t, err)
	require.NotNil(t, st.Mean)
	assert.InDelta(t, 2.5, *st.Mean, 1e-9)
	assert.Equal(t, 4, st.Count)

	d, err := c.Distribution(ctx, sess.ID, "city")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Total())
	assert.Equal(t, "Rome", d.Bins[0].Label)

	corr, err := c.Correlation(ctx, sess.ID)
	require.NoError(t, err)
	r, ok := corr.Get("x", "y")
	require.True(t, ok)
	assert.Greater(t, r, 0.99)

	_, err = c.ColumnStatistics(ctx, sess.ID, "missing")
	var nf *backend.NotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Contains(t, nf.Message, "unknown column")

	_, err = c.Correlation(ctx, "no-such-session")
	require.True(t, errors.As(err, &nf), "got %v", err)
}

func TestCorrelationNeedsTwoNumericColumns(t *testing.T) {
	ts, sess := setup(t, "x,name\n1,a\n2,b\n")
	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/correlation", &body))
	assert.Contains(t, body["error"], "two numeric columns")
}

func TestPreviewRoute(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	var body struct {
		Columns     []string `json:"columns"`
		Data        [][]any  `json:"data"`
		TotalRows   int      `json:"totalRows"`
		PreviewRows int      `json:"previewRows"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/preview", &body))
	assert.Equal(t, []string{"x", "y", "city"}, body.Columns)
	assert.Equal(t, 4, body.TotalRows)
	assert.Equal(t, 4, body.PreviewRows)
	require.Len(t, body.Data, 4)
	assert.Equal(t, []any{"1", "2", "Oslo"}, body.Data[0])
	assert.Equal(t, []any{"4", "8.5", nil}, body.Data[3])

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/demo/preview?rows=2", &body))
	assert.Equal(t, 2, body.PreviewRows)
	assert.Len(t, body.Data, 2)

	var e map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/sessions/demo/preview?rows=x", &e))
}

func TestAllStatisticsRoute(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	var body map[string]backend.ColumnStatistics
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/all_statistics", &body))
	require.Len(t, body, 3)
	require.NotNil(t, body["x"].Mean)
	assert.InDelta(t, 2.5, *body["x"].Mean, 1e-9)
	assert.Equal(t, "Rome", body["city"].MostCommon)
	assert.Equal(t, 4, body["y"].Count)

	var e map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/sessions/nope/all_statistics", &e))
}

func TestColumnNamesWithPercentAndSlash(t *testing.T) {
	ts, sess := setup(t, "a%41,aA,a/b\n1,7,3\n2,8,5\n")
	var st backend.ColumnStatistics
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/columns/a%2541/statistics", &st))
	assert.Equal(t, "a%41", st.Column)
	require.NotNil(t, st.Mean)
	assert.InDelta(t, 1.5, *st.Mean, 1e-9)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+sess.ID+"/columns/a%2Fb/statistics", &st))
	assert.Equal(t, "a/b", st.Column)

	c := backend.NewClient(ts.URL, 2*time.Second, 1, 0, 0)
	for col, mean := range map[string]float64{"a%41": 1.5, "aA": 7.5, "a/b": 4} {
		got, err := c.ColumnStatistics(context.Background(), sess.ID, col)
		require.NoError(t, err, col)
		assert.Equal(t, col, got.Column)
		require.NotNil(t, got.Mean, col)
		assert.InDelta(t, mean, *got.Mean, 1e-9, col)
	}
}

func TestHistoryRoute(t *testing.T) {
	ts, sess := setup(t, demoCSV)
	var body struct {
		SessionID string           `json:"session_id"`
		Snapshots []store.Snapshot `json:"snapshots"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/demo/history", &body))
	assert.Equal(t, sess.ID, body.SessionID)
	require.Len(t, body.Snapshots, 1)
	assert.Equal(t, "snap-1", body.Snapshots[0].ID)
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := setup(t, demoCSV)
	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/nope", &body))
	assert.NotEmpty(t, body["error"])
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0", SessionsDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, func(a string) { addrCh <- a }) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Skipf("cannot listen: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
