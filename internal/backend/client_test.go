package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

type ipv4Server struct {
	URL string
	srv *http.Server
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	s := &ipv4Server{URL: "http://" + ln.Addr().String(), srv: srv}
	t.Cleanup(s.Close)
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testClient(url string, attempts int) *Client {
	return NewClient(url, 2*time.Second, attempts, 10*time.Millisecond, 50*time.Millisecond)
}

func TestColumnStatisticsRetriesOn503(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/s1/columns/age/statistics" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"statistics":{"mean":31.5,"median":"30","std_dev":null,"missing_values_percent":12.5,"count":8,"unique_count":6,"most_common":30}}`))
	}))

	st, err := testClient(srv.URL, 3).ColumnStatistics(context.Background(), "s1", "age")
	if err != nil {
		t.Fatalf("ColumnStatistics: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected one retry, got %d hits", hits)
	}
	if st.Column != "age" || st.Mean == nil || *st.Mean != 31.5 || st.Median == nil || *st.Median != 30 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.StdDev != nil {
		t.Fatalf("std_dev should be nil for null")
	}
	if st.Count != 8 || st.UniqueCount != 6 || st.MostCommon != "30" || st.MissingValuesPercent != 12.5 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	c := NewClient(srv.URL, 5*time.Second, 3, 0, 0)
	start := time.Now()
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected at least ~1s delay due to Retry-After, got %v", elapsed)
	}
}

func TestNotFoundIsTypedAndNotRetried(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("X-Request-Id", "req_42")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "Session not found"})
	}))
	_, err := testClient(srv.URL, 3).Distribution(context.Background(), "nope", "age")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T %v", err, err)
	}
	if nf.Message != "Session not found" || !strings.Contains(err.Error(), "req_42") {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("404 should not be retried, got %d hits", hits)
	}
}

func TestServerErrorAfterRetriesExhausted(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom", "code": "internal"}})
	}))
	_, err := testClient(srv.URL, 2).Correlation(context.Background(), "s1")
	var se *ServerError
	if !errors.As(err, &se) || se.Code != "internal" {
		t.Fatalf("expected ServerError, got %T %v", err, err)
	}
}

func TestUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open local listener: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	err = testClient("http://"+addr, 1).Health(context.Background())
	var ue *UnreachableError
	if !errors.As(err, &ue) || ue.Host != addr {
		t.Fatalf("expected UnreachableError for %s, got %T %v", addr, err, err)
	}
}

func TestCancelledContext(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := testClient(srv.URL, 3).Health(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMissingBaseURL(t *testing.T) {
	if err := NewClient("", 0, 0, 0, 0).Health(context.Background()); err == nil {
		t.Fatalf("expected error without base url")
	}
}

func TestPathEscaping(t *testing.T) {
	var got string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"distribution":[]}`))
	}))
	if _, err := testClient(srv.URL+"/", 1).Distribution(context.Background(), "s 1", "unit/price"); err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	if got != "/sessions/s%201/distribution/unit%2Fprice" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestDistributionShapes(t *testing.T) {
	cases := map[string]struct {
		body   string
		labels []string
		counts []int
	}{
		"labelled": {`{"distribution":[{"bin_label":"0-10","count":3},{"bin":20,"frequency":4.0}]}`, []string{"0-10", "20"}, []int{3, 4}},
		"parallel": {`{"bins":["a","b"],"counts":[1,2]}`, []string{"a", "b"}, []int{1, 2}},
		"edges":    {`{"bins":[0,5,10],"counts":[2,7]}`, []string{"0 - 5", "5 - 10"}, []int{2, 7}},
	}
	for name, tc := range cases {
		var d Distribution
		if err := json.Unmarshal([]byte(tc.body), &d); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(d.Bins) != len(tc.labels) {
			t.Fatalf("%s: got %d bins", name, len(d.Bins))
		}
		for i := range tc.labels {
			if d.Bins[i].Label != tc.labels[i] || d.Bins[i].Count != tc.counts[i] {
				t.Fatalf("%s: bin %d = %+v", name, i, d.Bins[i])
			}
		}
	}
	var bad Distribution
	if err := json.Unmarshal([]byte(`{"bins":[1,2,3,4],"counts":[1]}`), &bad); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestDistributionEncodesCanonicalShape(t *testing.T) {
	d := DistributionFromHistogram(profile.Histogram{Column: "c", Categories: []profile.CategoryCount{{Category: "x", Count: 2}}})
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"column":"c","distribution":[{"bin_label":"x","count":2}]}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestCorrelationShapes(t *testing.T) {
	list := `{"correlation":[{"column1":"a","column2":"b","correlation":0.5},{"column1":"a","column2":"c","correlation":null}]}`
	var c Correlation
	if err := json.Unmarshal([]byte(list), &c); err != nil {
		t.Fatal(err)
	}
	if r, ok := c.Get("b", "a"); !ok || r != 0.5 {
		t.Fatalf("Get(b,a) = %v %v", r, ok)
	}
	if _, ok := c.Get("a", "c"); ok {
		t.Fatalf("null correlation should be undefined")
	}
	if strings.Join(c.Columns, ",") != "a,b,c" {
		t.Fatalf("columns %v", c.Columns)
	}

	matrix := `{"correlation_matrix":{"x":{"x":1,"y":-0.8},"y":{"x":-0.8,"y":1}}}`
	var m Correlation
	if err := json.Unmarshal([]byte(matrix), &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Pairs) != 1 || m.Pairs[0].Column1 != "x" || *m.Pairs[0].Correlation != -0.8 {
		t.Fatalf("unexpected pairs %+v", m.Pairs)
	}

	var empty Correlation
	if err := json.Unmarshal([]byte(`{"correlations":null}`), &empty); err != nil || len(empty.Pairs) != 0 {
		t.Fatalf("empty payload: %v %+v", err, empty)
	}
}

func TestConverters(t *testing.T) {
	vals := []profile.Value{profile.Number(1, ""), profile.Number(2, ""), profile.Number(3, ""), profile.Missing()}
	p := profile.ProfileValues("n", vals, profile.TypeNumeric)
	st := StatisticsFromProfile(p)
	if st.Mean == nil || *st.Mean != 2 || st.Count != 4 || st.MissingValuesPercent != 25 || st.Type != "numeric" {
		t.Fatalf("unexpected stats %+v", st)
	}

	cp := profile.ProfileValues("c", []profile.Value{profile.Text("a"), profile.Text("a"), profile.Text("b")}, profile.TypeCategorical)
	cs := StatisticsFromProfile(cp)
	if cs.Mean != nil || cs.MostCommon != "a" {
		t.Fatalf("unexpected categorical stats %+v", cs)
	}

	corr := CorrelationFromMatrix(&profile.CorrMatrix{Columns: []string{"a", "b"}, Values: [][]float64{{1, 0.25}, {0.25, 1}}})
	if r, ok := corr.Get("a", "b"); !ok || r != 0.25 {
		t.Fatalf("unexpected correlation %+v", corr)
	}
	if got := CorrelationFromMatrix(nil); got.Pairs == nil || got.Columns == nil {
		t.Fatalf("nil matrix should encode empty lists")
	}
}

func TestDistributionLabelsKeepNarrowBinsDistinct(t *testing.T) {
	var vals []profile.Value
	for _, x := range []float64{0.001, 0.0015, 0.002, 0.003, 0.004, 0.005} {
		vals = append(vals, profile.Number(x, ""))
	}
	d := DistributionFromHistogram(profile.BuildHistogram(vals, profile.TypeNumeric))
	seen := map[string]bool{}
	for _, b := range d.Bins {
		if seen[b.Label] {
			t.Fatalf("duplicate label %q in %+v", b.Label, d.Bins)
		}
		seen[b.Label] = true
	}
	if got := d.Bins[0].Label; got != "0.001 - 0.0018" {
		t.Fatalf("first label = %q", got)
	}

	wide := DistributionFromHistogram(profile.Histogram{Bins: []profile.Bin{{BinStart: 0, BinEnd: 12.5, Count: 1}}})
	if got := wide.Bins[0].Label; got != "0 - 12.5" {
		t.Fatalf("label = %q", got)
	}
}
