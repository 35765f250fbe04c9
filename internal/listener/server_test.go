package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/payload-listener/internal/models"
	"github.com/HanTheDev/payload-listener/internal/render"
)

// syncBuffer collects log output written from handler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSuffix(b.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type chanRecorder chan *models.Observation

func (c chanRecorder) Record(_ context.Context, obs *models.Observation) error {
	c <- obs
	return nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	srv := New(log.New(out, "", 0), opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, out
}

func send(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp
}

func assertNoContent(t *testing.T, resp *http.Response) {
	t.Helper()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "204 No Content", resp.Status)
	assert.Zero(t, resp.ContentLength)
}

func TestObjectBody(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	resp := send(t, ts, http.MethodPost, "/foo", `{"a":1,"b":"x"}`)
	assertNoContent(t, resp)
	assert.Equal(t, []string{"POST /foo", "end", "{ a: 1, b: 'x' }"}, out.lines())
}

func TestBareBigInteger(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	resp := send(t, ts, http.MethodGet, "/", `123456789012345678901234567890`)
	assertNoContent(t, resp)
	assert.Equal(t, []string{"GET /", "end", "123456789012345678901234567890n"}, out.lines())
}

func TestBigIntegerKeepsDigits(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	resp := send(t, ts, http.MethodPost, "/ids", `{"max":9223372036854775807,"list":[9007199254740993]}`)
	assertNoContent(t, resp)
	assert.Equal(t, "{ max: 9223372036854775807n, list: [ 9007199254740993n ] }", out.lines()[2])
}

func TestMalformedBodyDropsConnection(t *testing.T) {
	rec := make(chanRecorder, 1)
	ts, out := newTestServer(t, Options{Recorders: []Recorder{rec}})

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/x", strings.NewReader("not json"))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)

	lines := out.lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "PUT /x", lines[0])
	assert.Equal(t, "end", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "parse body: "), lines[2])

	select {
	case obs := <-rec:
		assert.Equal(t, "not json", obs.Body)
		assert.NotEmpty(t, obs.ParseError)
		assert.Empty(t, obs.Rendered)
		assert.False(t, obs.Parsed())
	case <-time.After(5 * time.Second):
		t.Fatal("observation not recorded")
	}
}

func TestTrailingDataIsRejected(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", strings.NewReader(`{"a":1} {"b":2}`))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, out.lines(), "parse body: unexpected data after top-level value")
}

func TestEveryMethodAndPath(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	methods := []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, "PURGE",
	}
	paths := []string{"/", "/a/b/c", "/a/../b", "/q?x=1&y=2", "/%7Euser"}

	for _, method := range methods {
		for _, path := range paths {
			t.Run(method+" "+path, func(t *testing.T) {
				resp := send(t, ts, method, path, `{}`)
				assertNoContent(t, resp)
			})
		}
	}

	lines := out.lines()
	assert.Contains(t, lines, "GET /a/../b")
	assert.Contains(t, lines, "PURGE /q?x=1&y=2")
	assert.Contains(t, lines, "DELETE /%7Euser")
	assert.Equal(t, len(methods)*len(paths)*3, len(lines))
}

func TestConcurrentSlowBodies(t *testing.T) {
	ts, out := newTestServer(t, Options{})
	client := ts.Client()

	type result struct {
		resp *http.Response
		err  error
	}
	start := func(path string, body io.Reader) <-chan result {
		ch := make(chan result, 1)
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, body)
		require.NoError(t, err)
		go func() {
			resp, err := client.Do(req)
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			ch <- result{resp, err}
		}()
		return ch
	}

	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	done1 := start("/one", r1)
	done2 := start("/two", r2)

	chunks := []struct {
		w    *io.PipeWriter
		data string
	}{
		{w1, `{"client":`},
		{w2, `[1,`},
		{w1, `"one",`},
		{w2, `2,`},
		{w1, `"n":1}`},
		{w2, `3]`},
	}
	for _, c := range chunks {
		_, err := c.w.Write([]byte(c.data))
		require.NoError(t, err)
	}
	require.NoError(t, w1.Close())
	require.NoError(t, w2.Close())

	for _, done := range []<-chan result{done1, done2} {
		res := <-done
		require.NoError(t, res.err)
		assertNoContent(t, res.resp)
	}

	lines := out.lines()
	assert.Contains(t, lines, "POST /one")
	assert.Contains(t, lines, "POST /two")
	assert.Contains(t, lines, "{ client: 'one', n: 1 }")
	assert.Contains(t, lines, "[ 1, 2, 3 ]")
	assert.Len(t, lines, 6)
}

func TestRepeatedRequestsAreIndependent(t *testing.T) {
	rec := make(chanRecorder, 2)
	ts, out := newTestServer(t, Options{Recorders: []Recorder{rec}})

	for i := 0; i < 2; i++ {
		assertNoContent(t, send(t, ts, http.MethodPost, "/same", `{"k":[true,null]}`))
	}

	entry := []string{"POST /same", "end", "{ k: [ true, null ] }"}
	assert.Equal(t, append(append([]string{}, entry...), entry...), out.lines())

	for i := 0; i < 2; i++ {
		select {
		case obs := <-rec:
			assert.Equal(t, http.MethodPost, obs.Method)
			assert.Equal(t, "/same", obs.URL)
			assert.Equal(t, `{"k":[true,null]}`, obs.Body)
			assert.EqualValues(t, 17, obs.BodySize)
			assert.Equal(t, "{ k: [ true, null ] }", obs.Rendered)
			assert.True(t, obs.Parsed())
			assert.False(t, obs.ReceivedAt.IsZero())
		case <-time.After(5 * time.Second):
			t.Fatal("observation not recorded")
		}
	}
}

func TestRecorderErrorIsLogged(t *testing.T) {
	failing := RecorderFunc(func(context.Context, *models.Observation) error {
		return errors.New("redis down")
	})
	ts, out := newTestServer(t, Options{Recorders: []Recorder{failing}})

	assertNoContent(t, send(t, ts, http.MethodPost, "/", `1`))
	require.Eventually(t, func() bool {
		for _, l := range out.lines() {
			if l == "record observation: redis down" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMaxBodyBytes(t *testing.T) {
	ts, out := newTestServer(t, Options{MaxBodyBytes: 8})

	assertNoContent(t, send(t, ts, http.MethodPost, "/small", `[1,2]`))

	resp := send(t, ts, http.MethodPost, "/big", `{"a":"0123456789"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	lines := out.lines()
	assert.Contains(t, lines, "body exceeds 8 bytes")
	assert.NotContains(t, lines[3:], "end")
}

func TestRenderFormatOption(t *testing.T) {
	r, err := render.New(render.Options{Format: render.FormatJSON})
	require.NoError(t, err)
	ts, out := newTestServer(t, Options{Renderer: r})

	assertNoContent(t, send(t, ts, http.MethodPost, "/", `{"id":123456789012345678901234567890}`))
	assert.Equal(t, []string{"POST /", "end", "{", `  "id": 123456789012345678901234567890`, "}"}, out.lines())
}

func TestClientDisconnectMidBody(t *testing.T) {
	ts, out := newTestServer(t, Options{})

	conn, err := net.Dial("tcp", ts.Listener.Addr().String())
	require.NoError(t, err)
	_, err = fmt.Fprint(conn, "POST /slow HTTP/1.1\r\nHost: test\r\nContent-Length: 100\r\n\r\n{\"a\":")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		lines := out.lines()
		return len(lines) == 2 && strings.HasPrefix(lines[1], "read body: ")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "POST /slow", out.lines()[0])
}

func TestBindAndServe(t *testing.T) {
	out := &syncBuffer{}
	srv := New(log.New(out, "", 0), Options{})

	l, err := srv.Bind(context.Background(), "tcp4", "127.0.0.1", 0)
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	assert.Equal(t, []string{fmt.Sprintf("server listening on 127.0.0.1:%d", port)}, out.lines())
	assert.Equal(t, []net.Addr{l.Addr()}, srv.Addrs())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	resp, err := http.Post(fmt.Sprintf("http://%s/served", l.Addr()), "application/json", strings.NewReader(`"hi"`))
	require.NoError(t, err)
	resp.Body.Close()
	assertNoContent(t, resp)
	assert.Equal(t, "hi", out.lines()[3])

	require.NoError(t, srv.Close())
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestServeWithoutListeners(t *testing.T) {
	srv := New(log.New(io.Discard, "", 0), Options{})
	require.ErrorIs(t, srv.Serve(), ErrNoListeners)
}

func TestBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	srv := New(log.New(io.Discard, "", 0), Options{})
	_, err = srv.Bind(context.Background(), "tcp4", "127.0.0.1", port)
	require.Error(t, err)
	assert.Empty(t, srv.Addrs())
}

func ipv6Available() bool {
	l, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		return false
	}
	l.Close()
	return true
}

func TestBindWildcards(t *testing.T) {
	out := &syncBuffer{}
	srv := New(log.New(out, "", 0), Options{})
	defer srv.Close()

	require.NoError(t, srv.BindWildcards(context.Background(), 0, false))

	lines := out.lines()
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "server listening on 0.0.0.0:"), lines[0])
	if ipv6Available() {
		require.Len(t, srv.Addrs(), 2)
		assert.True(t, strings.HasPrefix(lines[1], "server listening on :::"), lines[1])
	}
}

func TestBindWildcardsSecondFamilyPolicy(t *testing.T) {
	if !ipv6Available() {
		t.Skip("IPv6 is not available")
	}

	taken, err := net.Listen("tcp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	lenient := New(log.New(io.Discard, "", 0), Options{})
	defer lenient.Close()
	require.NoError(t, lenient.BindWildcards(context.Background(), port, false))
	assert.Len(t, lenient.Addrs(), 1)

	strict := New(log.New(io.Discard, "", 0), Options{})
	defer strict.Close()
	require.Error(t, strict.BindWildcards(context.Background(), port, true))
}
