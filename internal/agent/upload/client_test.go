package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return NewClient(srv.URL, "test-token", l)
}

func TestStartAttempt(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video-interviews/start", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(42), body["simulation_id"])

		json.NewEncoder(w).Encode(map[string]int64{"attempt_id": 7})
	}))

	id, err := c.StartAttempt(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestStartAttemptRejectsMissingID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))

	_, err := c.StartAttempt(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing attempt_id")
}

func TestUploadChunkSendsMultipartForm(t *testing.T) {
	var gotKind string
	var gotPayload []byte
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video-interviews/upload-chunk/7", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotKind = r.FormValue("kind")

		f, _, err := r.FormFile("chunk")
		require.NoError(t, err)
		defer f.Close()
		gotPayload, err = io.ReadAll(f)
		require.NoError(t, err)

		io.WriteString(w, `{"status":"ok"}`)
	}))

	err := c.uploadChunk(context.Background(), 7, KindVideo, []byte("webm-bytes"))
	require.NoError(t, err)
	assert.Equal(t, KindVideo, gotKind)
	assert.Equal(t, []byte("webm-bytes"), gotPayload)
}

func TestUploadFinalRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, `{"message":"upstream hiccup"}`)
			return
		}
		io.WriteString(w, `{"status":"ok"}`)
	}))

	err := c.UploadFinal(context.Background(), 7, []byte(`{"pasteCount":0}`))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUploadFinalGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"message":"persistent failure"}`)
	}))

	err := c.UploadFinal(context.Background(), 7, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, int32(finalUploadRetries), calls.Load())
	assert.Contains(t, err.Error(), "persistent failure")
}

func TestFinish(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video-interviews/finish/7", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"status":"processing"}`)
	}))

	require.NoError(t, c.Finish(context.Background(), 7))
}

func TestErrorDetailShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"server envelope", `{"code":"NOT_FOUND","message":"attempt not found"}`, "attempt not found"},
		{"detail string", `{"detail":"Validation failed"}`, "Validation failed"},
		{"detail issue list", `{"detail":[{"msg":"field required"},{"msg":"value too large"}]}`, "field required; value too large"},
		{"garbage body", `<html>nope</html>`, "server returned 500 Internal Server Error"},
		{"empty body", ``, "server returned 500 Internal Server Error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{
				Status:     "500 Internal Server Error",
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader(tc.body)),
			}
			assert.Equal(t, tc.want, ErrorDetail(resp))
		})
	}
}
