package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONReturnsBody(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	var observed int
	client := NewClient(nil, func(url string, status int, took time.Duration, err error) {
		observed = status
	})

	resp, err := client.PostJSON(context.Background(), srv.URL, time.Second, map[string]interface{}{"data": []int{1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Body))
	assert.Equal(t, http.StatusOK, observed)
	assert.Contains(t, received, "data")
	assert.False(t, resp.ReportsError())
}

func TestPostJSONNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "sheet locked")
	}))
	defer srv.Close()

	_, err := NewClient(nil, nil).PostJSON(context.Background(), srv.URL, time.Second, struct{}{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "sheet locked", statusErr.Body)
}

func TestPostJSONTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(nil, nil).PostJSON(context.Background(), srv.URL, 20*time.Millisecond, struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPostJSONRequiresURL(t *testing.T) {
	_, err := NewClient(nil, nil).PostJSON(context.Background(), "", time.Second, struct{}{})
	require.Error(t, err)
}

func TestReportsError(t *testing.T) {
	cases := map[string]bool{
		`{"Error":"teacher missing"}`: true,
		`{"Error":true}`:              true,
		`{"Error":""}`:                false,
		`{"Error":null}`:              false,
		`{"ok":1}`:                    false,
		`Error: not found`:            true,
		`accepted`:                    false,
		``:                            false,
	}
	for body, want := range cases {
		assert.Equal(t, want, (&Response{Body: []byte(body)}).ReportsError(), body)
	}
}
