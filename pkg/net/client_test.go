package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client, err := GetHTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, client.Jar)
}

func TestPrintHTTPResponse_Nil(t *testing.T) {
	// should not panic
	PrintHTTPResponse(nil)
}

func TestPrintHTTPResponse_WithResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	// should not panic
	PrintHTTPResponse(resp)
}

type echoItem struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in []echoItem
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		for i := range in {
			in[i].Value *= 2
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	var out []echoItem
	err := PostJSON(context.Background(), srv.URL, []echoItem{{ID: "a", Value: 1.5}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.InDelta(t, 3.0, out[0].Value, 1e-9)
}

func TestPostJSON_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing columns: tenure_months"}`))
	}))
	defer srv.Close()

	var out []echoItem
	err := PostJSON(context.Background(), srv.URL, []echoItem{}, &out)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "missing columns: tenure_months")
}

func TestPostJSON_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := PostJSON[[]echoItem, []echoItem](context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Contains(t, err.Error(), "boom")
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","value":2}`))
	}))
	defer srv.Close()

	var out echoItem
	require.NoError(t, GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "x", out.ID)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("artifact"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, Download(context.Background(), srv.URL+"/model.json", path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(b))

	err = Download(context.Background(), srv.URL+"/missing", filepath.Join(dir, "x"))
	assert.ErrorIs(t, err, ErrorURLNotFound)
	_, err = os.Stat(filepath.Join(dir, "x"))
	assert.True(t, os.IsNotExist(err))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/model.json"))
	assert.True(t, IsURL("http://localhost:8080"))
	assert.False(t, IsURL("model.json"))
}
