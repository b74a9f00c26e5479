package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got sendMessageReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", WithBaseURL(srv.URL+"/"))
	require.NoError(t, c.SendMessage(context.Background(), 42, "ฉุกเฉิน"))
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "ฉุกเฉิน", got.Text)
}

func TestSendDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendDocument", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "7", r.FormValue("chat_id"))

		f, hdr, err := r.FormFile("document")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", WithBaseURL(srv.URL))
	require.NoError(t, c.SendDocument(context.Background(), 7, []byte("%PDF-1.4"), "report.pdf"))
}

func TestAPIErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", WithBaseURL(srv.URL))
	err := c.SendMessage(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Contains(t, err.Error(), "400")
}

func TestSendMessageHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient("TOKEN", WithBaseURL(srv.URL))
	assert.ErrorIs(t, c.SendMessage(ctx, 1, "hi"), context.Canceled)
}
