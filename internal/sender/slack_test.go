package sender

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filerelay/internal/config"
	"filerelay/internal/models"
)

func newFakeSlack(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/")
		body, ok := responses[method]
		if !ok {
			body = `{"ok":false,"error":"unknown_method"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatPostMessageReturnsTimestamp(t *testing.T) {
	srv := newFakeSlack(t, map[string]string{
		"chat.postMessage": `{"ok":true,"channel":"C123","ts":"1700000000.000100"}`,
	})
	chat := NewChat(config.SlackConfig{Token: "xoxb-test", Channel: "C123", APIURL: srv.URL}, nil)

	ts, err := chat.PostMessage(context.Background(), "[u1] hello\n\nbody")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", ts)
}

func TestChatPostMessageError(t *testing.T) {
	srv := newFakeSlack(t, map[string]string{
		"chat.postMessage": `{"ok":false,"error":"channel_not_found"}`,
	})
	chat := NewChat(config.SlackConfig{Token: "xoxb-test", Channel: "C404", APIURL: srv.URL + "/"}, nil)

	_, err := chat.PostMessage(context.Background(), "hi")
	require.Error(t, err)
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, DestinationSlack, sendErr.Destination)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestChatUploadError(t *testing.T) {
	srv := newFakeSlack(t, map[string]string{
		"files.getUploadURLExternal": `{"ok":false,"error":"not_allowed_token_type"}`,
	})
	chat := NewChat(config.SlackConfig{Token: "xoxb-test", Channel: "C123", APIURL: srv.URL}, nil)

	err := chat.Upload(context.Background(), "1700000000.000100", &models.StagedFile{
		Handle: "h1", FileName: "a.txt", Content: []byte("hi"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Contains(t, err.Error(), "not_allowed_token_type")
}

func TestChatUploadRequiresFile(t *testing.T) {
	chat := NewChat(config.SlackConfig{Token: "xoxb-test", Channel: "C123"}, nil)
	assert.Error(t, chat.Upload(context.Background(), "1", nil))
}
