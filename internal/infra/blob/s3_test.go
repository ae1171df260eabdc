package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/taskrelay/server/internal/config"
	"github.com/taskrelay/server/internal/modules/model"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  ", want: ""},
		{in: "minio:9000", want: "https://minio:9000"},
		{in: "http://localhost:9000", want: "http://localhost:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeEndpoint(tt.in), tt.in)
	}
}

func TestTranscriptKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 23, 0, 0, 0, time.FixedZone("x", -2*3600))
	assert.Equal(t, "transcripts/abc/2026/03/05/ff.json", TranscriptKey("abc", at, "ff"))
}

func TestArchiveTranscript(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   []byte
		header http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		header = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{S3: config.S3Cfg{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		AccessKey:    "ak",
		SecretKey:    "sk",
		Bucket:       "archive",
		UsePathStyle: true,
	}}
	s, err := NewS3(context.Background(), cfg)
	require.NoError(t, err)

	task := model.NewTask("open the browser", model.ModelDescriptor{Provider: "anthropic", Name: "claude-sonnet-4-20250514"})
	task.Status = model.TaskStatusCompleted
	msgs := []*model.Message{
		model.NewMessage(task.ID, model.RoleUser, []model.ContentBlock{model.NewTextBlock("go")}),
	}

	meta, err := s.ArchiveTranscript(context.Background(), task, msgs)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "archive", meta.Bucket)
	assert.True(t, strings.HasPrefix(meta.Key, "transcripts/"+task.ID.String()+"/"))
	assert.Equal(t, "/archive/"+meta.Key, path)
	assert.Equal(t, `"etag-1"`, meta.ETag)
	assert.Equal(t, "COMPLETED", header.Get("X-Amz-Meta-Status"))
	assert.Equal(t, meta.SHA256, header.Get("X-Amz-Meta-Sha256"))

	// the payload may arrive chunk-encoded, so look for the document inside it
	raw := string(body)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	require.True(t, start >= 0 && end > start)
	doc := gjson.Parse(raw[start : end+1])
	assert.Equal(t, task.ID.String(), doc.Get("task.id").String())
	assert.Equal(t, "go", doc.Get("messages.0.content.0.text").String())
	assert.True(t, doc.Get("archived_at").Exists())
}
