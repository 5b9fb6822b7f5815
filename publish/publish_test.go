package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensourceways/robot-codearts-gate/retry"
)

type fakeDownloader struct {
	content string
	keys    []string
}

func (f *fakeDownloader) Download(ctx context.Context, key, localPath string) error {
	f.keys = append(f.keys, key)
	return os.WriteFile(localPath, []byte(f.content), 0o644)
}

type releaseBody struct {
	TagName         string `json:"tag_name"`
	Name            string `json:"name"`
	Body            string `json:"body"`
	Prerelease      bool   `json:"prerelease"`
	TargetCommitish string `json:"target_commitish"`
}

type giteeServer struct {
	release     releaseBody
	token       string
	attachToken string
	attachName  string
	attachBody  string
	createCalls int
	failCreate  int
	createCode  int
}

func (s *giteeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v5/repos/ascend/mindstudio/releases", func(w http.ResponseWriter, r *http.Request) {
		s.createCalls++
		s.token = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")

		if s.createCalls <= s.failCreate {
			w.WriteHeader(s.createCode)
			return
		}

		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.release))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "tag_name": "v1.0.0"}`))
	})

	mux.HandleFunc("/v5/repos/ascend/mindstudio/releases/42/attach_files", func(w http.ResponseWriter, r *http.Request) {
		s.attachToken = r.Header.Get("Authorization")

		f, h, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()

		b, _ := io.ReadAll(f)
		s.attachName = h.Filename
		s.attachBody = string(b)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1}`))
	})

	return mux
}

func testTask(dir string) Task {
	return Task{
		Owner:     "ascend",
		Repo:      "mindstudio",
		ObjectKey: "release/mindstudio-1.0.0.tar.gz",
		FileName:  "mindstudio-1.0.0.tar.gz",
		LocalDir:  dir,
		Release: Release{
			TagName:         "v1.0.0",
			Name:            "Release For v1.0.0",
			Body:            "first release",
			TargetCommitish: "abc123",
		},
	}
}

var testPolicy = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}

func TestPublish(t *testing.T) {
	s := &giteeServer{}
	server := httptest.NewServer(s.handler(t))
	defer server.Close()

	d := &fakeDownloader{content: "artifact"}
	p := NewPublisher(d, NewClient(server.URL, "secret", server.Client()), testPolicy)

	id, err := p.Publish(context.Background(), testTask(t.TempDir()), logrus.WithField("test", true))
	require.NoError(t, err)

	assert.Equal(t, int64(42), id)
	assert.Equal(t, []string{"release/mindstudio-1.0.0.tar.gz"}, d.keys)
	assert.Equal(t, "Bearer secret", s.token)
	assert.Equal(t, "Bearer secret", s.attachToken)
	assert.Equal(t, "Release For v1.0.0", s.release.Name)
	assert.Equal(t, "v1.0.0", s.release.TagName)
	assert.Equal(t, "abc123", s.release.TargetCommitish)
	assert.False(t, s.release.Prerelease)
	assert.Equal(t, "mindstudio-1.0.0.tar.gz", s.attachName)
	assert.Equal(t, "artifact", s.attachBody)
}

func TestPublishRetriesServerErrors(t *testing.T) {
	s := &giteeServer{failCreate: 2, createCode: http.StatusBadGateway}
	server := httptest.NewServer(s.handler(t))
	defer server.Close()

	p := NewPublisher(&fakeDownloader{}, NewClient(server.URL, "secret", server.Client()), testPolicy)

	id, err := p.Publish(context.Background(), testTask(t.TempDir()), logrus.WithField("test", true))
	require.NoError(t, err)

	assert.Equal(t, int64(42), id)
	assert.Equal(t, 3, s.createCalls)
}

func TestPublishStopsOnClientErrors(t *testing.T) {
	s := &giteeServer{failCreate: 3, createCode: http.StatusUnprocessableEntity}
	server := httptest.NewServer(s.handler(t))
	defer server.Close()

	p := NewPublisher(&fakeDownloader{}, NewClient(server.URL, "secret", server.Client()), testPolicy)

	_, err := p.Publish(context.Background(), testTask(t.TempDir()), logrus.WithField("test", true))
	assert.Error(t, err)
	assert.Equal(t, 1, s.createCalls)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
}

func TestTaskValidate(t *testing.T) {
	task := testTask(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, task.Validate())

	task.Release.TagName = ""
	assert.Error(t, task.Validate())
}
