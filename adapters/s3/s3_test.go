package s3_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geargrid/adapters/s3"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        string(data),
	})
	f.mu.Unlock()
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, f.body)
}

func newTestOperator(t *testing.T, handler http.Handler, publicBase string) *s3.S3Operator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := awsS3.New(awsS3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("id", "secret", ""),
	})
	operator, err := s3.NewS3Operator(client, "car-images", publicBase)
	require.NoError(t, err)
	return operator
}

func TestNewS3Operator(t *testing.T) {
	_, err := s3.NewS3Operator(nil, "", "https://cdn.example.com")
	assert.Error(t, err)

	operator, err := s3.NewS3Operator(nil, "car-images", "https://cdn.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", operator.PublicEndpoint.String())
}

func TestS3Operator_PublicURL(t *testing.T) {
	operator, err := s3.NewS3Operator(nil, "car-images", "https://cdn.example.com/media")
	require.NoError(t, err)

	got, err := operator.PublicURL(context.Background(), "cars/abc/image-1-0-xyz.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/cars/abc/image-1-0-xyz.png", got)

	_, err = operator.PublicURL(context.Background(), "")
	assert.Error(t, err)
}

func TestS3Operator_ExtractKey(t *testing.T) {
	operator, err := s3.NewS3Operator(nil, "car-images", "https://cdn.example.com")
	require.NoError(t, err)

	tests := []struct {
		name    string
		url     string
		wantKey string
		wantOk  bool
	}{
		{
			name:    "legacy hosted storage URL",
			url:     "https://xyz.supabase.co/storage/v1/object/public/car-images/cars/abc/image-1.png",
			wantKey: "cars/abc/image-1.png",
			wantOk:  true,
		},
		{
			name:    "path-style URL",
			url:     "https://s3.example.com/car-images/cars/abc/image-2.webp",
			wantKey: "cars/abc/image-2.webp",
			wantOk:  true,
		},
		{
			name:    "public base URL",
			url:     "https://cdn.example.com/cars/abc/image-3.jpeg",
			wantKey: "cars/abc/image-3.jpeg",
			wantOk:  true,
		},
		{
			name:   "public base URL outside the cars prefix",
			url:    "https://cdn.example.com/avatars/abc.png",
			wantOk: false,
		},
		{
			name:   "other bucket",
			url:    "https://s3.example.com/other-bucket/cars/abc/image.png",
			wantOk: false,
		},
		{
			name:   "not a URL",
			url:    "://broken",
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := operator.ExtractKey(tt.url)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestS3Operator_Upload(t *testing.T) {
	fake := &fakeS3{}
	operator := newTestOperator(t, fake, "https://cdn.example.com")

	err := operator.Upload(context.Background(), "cars/abc/image.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/car-images/cars/abc/image.png", req.path)
	assert.Equal(t, "image/png", req.contentType)
	assert.Equal(t, "png-bytes", req.body)
}

func TestS3Operator_UploadFailure(t *testing.T) {
	fake := &fakeS3{status: http.StatusForbidden, body: `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`}
	operator := newTestOperator(t, fake, "https://cdn.example.com")

	err := operator.Upload(context.Background(), "cars/abc/image.png", "image/png", []byte("png-bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Fail to upload file to S3")
}

func TestS3Operator_Remove(t *testing.T) {
	t.Run("all deleted", func(t *testing.T) {
		fake := &fakeS3{body: `<?xml version="1.0" encoding="UTF-8"?><DeleteResult></DeleteResult>`}
		operator := newTestOperator(t, fake, "https://cdn.example.com")

		err := operator.Remove(context.Background(), []string{"cars/abc/1.png", "cars/abc/2.png"})
		require.NoError(t, err)
		require.Len(t, fake.requests, 1)
		assert.Equal(t, http.MethodPost, fake.requests[0].method)
		assert.Contains(t, fake.requests[0].body, "cars/abc/1.png")
		assert.Contains(t, fake.requests[0].body, "cars/abc/2.png")
	})

	t.Run("per object errors are reported", func(t *testing.T) {
		fake := &fakeS3{body: `<?xml version="1.0" encoding="UTF-8"?><DeleteResult><Error><Key>cars/abc/1.png</Key><Code>AccessDenied</Code><Message>denied</Message></Error></DeleteResult>`}
		operator := newTestOperator(t, fake, "https://cdn.example.com")

		err := operator.Remove(context.Background(), []string{"cars/abc/1.png"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cars/abc/1.png")
	})

	t.Run("no keys", func(t *testing.T) {
		fake := &fakeS3{}
		operator := newTestOperator(t, fake, "https://cdn.example.com")

		require.NoError(t, operator.Remove(context.Background(), nil))
		assert.Empty(t, fake.requests)
	})
}

func TestNewClient_SingleAttempt(t *testing.T) {
	fake := &fakeS3{status: http.StatusServiceUnavailable, body: `<Error><Code>SlowDown</Code><Message>busy</Message></Error>`}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := s3.NewClient(context.Background(), s3.ClientConfig{
		Endpoint:        server.URL,
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	operator, err := s3.NewS3Operator(client, "car-images", "https://cdn.example.com")
	require.NoError(t, err)

	err = operator.Upload(context.Background(), "cars/abc/image.png", "image/png", []byte("png-bytes"))
	require.Error(t, err)
	assert.Len(t, fake.requests, 1)

	err = operator.Remove(context.Background(), []string{"cars/abc/image.png"})
	require.Error(t, err)
	assert.Len(t, fake.requests, 2)
}
