package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const PreservationBucket = "preservation"

// S3Object is an object to upload to S3Server.
type S3Object struct {
	Body string

	// Metadata holds user metadata names without the x-amz-meta-
	// prefix.
	Metadata map[string]string

	// Truncate makes GET send only the first half of Body while still
	// promising the whole thing in Content-Length.
	Truncate bool
}

// S3Server is a gofakes3 server holding one empty bucket.
type S3Server struct {
	server *httptest.Server
	URL    string
	Host   string
	Bucket string

	t         testing.TB
	client    *minio.Client
	mutex     sync.RWMutex
	truncated map[string]int
}

// StartS3Server starts a server that shuts down when t ends.
func StartS3Server(t testing.TB) *S3Server {
	t.Helper()
	backend := s3mem.New()
	if err := backend.CreateBucket(PreservationBucket); err != nil {
		t.Fatalf("cannot create bucket %s: %v", PreservationBucket, err)
	}
	faker := gofakes3.New(backend)
	s := &S3Server{
		Bucket:    PreservationBucket,
		t:         t,
		truncated: make(map[string]int),
	}
	s.server = httptest.NewServer(s.truncating(faker.Server()))
	s.URL = s.server.URL
	s.Host = strings.TrimPrefix(s.server.URL, "http://")
	t.Cleanup(s.server.Close)

	client, err := minio.New(s.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("cannot create S3 client for %s: %v", s.Host, err)
	}
	s.client = client
	return s
}

// Put uploads obj under key through the minio client.
func (s *S3Server) Put(key string, obj *S3Object) {
	s.t.Helper()
	_, err := s.client.PutObject(
		context.Background(),
		s.Bucket,
		key,
		strings.NewReader(obj.Body),
		int64(len(obj.Body)),
		minio.PutObjectOptions{
			ContentType:          "application/octet-stream",
			UserMetadata:         obj.Metadata,
			DisableContentSha256: true,
		})
	if err != nil {
		s.t.Fatalf("cannot upload %s: %v", key, err)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if obj.Truncate {
		s.truncated[key] = len(obj.Body) / 2
	} else {
		delete(s.truncated, key)
	}
}

func (s *S3Server) Close() {
	s.server.Close()
}

// truncating cuts GET bodies short for keys uploaded with Truncate.
// The server closes the connection when the handler writes less than
// Content-Length, so the client sees an unexpected EOF.
func (s *S3Server) truncating(next http.Handler) http.Handler {
	prefix := "/" + s.Bucket + "/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, prefix) {
			s.mutex.RLock()
			limit, ok := s.truncated[strings.TrimPrefix(r.URL.Path, prefix)]
			s.mutex.RUnlock()
			if ok {
				w = &shortWriter{ResponseWriter: w, remaining: limit}
			}
		}
		next.ServeHTTP(w, r)
	})
}

type shortWriter struct {
	http.ResponseWriter
	remaining int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > w.remaining {
		p = p[:w.remaining]
	}
	if len(p) > 0 {
		if _, err := w.ResponseWriter.Write(p); err != nil {
			return 0, err
		}
		w.remaining -= len(p)
	}
	return n, nil
}
