package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// RedisServer is an in-process Redis for state index tests.
type RedisServer struct {
	server *miniredis.Miniredis
}

// StartRedisServer starts an empty server that shuts down when t ends.
func StartRedisServer(t testing.TB) *RedisServer {
	t.Helper()
	server := miniredis.RunT(t)
	return &RedisServer{server: server}
}

func (s *RedisServer) Addr() string {
	return s.server.Addr()
}

// Keys returns every key in the server, sorted.
func (s *RedisServer) Keys() []string {
	return s.server.Keys()
}

// Close stops the server early. Later calls fail with connection
// errors, which is how tests simulate an unavailable index.
func (s *RedisServer) Close() {
	s.server.Close()
}

// Del removes key, as if Redis had lost it.
func (s *RedisServer) Del(key string) bool {
	return s.server.Del(key)
}
