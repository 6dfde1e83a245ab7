//go:build integration

package forum

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	rdb, err := Conn(ctx, host, port.Port(), "", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	cache := NewRedisCache(rdb)
	key := CacheKey(Query{Keywords: []string{"a"}})
	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	want := Result{Documents: []Document{{ID: "t3_x", Title: "hello", Score: 3}}}
	if err := cache.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, key)
	if err != nil || !ok || len(got.Documents) != 1 || got.Documents[0].Title != "hello" {
		t.Fatalf("get = %+v ok=%v err=%v", got, ok, err)
	}
}
