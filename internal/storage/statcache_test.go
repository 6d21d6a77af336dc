package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type memKV struct {
	mu   sync.Mutex
	m    map[string][]byte
	fail bool
}

func newMemKV() *memKV { return &memKV{m: map[string][]byte{}} }

func (k *memKV) Get(_ context.Context, key string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.fail {
		return nil, errors.New("redis down")
	}
	b, ok := k.m[key]
	if !ok {
		return nil, errCacheMiss
	}
	return b, nil
}

func (k *memKV) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.fail {
		return errors.New("redis down")
	}
	k.m[key] = val
	return nil
}

func (k *memKV) Del(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}

type countingObjects struct {
	data  map[string][]byte
	stats int
}

func (o *countingObjects) Stat(_ context.Context, key string) (ObjectInfo, error) {
	o.stats++
	b, ok := o.data[key]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Size: int64(len(b)), ContentType: "video/mp4"}, nil
}

func (o *countingObjects) Open(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	b := o.data[key]
	if end < 0 {
		end = int64(len(b)) - 1
	}
	return io.NopCloser(bytes.NewReader(b[start : end+1])), nil
}

func (o *countingObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.data[key] = b
	return nil
}

func TestCachedObjects_StatHitsStoreOnce(t *testing.T) {
	inner := &countingObjects{data: map[string][]byte{"a": []byte("hello")}}
	c := WithStatCache(inner, newMemKV(), time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := c.Stat(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		if info.Size != 5 {
			t.Fatalf("size %d", info.Size)
		}
	}
	if inner.stats != 1 {
		t.Fatalf("expected one backend stat, got %d", inner.stats)
	}

	if err := c.Put(ctx, "a", strings.NewReader("hello world"), 11, "video/mp4"); err != nil {
		t.Fatal(err)
	}
	info, _ := c.Stat(ctx, "a")
	if info.Size != 11 {
		t.Fatalf("stale stat after put: %d", info.Size)
	}
}

func TestCachedObjects_CacheFailureFallsThrough(t *testing.T) {
	inner := &countingObjects{data: map[string][]byte{"a": []byte("xyz")}}
	kv := newMemKV()
	kv.fail = true
	c := WithStatCache(inner, kv, time.Minute, nil)

	info, err := c.Stat(context.Background(), "a")
	if err != nil || info.Size != 3 {
		t.Fatalf("stat: %+v %v", info, err)
	}
	if _, err := c.Stat(context.Background(), "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
