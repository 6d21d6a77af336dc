package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/storage"
)

const chunkSize = 64 << 10

type Proxy struct {
	objects storage.Objects
	log     *zap.Logger
}

func NewProxy(objects storage.Objects, log *zap.Logger) *Proxy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Proxy{objects: objects, log: log}
}

// Serve отдаёт объект key с поддержкой одиночного Range.
// Ошибка возвращается только если ответ ещё не начат; дальше Serve пишет сам.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, key string) error {
	ctx := r.Context()
	info, err := p.objects.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")

	rng, err := ParseRange(r.Header.Get("Range"), info.Size)
	if errors.Is(err, ErrUnsatisfiableRange) {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		metrics.ObserveStream(http.StatusRequestedRangeNotSatisfiable, 0)
		return nil
	}

	status := http.StatusOK
	start, end := int64(0), int64(-1)
	length := info.Size
	if rng != nil {
		status = http.StatusPartialContent
		start, end = rng.Start, rng.End
		length = rng.Length()
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, info.Size))
	}

	if r.Method == http.MethodHead {
		h.Set("Content-Type", info.ContentType)
		h.Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(status)
		metrics.ObserveStream(status, 0)
		return nil
	}

	body, err := p.objects.Open(ctx, key, start, end)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	closeBody := closeOnce(body)
	defer closeBody()
	// обрыв клиента закрывает чтение из хранилища, даже если Read сейчас заблокирован
	stop := context.AfterFunc(ctx, closeBody)
	defer stop()

	h.Set("Content-Type", info.ContentType)
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	n, err := copyChunks(ctx, w, body)
	metrics.ObserveStream(status, n)
	if err != nil && ctx.Err() == nil {
		p.log.Warn("stream aborted", zap.String("key", key), zap.Int64("written", n), zap.Error(err))
	}
	return nil
}

func copyChunks(ctx context.Context, w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			_ = rc.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func closeOnce(c io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() { _ = c.Close() })
	}
}
