// internal/service/line_reader.go
package service

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/metrics"
	"pos-device-service/internal/transport"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultBackoff      = time.Second
	readChunk           = 256
	maxLineLength       = 1024
)

// LineReaderConfig describes a serial peripheral that sends CR/LF framed lines
type LineReaderConfig struct {
	Name         string
	Port         string
	BaudRate     int
	ReadTimeout  time.Duration
	PollInterval time.Duration
	Backoff      time.Duration
}

// LineReader polls a pooled serial session and hands every complete line to
// onLine. Read errors close the session and back off before reopening.
type LineReader struct {
	config LineReaderConfig
	pool   *transport.SerialPool
	onLine func(line string)
	logger *zap.Logger

	handle string
	buf    []byte
}

// NewLineReader creates a reader; it does nothing until Run is called
func NewLineReader(cfg LineReaderConfig, pool *transport.SerialPool, onLine func(line string), logger *zap.Logger) *LineReader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &LineReader{
		config: cfg,
		pool:   pool,
		onLine: onLine,
		logger: logger.With(
			zap.String("reader", cfg.Name),
			zap.String("port", cfg.Port),
		),
	}
}

// Run reads until ctx is cancelled, then closes its session
func (r *LineReader) Run(ctx context.Context) {
	r.logger.Info("Line reader started")
	defer func() {
		r.closeSession()
		r.logger.Info("Line reader stopped")
	}()

	for {
		wait := r.config.PollInterval
		if err := r.step(); err != nil {
			metrics.ReaderError(r.config.Name)
			r.logger.Warn("Line reader error, backing off",
				zap.Duration("backoff", r.config.Backoff),
				zap.Error(err),
			)
			r.closeSession()
			wait = r.config.Backoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// step opens the session when needed and consumes one read
func (r *LineReader) step() error {
	if r.handle == "" {
		handle, err := r.pool.Open(r.config.Port, r.config.BaudRate, r.config.ReadTimeout)
		if err != nil {
			return err
		}
		r.handle = handle
	}

	data, err := r.pool.Read(r.handle, readChunk)
	if err != nil {
		return err
	}
	r.consume(data)
	return nil
}

// consume appends data and emits every CR or LF terminated line
func (r *LineReader) consume(data []byte) {
	r.buf = append(r.buf, data...)

	for {
		i := bytes.IndexAny(r.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(bytes.TrimSpace(r.buf[:i]))
		r.buf = r.buf[i+1:]
		if line != "" {
			r.onLine(line)
		}
	}

	if len(r.buf) > maxLineLength {
		r.logger.Warn("Discarding unterminated input", zap.Int("bytes", len(r.buf)))
		r.buf = r.buf[:0]
	}
}

func (r *LineReader) closeSession() {
	if r.handle == "" {
		return
	}
	r.pool.Close(r.handle)
	r.handle = ""
	r.buf = r.buf[:0]
}
