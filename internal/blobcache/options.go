package blobcache

import (
	"log/slog"
	"time"
)

// Option configures Open. The zero-value configuration uses
// JSONSerializer, a no-op Cipher, a 30s busy timeout, and slog.Default().
type Option func(*options)

type options struct {
	serializer  Serializer
	cipher      Cipher
	busyTimeout time.Duration
	logger      *slog.Logger
}

func defaultOptions() *options {
	return &options{
		serializer:  JSONSerializer{},
		cipher:      noopCipher{},
		busyTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}
}

// WithSerializer overrides the default JSONSerializer.
func WithSerializer(s Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithCipher enables encrypting serialized values at rest.
func WithCipher(c Cipher) Option {
	return func(o *options) { o.cipher = c }
}

// WithBusyTimeout overrides the default 30s SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
