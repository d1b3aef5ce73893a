package zran

import "github.com/zrajna/indexed-gzip/internal/capnslog"

const (
	defaultSpacing     = 1 << 20 // 1 MiB
	defaultWindowSize  = 32768
	defaultReadbufSize = 16384
	defaultCacheBlocks = 32
)

// Options configures an Index. Its zero value is never used directly;
// Open always starts from defaultOptions() and applies Option values on
// top, so a caller passing no options at all gets spec.md's documented
// defaults.
type Options struct {
	Spacing     int64
	WindowSize  int64
	ReadbufSize int64
	AutoBuild   bool
	CacheBlocks int
	Logger      *capnslog.PackageLogger
}

func defaultOptions() Options {
	return Options{
		Spacing:     defaultSpacing,
		WindowSize:  defaultWindowSize,
		ReadbufSize: defaultReadbufSize,
		AutoBuild:   true,
		CacheBlocks: defaultCacheBlocks,
		Logger:      log,
	}
}

// Option configures an Index at Open time.
type Option func(*Options)

// WithSpacing sets the target minimum uncompressed-byte distance
// between index entries.
func WithSpacing(n int64) Option { return func(o *Options) { o.Spacing = n } }

// WithWindowSize sets the history-dictionary size every non-zeroth
// entry carries. Must be >= 32768.
func WithWindowSize(n int64) Option { return func(o *Options) { o.WindowSize = n } }

// WithReadBufferSize sets the compressed-data read buffer size.
func WithReadBufferSize(n int64) Option { return func(o *Options) { o.ReadbufSize = n } }

// WithAutoBuild toggles lazy index expansion on Seek/Read.
func WithAutoBuild(enabled bool) Option { return func(o *Options) { o.AutoBuild = enabled } }

// WithBlockCache sets the number of blockSize blocks C7 keeps resident.
// 0 disables the cache entirely.
func WithBlockCache(blocks int) Option { return func(o *Options) { o.CacheBlocks = blocks } }

// WithLogger overrides the package logger an Index reports through.
func WithLogger(l *capnslog.PackageLogger) Option { return func(o *Options) { o.Logger = l } }
