package ferndb

import "bytes"

// Options configures database behavior.
type Options struct {
	keySize        int
	valueSize      int
	leafFanout     int // max key-value pairs per leaf; 0 derives from page size
	internalFanout int // max child pointers per internal node; 0 derives
	poolSize       int // buffer pool frames
	compare        func(a, b []byte) int
	logger         Logger
}

// DefaultOptions returns safe default configuration: 16-byte keys,
// 8-byte record ids, fanouts filled to the page, a 256-frame pool, and
// bytewise key order.
func DefaultOptions() Options {
	return Options{
		keySize:   16,
		valueSize: 8,
		poolSize:  256,
		compare:   bytes.Compare,
		logger:    DiscardLogger{},
	}
}

// Option configures database options using the functional options pattern.
type Option func(*Options)

// WithKeySize sets the fixed key width in bytes. Every key passed to
// the database must have exactly this length.
func WithKeySize(n int) Option {
	return func(opts *Options) {
		opts.keySize = n
	}
}

// WithValueSize sets the fixed value width in bytes.
func WithValueSize(n int) Option {
	return func(opts *Options) {
		opts.valueSize = n
	}
}

// WithLeafFanout caps the number of key-value pairs per leaf page.
// Mostly useful for tests; production trees derive the largest fanout
// the page size allows.
func WithLeafFanout(n int) Option {
	return func(opts *Options) {
		opts.leafFanout = n
	}
}

// WithInternalFanout caps the number of child pointers per internal
// page.
func WithInternalFanout(n int) Option {
	return func(opts *Options) {
		opts.internalFanout = n
	}
}

// WithPoolSize sets the number of buffer pool frames. Each frame holds
// one 4KiB page.
func WithPoolSize(n int) Option {
	return func(opts *Options) {
		opts.poolSize = n
	}
}

// WithComparator overrides the key order. The comparator must be a
// total order: negative if a < b, zero if equal, positive if a > b.
func WithComparator(cmp func(a, b []byte) int) Option {
	return func(opts *Options) {
		opts.compare = cmp
	}
}

// WithLogger routes structural-change logging to the given logger.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}
