package routing

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// DefaultDecoderCacheSize is used when NewDecoder is given a non-positive size
const DefaultDecoderCacheSize = 256

type cachedEnvelope struct {
	raw []byte
	env Envelope
}

// Decoder decodes routing envelopes and remembers recent ones. The same
// routing blob is typically replayed across retries of one liquidation.
type Decoder struct {
	cache  *lru.Cache
	logger *zap.Logger
}

// NewDecoder creates a decoder with an LRU of the given size
func NewDecoder(size int, logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if size <= 0 {
		size = DefaultDecoderCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder cache: %w", err)
	}
	return &Decoder{cache: cache, logger: logger}, nil
}

// Decode returns the envelope encoded in data. The returned payload is a
// private copy.
func (d *Decoder) Decode(data []byte) (Envelope, error) {
	key := xxhash.Sum64(data)
	if v, ok := d.cache.Get(key); ok {
		entry := v.(*cachedEnvelope)
		if bytes.Equal(entry.raw, data) {
			return copyEnvelope(entry.env), nil
		}
		d.logger.Debug("routing cache collision", zap.Uint64("key", key))
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		return Envelope{}, err
	}
	d.cache.Add(key, &cachedEnvelope{
		raw: append([]byte(nil), data...),
		env: copyEnvelope(env),
	})
	return copyEnvelope(env), nil
}

// Len returns the number of cached envelopes
func (d *Decoder) Len() int {
	return d.cache.Len()
}

// Purge drops every cached envelope
func (d *Decoder) Purge() {
	d.cache.Purge()
}

func copyEnvelope(env Envelope) Envelope {
	return Envelope{Tag: env.Tag, Payload: append([]byte{}, env.Payload...)}
}
