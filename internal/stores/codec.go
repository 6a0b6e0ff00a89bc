package stores

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrRedisUnavailable wraps every Redis transport or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

var errCorruptRecord = errors.New("corrupt record")

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Timestamps are stored as decimal Unix nanoseconds; an empty field means
// "unset".

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func scoreMillis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// fieldReader decodes a Redis hash and remembers the first failure.
type fieldReader struct {
	fields map[string]string
	err    error
}

func (r *fieldReader) fail(field string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: field %s: %v", errCorruptRecord, field, err)
	}
}

func (r *fieldReader) str(field string) string {
	return r.fields[field]
}

func (r *fieldReader) bool(field string) bool {
	return r.fields[field] == "1"
}

func (r *fieldReader) int64(field string) int64 {
	raw, ok := r.fields[field]
	if !ok || raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *fieldReader) uint(field string, bits int) uint64 {
	raw, ok := r.fields[field]
	if !ok || raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *fieldReader) time(field string) time.Time {
	return time.Unix(0, r.int64(field)).UTC()
}

func (r *fieldReader) optionalTime(field string) *time.Time {
	if r.fields[field] == "" {
		return nil
	}
	t := r.time(field)
	return &t
}

func (r *fieldReader) bytes(field string) []byte {
	raw := r.fields[field]
	if raw == "" {
		return nil
	}
	v, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func encodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
