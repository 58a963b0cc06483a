package query

import (
	"time"

	"github.com/roach88/strata/internal/ormerr"
)

// Compat exposes the operations of the standard query interface that the
// engine does not implement. Each one fails with an Unsupported error
// naming the operation; everything else is forwarded to the wrapped Query.
type Compat struct {
	*Query
}

// NewCompat wraps q.
func NewCompat(q *Query) *Compat {
	return &Compat{Query: q}
}

// SetFirstResult fails: result offsets are not supported.
func (c *Compat) SetFirstResult(int) error {
	return ormerr.Unsupported("SetFirstResult")
}

// FirstResult fails: result offsets are not supported.
func (c *Compat) FirstResult() (int, error) {
	return 0, ormerr.Unsupported("FirstResult")
}

// SetFlushMode fails: there is no write-behind to flush.
func (c *Compat) SetFlushMode(string) error {
	return ormerr.Unsupported("SetFlushMode")
}

// FlushMode fails.
func (c *Compat) FlushMode() (string, error) {
	return "", ormerr.Unsupported("FlushMode")
}

// SetLockMode fails: stores are not locked.
func (c *Compat) SetLockMode(string) error {
	return ormerr.Unsupported("SetLockMode")
}

// LockMode fails.
func (c *Compat) LockMode() (string, error) {
	return "", ormerr.Unsupported("LockMode")
}

// SetTemporalParameter fails; bind a time.Time with SetParameter instead.
func (c *Compat) SetTemporalParameter(string, time.Time, string) error {
	return ormerr.Unsupported("SetTemporalParameter")
}

// SetTemporalPositionalParameter fails.
func (c *Compat) SetTemporalPositionalParameter(int, time.Time, string) error {
	return ormerr.Unsupported("SetTemporalPositionalParameter")
}

// SetTemporalParameterHandle fails.
func (c *Compat) SetTemporalParameterHandle(Parameter, time.Time, string) error {
	return ormerr.Unsupported("SetTemporalParameterHandle")
}
