// Package loader keeps the graph store in step with the backing store. It
// polls a cheap version token, decides between full and windowed loads and
// retries a failed windowed load once as a full load.
package loader

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/observability"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// VersionReader is the part of the backing store the detector needs.
type VersionReader interface {
	GetVersion(ctx context.Context) (domain.VersionToken, error)
}

// Poll results used as metric labels.
const (
	pollChanged   = "changed"
	pollUnchanged = "unchanged"
	pollDegraded  = "degraded"
	pollError     = "error"
)

// ChangeDetector decides whether the backing store changed since the last
// successful reload.
type ChangeDetector struct {
	reader  VersionReader
	logger  *zap.Logger
	metrics *observability.Collector

	mu          sync.Mutex
	accepted    domain.VersionToken
	hasAccepted bool

	degraded atomic.Bool
}

// NewChangeDetector creates a detector. metrics may be nil.
func NewChangeDetector(reader VersionReader, logger *zap.Logger, metrics *observability.Collector) *ChangeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeDetector{
		reader:  reader,
		logger:  logger.Named("detector"),
		metrics: metrics,
	}
}

// Poll reads the current token. changed is true when a component grew past
// the accepted token, when nothing has been accepted yet, or always once the
// store turned out not to support version tokens. A transient failure is
// returned as err with changed false.
func (d *ChangeDetector) Poll(ctx context.Context) (token domain.VersionToken, changed bool, err error) {
	if d.degraded.Load() {
		d.record(pollDegraded)
		return domain.VersionToken{}, true, nil
	}

	token, err = d.reader.GetVersion(ctx)
	if err != nil {
		if pkgerrors.IsSchemaMismatch(err) {
			d.degrade(err)
			d.record(pollDegraded)
			return domain.VersionToken{}, true, nil
		}
		d.record(pollError)
		return domain.VersionToken{}, false, err
	}

	d.mu.Lock()
	changed = !d.hasAccepted || token.NewerThan(d.accepted)
	d.mu.Unlock()

	if changed {
		d.record(pollChanged)
	} else {
		d.record(pollUnchanged)
	}
	return token, changed, nil
}

// Current reads the token without comparing it. ok is false when the store
// has no version support or the read failed.
func (d *ChangeDetector) Current(ctx context.Context) (domain.VersionToken, bool) {
	if d.degraded.Load() {
		return domain.VersionToken{}, false
	}
	token, err := d.reader.GetVersion(ctx)
	if err != nil {
		if pkgerrors.IsSchemaMismatch(err) {
			d.degrade(err)
		}
		return domain.VersionToken{}, false
	}
	return token, true
}

// Accept records token as loaded. Components never move backwards.
func (d *ChangeDetector) Accept(token domain.VersionToken) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasAccepted {
		d.accepted = token
		d.hasAccepted = true
		return
	}
	d.accepted.MaxThoughtID = max(d.accepted.MaxThoughtID, token.MaxThoughtID)
	d.accepted.MaxConnectionID = max(d.accepted.MaxConnectionID, token.MaxConnectionID)
}

// Accepted returns the last accepted token.
func (d *ChangeDetector) Accepted() (domain.VersionToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted, d.hasAccepted
}

// Degraded reports whether the detector fell back to reloading every poll.
func (d *ChangeDetector) Degraded() bool {
	return d.degraded.Load()
}

func (d *ChangeDetector) degrade(err error) {
	if d.degraded.CompareAndSwap(false, true) {
		d.logger.Warn("Backing store has no version support, reloading on every poll",
			zap.Error(err),
		)
	}
}

func (d *ChangeDetector) record(result string) {
	if d.metrics != nil {
		d.metrics.VersionPolls.WithLabelValues(result).Inc()
	}
}
