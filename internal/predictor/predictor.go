// Package predictor serves pay predictions from a cache and decides when the
// underlying model must be retrained, based on how much of the ledger changed
// since the last training.
package predictor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtorell/workledger/internal/estimator"
	"github.com/mtorell/workledger/internal/modelstore"
	"github.com/mtorell/workledger/internal/storage"
)

// DefaultRetrainThreshold is the fraction of changed rows (relative to the
// row count at last training) that forces a full retrain.
const DefaultRetrainThreshold = 0.20

// RecordSource is the read-side of the job ledger the predictor consumes.
// *storage.Store satisfies it.
type RecordSource interface {
	ListJobs(f storage.ListFilter, sort storage.SortKey) ([]storage.Job, error)
	GetJobsByIDs(ids []int64) ([]storage.Job, error)
	CountJobs() (int64, error)
}

// ArtifactStore is the durable side: trained-model bytes plus retrain
// metadata. *modelstore.Store satisfies it.
type ArtifactStore interface {
	Save(model []byte, meta modelstore.Metadata) error
	Load() ([]byte, modelstore.Metadata, error)
	UpdateMetadata(delta int64) (modelstore.Metadata, error)
	Reset() error
}

// Predictor owns the prediction cache and the retrain decision. All public
// methods are serialized by an internal mutex; the cache and metadata are
// only ever mutated while it is held.
type Predictor struct {
	mu        sync.Mutex
	source    RecordSource
	artifacts ArtifactStore
	est       estimator.Estimator
	cache     *Cache
	threshold float64
	log       *slog.Logger

	meta          modelstore.Metadata
	metaLoaded    bool
	trained       bool
	loadAttempted bool
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithThreshold overrides the retrain threshold. Values <= 0 keep the default.
func WithThreshold(t float64) Option {
	return func(p *Predictor) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// WithLogger sets the logger used for training activity.
func WithLogger(log *slog.Logger) Option {
	return func(p *Predictor) { p.log = log }
}

// New returns a Predictor over the given ledger, artifact store and
// estimator. The cache starts empty; any persisted artifact is loaded lazily
// on the first Predict call.
func New(source RecordSource, artifacts ArtifactStore, est estimator.Estimator, opts ...Option) *Predictor {
	p := &Predictor{
		source:    source,
		artifacts: artifacts,
		est:       est,
		cache:     NewCache(),
		threshold: DefaultRetrainThreshold,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict returns the predicted pay for the requested ids. Ids unknown to
// the ledger are silently omitted from the result. Depending on how stale
// the model is, the call may retrain it first:
//
//   - the change counter has reached the retrain threshold: retrain on the
//     full ledger, then predict and cache every current row;
//   - no trained model is available (first run, or after Reset): same path,
//     unless a persisted artifact can be loaded instead;
//   - otherwise: predict only the ids missing from the cache.
//
// Errors during training or persistence abort the call with the cache and
// metadata untouched.
func (p *Predictor) Predict(ids []int64) (map[int64]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(ids) == 0 {
		return map[int64]float64{}, nil
	}

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	switch {
	case p.loadFactor() >= p.threshold:
		p.log.Debug("retrain threshold reached",
			"changes", p.meta.ChangesSinceLastTrain,
			"rows_at_last_train", p.meta.TotalRowsAtLastTrain)
		if err := p.retrain(); err != nil {
			return nil, err
		}
		if err := p.repopulate(); err != nil {
			return nil, err
		}

	case !p.trained:
		p.log.Debug("no trained model available, training from scratch")
		if err := p.retrain(); err != nil {
			return nil, err
		}
		if err := p.repopulate(); err != nil {
			return nil, err
		}

	default:
		var missing []int64
		for _, id := range ids {
			if !p.cache.Has(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			if err := p.predictInto(missing); err != nil {
				return nil, err
			}
		}
	}

	return p.cache.Get(ids), nil
}

// NotifyChange records that delta rows were inserted, updated or deleted and
// drops the affected ids from the cache so a stale prediction is never
// served after an edit. Negative deltas are clamped to zero.
func (p *Predictor) NotifyChange(delta int64, ids ...int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache.Invalidate(ids...)

	if delta < 0 {
		delta = 0
	}
	if delta == 0 {
		return nil
	}

	meta, err := p.artifacts.UpdateMetadata(delta)
	if err != nil {
		return fmt.Errorf("recording ledger change: %w", err)
	}
	p.meta = meta
	p.metaLoaded = true
	return nil
}

// Reset discards the in-memory model and cache and removes the persisted
// artifact and metadata. The next Predict call trains from scratch.
func (p *Predictor) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.artifacts.Reset(); err != nil {
		return err
	}
	p.cache.InvalidateAll()
	p.meta = modelstore.Metadata{}
	p.metaLoaded = true
	p.trained = false
	p.loadAttempted = true // nothing left on disk to load
	return nil
}

// CacheLen reports the number of cached predictions (used by tests and the
// status endpoint).
func (p *Predictor) CacheLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// ensureLoaded attempts, once per process, to load a persisted artifact. A
// missing artifact is not an error; it routes the next Predict into the
// train-from-scratch path. Any other read failure surfaces to the caller so
// disk problems are not masked by a silent retrain.
func (p *Predictor) ensureLoaded() error {
	if p.loadAttempted {
		return nil
	}

	blob, meta, err := p.artifacts.Load()
	switch {
	case err == nil:
		if err := p.est.UnmarshalBinary(blob); err != nil {
			return fmt.Errorf("restoring model artifact: %w", err)
		}
		p.trained = true
		if !p.metaLoaded {
			p.meta = meta
			p.metaLoaded = true
		}
	case errors.Is(err, modelstore.ErrNotFound):
		if !p.metaLoaded {
			p.meta = modelstore.Metadata{}
			p.metaLoaded = true
		}
	default:
		return err
	}

	p.loadAttempted = true
	return nil
}

// loadFactor measures ledger churn since the last training.
func (p *Predictor) loadFactor() float64 {
	rows := p.meta.TotalRowsAtLastTrain
	if rows < 1 {
		rows = 1
	}
	return float64(p.meta.ChangesSinceLastTrain) / float64(rows)
}

// retrain fits the estimator on the full ledger and commits the new artifact
// and metadata. Metadata is touched only after both the fit and the save
// succeed, so a failed training leaves the previous state intact.
func (p *Predictor) retrain() error {
	jobs, err := p.source.ListJobs(storage.ListFilter{}, storage.SortDateAsc)
	if err != nil {
		return fmt.Errorf("loading training data: %w", err)
	}

	samples := make([]estimator.Sample, 0, len(jobs))
	for _, j := range jobs {
		if j.Pay == nil {
			continue
		}
		samples = append(samples, estimator.Sample{
			JobType: j.JobType,
			Hours:   j.HoursWorked,
			Pay:     *j.Pay,
		})
	}

	start := time.Now()
	if err := p.est.Fit(samples); err != nil {
		return fmt.Errorf("training model: %w", err)
	}

	count, err := p.source.CountJobs()
	if err != nil {
		return fmt.Errorf("counting ledger rows: %w", err)
	}

	blob, err := p.est.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serializing model: %w", err)
	}

	meta := modelstore.Metadata{
		TotalRowsAtLastTrain:  count,
		ChangesSinceLastTrain: 0,
		TrainedAt:             time.Now().UTC(),
	}
	if err := p.artifacts.Save(blob, meta); err != nil {
		return fmt.Errorf("persisting model: %w", err)
	}

	p.meta = meta
	p.metaLoaded = true
	p.trained = true
	p.loadAttempted = true
	p.log.Info("model retrained",
		"rows", count, "samples", len(samples), "took", time.Since(start))
	return nil
}

// repopulate clears the cache and fills it with fresh predictions for every
// current ledger row.
func (p *Predictor) repopulate() error {
	jobs, err := p.source.ListJobs(storage.ListFilter{}, storage.SortDateAsc)
	if err != nil {
		return fmt.Errorf("loading ledger rows: %w", err)
	}

	p.cache.InvalidateAll()
	if len(jobs) == 0 {
		return nil
	}
	return p.cacheJobs(jobs)
}

// predictInto predicts the given ids and inserts the results into the cache.
// Ids absent from the ledger produce no entries.
func (p *Predictor) predictInto(ids []int64) error {
	jobs, err := p.source.GetJobsByIDs(ids)
	if err != nil {
		return fmt.Errorf("loading ledger rows: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}
	return p.cacheJobs(jobs)
}

func (p *Predictor) cacheJobs(jobs []storage.Job) error {
	features := make([]estimator.Features, len(jobs))
	for i, j := range jobs {
		features[i] = estimator.Features{JobType: j.JobType, Hours: j.HoursWorked}
	}

	preds, err := p.est.Predict(features)
	if err != nil {
		return fmt.Errorf("predicting pay: %w", err)
	}
	for i, j := range jobs {
		p.cache.Put(j.ID, preds[i])
	}
	return nil
}
