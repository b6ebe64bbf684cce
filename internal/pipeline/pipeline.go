// Package pipeline runs a raw dataset through noise calibration and
// encryption and hands the result to the training backend.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/privgraph/modelhub/internal/logging"
	"github.com/privgraph/modelhub/internal/noise"
	"github.com/privgraph/modelhub/internal/paillier"
	"github.com/privgraph/modelhub/internal/payload"
	"github.com/privgraph/modelhub/internal/submit"
)

// Options configures a Pipeline. Epsilon and Sensitivity are used as given;
// a zero value is rejected by calibration like any other non-positive one.
type Options struct {
	Epsilon     float64
	Sensitivity float64
	// Noise is the variate source for calibration; nil uses the default.
	Noise      noise.Source
	Encryption payload.Options
}

// DefaultOptions returns options with the default privacy budget and sensitivity.
func DefaultOptions() Options {
	return Options{
		Epsilon:     noise.DefaultEpsilon,
		Sensitivity: noise.DefaultSensitivity,
	}
}

// Prepared is an encrypted dataset ready for transmission.
type Prepared struct {
	Payload   *payload.Payload
	PublicKey *paillier.PublicKey
}

// Pipeline owns one configuration of the submission flow.
type Pipeline struct {
	submitter submit.Submitter
	log       *zap.Logger
	opts      Options
}

// New returns a pipeline. submitter may be nil when only Prepare is used.
func New(submitter submit.Submitter, log *zap.Logger, opts Options) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{submitter: submitter, log: log, opts: opts}
}

// Prepare calibrates noise over raw and encrypts the noised sample under a
// fresh key. A failure at either step returns no payload.
func (p *Pipeline) Prepare(ctx context.Context, raw []byte) (*Prepared, error) {
	if len(raw) == 0 {
		return nil, payload.ErrEmptySample
	}
	start := time.Now()

	noised, err := noise.Calibrate(raw, p.opts.Epsilon, p.opts.Sensitivity, p.opts.Noise)
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	p.log.Debug("calibrated",
		zap.Int("bytes", len(raw)),
		zap.Float64("epsilon", p.opts.Epsilon),
		zap.Float64("sensitivity", p.opts.Sensitivity))

	pl, pub, err := payload.Encrypt(ctx, noised, p.opts.Encryption)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	p.log.Info("dataset encrypted",
		zap.Int("ciphertexts", pl.Count()),
		zap.Int("payload_bytes", len(pl.Data)),
		zap.String("format", string(pl.Format)),
		zap.Duration("elapsed", time.Since(start)))

	return &Prepared{Payload: pl, PublicKey: pub}, nil
}

// Upload prepares raw and submits it for projectID. Nothing is sent unless
// calibration and encryption both succeed.
func (p *Pipeline) Upload(ctx context.Context, raw []byte, job submit.Job) (*submit.Receipt, error) {
	if p.submitter == nil {
		return nil, fmt.Errorf("upload: no training backend configured")
	}
	prep, err := p.Prepare(ctx, raw)
	if err != nil {
		p.log.Warn("upload aborted", zap.String("project_id", job.ProjectID), zap.Error(err))
		return nil, err
	}

	job.Payload = prep.Payload
	job.PublicKey = prep.PublicKey
	r, err := p.submitter.Submit(ctx, job)
	if err != nil {
		p.log.Error("submit failed", zap.String("project_id", job.ProjectID), zap.Error(err))
		return nil, err
	}
	p.log.Info("dataset submitted", zap.String("project_id", job.ProjectID), zap.Int("status", r.StatusCode))
	return r, nil
}
