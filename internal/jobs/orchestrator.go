// Package jobs coordinates the signing pipeline for each submitted video:
// validate, stage, persist, sign in the background, finalize, clean up.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/clipsign/clipsign/internal/hashing"
	"github.com/clipsign/clipsign/internal/media"
	"github.com/clipsign/clipsign/internal/signer"
	"github.com/clipsign/clipsign/internal/storage"
)

// ErrNotSigned is returned when an artifact is requested for a video that
// has not (or not successfully) finished signing.
var ErrNotSigned = errors.New("video not yet signed")

// ErrArtifactMissing is returned when a completed video's artifact no
// longer exists on disk.
var ErrArtifactMissing = errors.New("signed artifact not found")

// ValidationError rejects a submission before any record is created.
type ValidationError struct {
	Accepted []string
}

func (e *ValidationError) Error() string {
	return "unsupported file format; supported: " + strings.Join(e.Accepted, ", ")
}

// RecordStore is the persistence surface the orchestrator needs.
type RecordStore interface {
	CreateVideo(v storage.Video) error
	GetVideo(id string) (storage.Video, error)
	ListVideos(limit int) ([]storage.Video, error)
	CompleteVideo(id, outputName string) error
	FailVideo(id, errDetail string) error
}

// Signer runs one external signing invocation.
type Signer interface {
	Sign(ctx context.Context, inputPath, outputPath string) signer.Result
}

// Options configures an Orchestrator.
type Options struct {
	StagingDir    string          // staged uploads and signed artifacts live here
	Formats       media.FormatSet // accepted upload extensions
	MaxConcurrent int64           // simultaneous signer invocations, <=0 means 2
	Logger        *slog.Logger    // nil means slog.Default()
}

// Orchestrator owns the submission pipeline. Submissions return as soon as
// the record is persisted; signing runs on a bounded pool of background
// units, each of which updates the record exactly once and always removes
// its staged input.
type Orchestrator struct {
	store      RecordStore
	signer     Signer
	stagingDir string
	formats    media.FormatSet
	sem        *semaphore.Weighted
	logger     *slog.Logger
	now        func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context // lifetime of background work
	cancel context.CancelFunc
}

// NewOrchestrator wires the pipeline. Call Shutdown to drain background
// work before exiting.
func NewOrchestrator(store RecordStore, sgn Signer, opts Options) *Orchestrator {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      store,
		signer:     sgn,
		stagingDir: opts.StagingDir,
		formats:    opts.Formats,
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit validates and stages an upload, persists its record in processing
// state, and schedules the background signing unit. It returns once the
// record is durable; the caller never waits on signing. A ValidationError
// or staging failure means no record was created.
func (o *Orchestrator) Submit(ctx context.Context, originalName, deviceInfo string, content io.Reader) (storage.Video, error) {
	if !o.formats.Allowed(originalName) {
		return storage.Video{}, &ValidationError{Accepted: o.formats.Extensions()}
	}

	stagedPath, contentHash, err := o.stage(originalName, content)
	if err != nil {
		return storage.Video{}, fmt.Errorf("staging upload: %w", err)
	}

	v := storage.Video{
		ID:           uuid.New().String(),
		OriginalName: filepath.Base(originalName),
		ContentHash:  contentHash,
		DeviceInfo:   o.normalizeDeviceInfo(deviceInfo),
		Status:       storage.StatusProcessing,
		CreatedAt:    o.now().UTC(),
	}
	if err := o.store.CreateVideo(v); err != nil {
		os.Remove(stagedPath)
		return storage.Video{}, fmt.Errorf("creating record: %w", err)
	}

	o.logger.Info("video accepted", "video_id", v.ID, "original_name", v.OriginalName, "content_hash", v.ContentHash)

	o.wg.Add(1)
	go o.process(v, stagedPath)

	return v, nil
}

// stage copies the upload into the staging directory, computing the content
// hash in the same pass. The hash is computed exactly once per record.
func (o *Orchestrator) stage(originalName string, content io.Reader) (path, hash string, err error) {
	if err := os.MkdirAll(o.stagingDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating staging directory: %w", err)
	}
	f, err := os.CreateTemp(o.stagingDir, "upload-*"+strings.ToLower(filepath.Ext(originalName)))
	if err != nil {
		return "", "", fmt.Errorf("creating staged file: %w", err)
	}

	hash, err = hashing.Reader(io.TeeReader(content, f))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", "", err
	}
	return f.Name(), hash, nil
}

// normalizeDeviceInfo keeps the metadata blob only when it is valid JSON.
// Malformed metadata is logged and treated as absent, never fatal.
func (o *Orchestrator) normalizeDeviceInfo(deviceInfo string) string {
	if deviceInfo == "" {
		return ""
	}
	if !json.Valid([]byte(deviceInfo)) {
		o.logger.Warn("invalid device_info JSON provided, ignoring")
		return ""
	}
	return deviceInfo
}

// process is one background signing unit. It owns stagedPath exclusively
// and removes it on every exit path; it moves the record to exactly one
// terminal state.
func (o *Orchestrator) process(v storage.Video, stagedPath string) {
	defer o.wg.Done()
	defer func() {
		if err := os.Remove(stagedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("removing staged input", "video_id", v.ID, "error", err)
		}
	}()

	if err := o.sem.Acquire(o.ctx, 1); err != nil {
		o.fail(v.ID, "service shut down before signing started")
		return
	}
	defer o.sem.Release(1)

	outputName := media.OutputName(v.OriginalName, o.now())
	outputPath := filepath.Join(o.stagingDir, outputName)

	res := o.signer.Sign(o.ctx, stagedPath, outputPath)
	if res.Outcome != signer.Success {
		o.fail(v.ID, res.ErrorDetail())
		return
	}

	if err := o.store.CompleteVideo(v.ID, outputName); err != nil {
		o.logger.Error("marking video completed", "video_id", v.ID, "error", err)
		return
	}
	o.logger.Info("video signed", "video_id", v.ID, "output_name", outputName)
}

func (o *Orchestrator) fail(id, detail string) {
	o.logger.Warn("signing failed", "video_id", id, "detail", detail)
	if err := o.store.FailVideo(id, detail); err != nil {
		o.logger.Error("marking video failed", "video_id", id, "error", err)
	}
}

// Video returns the record for a status query.
func (o *Orchestrator) Video(id string) (storage.Video, error) {
	return o.store.GetVideo(id)
}

// Videos returns the most recent records.
func (o *Orchestrator) Videos(limit int) ([]storage.Video, error) {
	return o.store.ListVideos(limit)
}

// Artifact resolves the signed artifact's path for a completed video.
// Returns ErrNotSigned while the video is processing or failed, and
// ErrArtifactMissing when the completed output no longer exists.
func (o *Orchestrator) Artifact(id string) (string, storage.Video, error) {
	v, err := o.store.GetVideo(id)
	if err != nil {
		return "", storage.Video{}, err
	}
	if v.Status != storage.StatusCompleted {
		return "", v, ErrNotSigned
	}
	path := filepath.Join(o.stagingDir, v.OutputName)
	if _, err := os.Stat(path); err != nil {
		return "", v, ErrArtifactMissing
	}
	return path, v, nil
}

// Shutdown waits for in-flight background units. When ctx expires first,
// remaining signer invocations are cancelled (their processes killed) and
// their records finalized as failed before returning.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}
