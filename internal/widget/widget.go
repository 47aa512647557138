// Package widget implements the upload component: Selection State, the
// Upload Controller, and Result State, owned by a single Widget instance.
//
// All mutation goes through Widget methods. Each call that changes state bumps
// the snapshot version and publishes the new snapshot to subscribers so views
// can re-render while a request is still outstanding.
package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/models"
	"github.com/extractdesk/backend/internal/notify"
	"github.com/extractdesk/backend/internal/upload"
)

var (
	// ErrNoFileSelected is returned when an upload is triggered with an empty
	// Selection State. No request is made.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrUploadInFlight is returned when an upload is triggered while the
	// previous one is still outstanding. The trigger is disabled until it lands.
	ErrUploadInFlight = errors.New("upload already in flight")
	// ErrClosed is returned by operations on an unmounted widget.
	ErrClosed = errors.New("widget closed")
)

// BlobStore holds the bytes of the selected file.
type BlobStore interface {
	Save(name string, r io.Reader) (*models.BlobInfo, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
}

// Uploader sends a file to the extraction endpoint.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Response, error)
}

// Recorder keeps a diagnostics record of attempts.
type Recorder interface {
	Record(ctx context.Context, a *models.Attempt) error
}

// Deps are the collaborators a widget needs. Recorder and Logger are optional.
type Deps struct {
	Store          BlobStore
	Uploader       Uploader
	Recorder       Recorder
	Logger         *zap.Logger
	NotifyCapacity int
}

// FileUpload is what a file picker hands over: a name, the type it claims,
// and the content.
type FileUpload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Widget is one mounted upload component.
type Widget struct {
	id       string
	store    BlobStore
	uploader Uploader
	recorder Recorder
	notices  *notify.Center
	logger   *zap.Logger

	mu        sync.Mutex
	phase     models.Phase
	file      *models.SelectedFile
	result    *models.UploadResult
	uploading bool
	pinned    string // blob being read by the in-flight upload
	orphan    string // replaced blob whose deletion waits for the upload
	version   uint64
	closed    bool
	subs      map[int]chan models.Snapshot
	nextSub   int
}

// New mounts a widget in the idle phase.
func New(id string, deps Deps) *Widget {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Widget{
		id:       id,
		store:    deps.Store,
		uploader: deps.Uploader,
		recorder: deps.Recorder,
		notices:  notify.NewCenter(deps.NotifyCapacity),
		logger:   logger.With(zap.String("widget", shortID(id))),
		phase:    models.PhaseIdle,
		subs:     make(map[int]chan models.Snapshot),
	}
}

// ID returns the widget identifier.
func (w *Widget) ID() string {
	return w.id
}

// ChooseFile replaces Selection State with the picked file, or with nothing
// when f is nil. Result State is left as is.
func (w *Widget) ChooseFile(f *FileUpload) (models.Snapshot, error) {
	var next *models.SelectedFile
	if f != nil {
		info, err := w.store.Save(f.Name, f.Content)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("storing selected file: %w", err)
		}
		next = &models.SelectedFile{
			ID:          info.ID,
			Name:        f.Name,
			ContentType: resolveContentType(f.ContentType, info.DetectedType),
			Size:        info.Size,
			ChosenAt:    info.StoredAt,
		}
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		if next != nil {
			w.deleteBlob(next.ID)
		}
		return models.Snapshot{}, ErrClosed
	}
	prev := w.file
	w.file = next
	if next == nil {
		w.phase = models.PhaseIdle
	} else {
		w.phase = models.PhaseReady
	}
	discard := w.releaseLocked(prev)
	snap := w.publishLocked()
	w.mu.Unlock()

	w.deleteBlob(discard)

	if next != nil {
		w.logger.Info("file chosen",
			zap.String("file", next.Name),
			zap.String("content_type", next.ContentType),
			zap.Int64("size", next.Size))
	} else {
		w.logger.Info("selection cleared")
	}
	return snap, nil
}

// TriggerUpload uploads the currently selected file and waits for the outcome.
func (w *Widget) TriggerUpload(ctx context.Context) error {
	run, err := w.begin()
	if err != nil {
		return err
	}
	return run(ctx)
}

// StartUpload performs the precondition checks synchronously and then runs
// the request in the background. The returned channel yields the outcome.
func (w *Widget) StartUpload(ctx context.Context) (<-chan error, error) {
	run, err := w.begin()
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()
	return done, nil
}

// begin validates Selection State and claims the in-flight slot. The file is
// captured here so the attempt is tied to the selection at trigger time.
func (w *Widget) begin() (func(context.Context) error, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.file == nil {
		w.notices.Push(models.NotifyNoFileSelected)
		w.publishLocked()
		w.logger.Info("upload triggered without a file")
		return nil, ErrNoFileSelected
	}
	if w.uploading {
		return nil, ErrUploadInFlight
	}

	file := *w.file
	w.uploading = true
	w.pinned = file.ID
	w.publishLocked()

	return func(ctx context.Context) error {
		return w.run(ctx, file)
	}, nil
}

func (w *Widget) run(ctx context.Context, file models.SelectedFile) error {
	attempt := &models.Attempt{
		ID:        uuid.New().String(),
		WidgetID:  w.id,
		FileName:  file.Name,
		Size:      file.Size,
		StartedAt: time.Now(),
	}

	resp, err := w.send(ctx, file)
	attempt.DurationMs = time.Since(attempt.StartedAt).Milliseconds()

	w.mu.Lock()
	w.uploading = false
	w.pinned = ""
	discard := w.orphan
	w.orphan = ""

	pendingFailures := 0
	if err != nil {
		attempt.Error = err.Error()
		attempt.StatusCode = upload.StatusCode(err)
		attempt.Outcome = models.OutcomeTransportError
		if attempt.StatusCode != 0 {
			attempt.Outcome = models.OutcomeServerError
		}
		if !w.closed {
			w.notices.Push(models.NotifyUploadFailed)
		}
		pendingFailures = w.notices.Count(models.NotifyUploadFailed)
	} else {
		attempt.StatusCode = resp.StatusCode
		attempt.Outcome = models.OutcomeSuccess
		if resp.Fallback {
			attempt.Outcome = models.OutcomeFallback
		}
		w.result = &models.UploadResult{
			Text:        resp.Text,
			AttemptID:   attempt.ID,
			FileName:    file.Name,
			Fallback:    resp.Fallback,
			CompletedAt: time.Now(),
		}
		if w.file != nil && w.file.ID == file.ID {
			w.phase = models.PhaseCompleted
		}
	}
	w.publishLocked()
	w.mu.Unlock()

	w.deleteBlob(discard)
	w.record(ctx, attempt)

	if attempt.Failed() {
		w.logger.Error("upload failed",
			zap.String("attempt", attempt.ID),
			zap.String("file", file.Name),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Int("status", attempt.StatusCode),
			zap.Int("pending_failures", pendingFailures),
			zap.Error(err))
		return err
	}

	if resp.ShapeErr != nil {
		w.logger.Warn("upload response had no usable body, showing fallback",
			zap.String("attempt", attempt.ID),
			zap.Error(resp.ShapeErr))
	}
	w.logger.Info("upload completed",
		zap.String("attempt", attempt.ID),
		zap.String("file", file.Name),
		zap.Bool("fallback", resp.Fallback),
		zap.Int64("duration_ms", attempt.DurationMs))
	return nil
}

func (w *Widget) send(ctx context.Context, file models.SelectedFile) (*upload.Response, error) {
	rc, err := w.store.Open(file.ID)
	if err != nil {
		return nil, fmt.Errorf("opening selected file: %w", err)
	}
	defer rc.Close()

	return w.uploader.Upload(ctx, upload.Request{
		FileName:    file.Name,
		ContentType: file.ContentType,
		Body:        rc,
		Size:        file.Size,
	})
}

func (w *Widget) record(ctx context.Context, a *models.Attempt) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.Record(context.WithoutCancel(ctx), a); err != nil {
		w.logger.Warn("failed to record attempt", zap.String("attempt", a.ID), zap.Error(err))
	}
}

// DismissNotification removes a pending notification.
func (w *Widget) DismissNotification(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.notices.Dismiss(id) {
		return false
	}
	w.publishLocked()
	return true
}

// Snapshot returns the current state.
func (w *Widget) Snapshot() models.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only see the most recent one. The cancel func must be
// called when the subscriber goes away.
func (w *Widget) Subscribe() (<-chan models.Snapshot, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan models.Snapshot, 1)
	if w.closed {
		close(ch)
		return ch, func() {}
	}

	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	ch <- w.snapshotLocked()

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if c, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(c)
		}
	}
}

// Close unmounts the widget: the selected file is discarded and subscribers
// are released. An in-flight request runs to completion but its outcome is
// only journaled.
func (w *Widget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	discard := w.releaseLocked(w.file)
	w.file = nil
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	w.mu.Unlock()

	w.deleteBlob(discard)
	w.logger.Debug("widget closed")
}

// releaseLocked returns the blob ID that can be deleted now, deferring
// deletion of a blob the in-flight upload is still reading.
func (w *Widget) releaseLocked(f *models.SelectedFile) string {
	if f == nil {
		return ""
	}
	if f.ID == w.pinned {
		w.orphan = f.ID
		return ""
	}
	return f.ID
}

func (w *Widget) deleteBlob(id string) {
	if id == "" {
		return
	}
	if err := w.store.Delete(id); err != nil {
		w.logger.Warn("failed to discard selected file", zap.String("blob", id), zap.Error(err))
	}
}

func (w *Widget) publishLocked() models.Snapshot {
	w.version++
	snap := w.snapshotLocked()
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return snap
}

func (w *Widget) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		WidgetID:      w.id,
		Phase:         w.phase,
		Uploading:     w.uploading,
		Notifications: w.notices.List(),
		Version:       w.version,
	}
	if w.file != nil {
		f := *w.file
		snap.File = &f
	}
	if w.result != nil {
		r := *w.result
		snap.Result = &r
	}
	return snap
}

// resolveContentType prefers the type the picker reported, falling back to
// the sniffed one when the picker had nothing specific.
func resolveContentType(claimed, detected string) string {
	if claimed != "" && claimed != "application/octet-stream" {
		return claimed
	}
	if detected != "" {
		return detected
	}
	return "application/octet-stream"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
