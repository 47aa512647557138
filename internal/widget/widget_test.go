package widget

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extractdesk/backend/internal/models"
	"github.com/extractdesk/backend/internal/testutil"
	"github.com/extractdesk/backend/internal/upload"
)

type recorderStub struct {
	mu       sync.Mutex
	attempts []models.Attempt
}

func (r *recorderStub) Record(_ context.Context, a *models.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *recorderStub) all() []models.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Attempt(nil), r.attempts...)
}

type fixture struct {
	w        *Widget
	store    *testutil.MockStorage
	endpoint *testutil.FakeEndpoint
	recorder *recorderStub
}

func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	endpoint := testutil.NewFakeEndpoint(body)
	t.Cleanup(endpoint.Close)

	store := testutil.NewMockStorage()
	rec := &recorderStub{}
	w := New("widget-under-test", Deps{
		Store:    store,
		Uploader: upload.NewClient(endpoint.UploadURL(), 0, nil),
		Recorder: rec,
	})
	t.Cleanup(w.Close)

	return &fixture{w: w, store: store, endpoint: endpoint, recorder: rec}
}

func pick(name, contentType, content string) *FileUpload {
	return &FileUpload{Name: name, ContentType: contentType, Content: strings.NewReader(content)}
}

func TestWidget_StartsIdle(t *testing.T) {
	f := newFixture(t, `{}`)

	snap := f.w.Snapshot()
	assert.Equal(t, models.PhaseIdle, snap.Phase)
	assert.Nil(t, snap.File)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.Notifications)
	assert.True(t, snap.CanUpload())
}

func TestWidget_ChooseFile_OverwritesFromAnyState(t *testing.T) {
	f := newFixture(t, `{"text":"done"}`)

	snap, err := f.w.ChooseFile(pick("a.png", "image/png", "aaa"))
	require.NoError(t, err)
	require.NotNil(t, snap.File)
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Equal(t, "a.png", snap.File.Name)
	assert.Equal(t, "image/png", snap.File.ContentType)
	assert.Equal(t, int64(3), snap.File.Size)
	first := snap.File.ID

	snap, err = f.w.ChooseFile(pick("b.png", "image/png", "bbbb"))
	require.NoError(t, err)
	assert.Equal(t, "b.png", snap.File.Name)
	assert.False(t, f.store.HasBlob(first), "replaced blob should be discarded")

	require.NoError(t, f.w.TriggerUpload(context.Background()))
	assert.Equal(t, models.PhaseCompleted, f.w.Snapshot().Phase)

	snap, err = f.w.ChooseFile(pick("c.png", "image/png", "c"))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Equal(t, "c.png", snap.File.Name)

	snap, err = f.w.ChooseFile(nil)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, snap.Phase)
	assert.Nil(t, snap.File)
	assert.Equal(t, 0, f.store.GetBlobCount())
}

func TestWidget_ChooseFile_SniffsMissingContentType(t *testing.T) {
	f := newFixture(t, `{}`)

	snap, err := f.w.ChooseFile(pick("blob", "", "data"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", snap.File.ContentType)

	assert.Equal(t, "image/png", resolveContentType("", "image/png"))
	assert.Equal(t, "image/png", resolveContentType("application/octet-stream", "image/png"))
	assert.Equal(t, "application/pdf", resolveContentType("application/pdf", "text/plain"))
}

func TestWidget_ChooseFile_StoreFailureKeepsSelection(t *testing.T) {
	f := newFixture(t, `{}`)
	_, err := f.w.ChooseFile(pick("keep.txt", "text/plain", "k"))
	require.NoError(t, err)

	f.store.SaveErr = errors.New("disk full")
	_, err = f.w.ChooseFile(pick("new.txt", "text/plain", "n"))
	require.Error(t, err)

	assert.Equal(t, "keep.txt", f.w.Snapshot().File.Name)
}

func TestWidget_TriggerUpload_NoFile(t *testing.T) {
	f := newFixture(t, `{"text":"never"}`)

	err := f.w.TriggerUpload(context.Background())
	assert.ErrorIs(t, err, ErrNoFileSelected)

	snap := f.w.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, models.NotifyNoFileSelected, snap.Notifications[0].Kind)
	assert.Equal(t, "Please select a file first", snap.Notifications[0].Message)
	assert.Nil(t, snap.Result)
	assert.Equal(t, 0, f.endpoint.Count())
	assert.Empty(t, f.recorder.all())
}

func TestWidget_TriggerUpload_SendsSelectedBytes(t *testing.T) {
	f := newFixture(t, `{"text":"Hello World"}`)
	_, err := f.w.ChooseFile(pick("scan.png", "image/png", "\x89PNG-bytes"))
	require.NoError(t, err)

	require.NoError(t, f.w.TriggerUpload(context.Background()))

	received := f.endpoint.Received()
	require.Len(t, received, 1)
	assert.Equal(t, http.MethodPost, received[0].Method)
	assert.Equal(t, "/api/upload/", received[0].Path)
	assert.True(t, strings.HasPrefix(received[0].ContentType, "multipart/form-data"))
	require.Len(t, received[0].Parts, 1)
	assert.Equal(t, "file", received[0].Parts[0].FormName)
	assert.Equal(t, "scan.png", received[0].Parts[0].FileName)
	assert.Equal(t, "image/png", received[0].Parts[0].ContentType)
	assert.Equal(t, "\x89PNG-bytes", string(received[0].Parts[0].Data))

	snap := f.w.Snapshot()
	assert.Equal(t, models.PhaseCompleted, snap.Phase)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Hello World", snap.Result.Text)
	assert.False(t, snap.Result.Fallback)
	assert.Equal(t, "scan.png", snap.Result.FileName)
	assert.Empty(t, snap.Notifications)

	attempts := f.recorder.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeSuccess, attempts[0].Outcome)
	assert.Equal(t, snap.Result.AttemptID, attempts[0].ID)
	assert.Equal(t, http.StatusOK, attempts[0].StatusCode)
}

func TestWidget_TriggerUpload_Fallback(t *testing.T) {
	for _, body := range []string{`{}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, body)
			_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
			require.NoError(t, err)

			require.NoError(t, f.w.TriggerUpload(context.Background()))

			snap := f.w.Snapshot()
			require.NotNil(t, snap.Result)
			assert.Equal(t, "Uploaded successfully!", snap.Result.Text)
			assert.True(t, snap.Result.Fallback)
			assert.Equal(t, models.PhaseCompleted, snap.Phase)
			assert.Equal(t, models.OutcomeFallback, f.recorder.all()[0].Outcome)
		})
	}
}

func TestWidget_TriggerUpload_FailureKeepsResult(t *testing.T) {
	f := newFixture(t, `{"text":"first result"}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	require.NoError(t, f.w.TriggerUpload(context.Background()))

	f.endpoint.Respond(http.StatusInternalServerError, `{"error":"boom"}`)
	err = f.w.TriggerUpload(context.Background())

	var se *upload.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)

	snap := f.w.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, "first result", snap.Result.Text)
	assert.Equal(t, models.PhaseCompleted, snap.Phase)
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, models.NotifyUploadFailed, snap.Notifications[0].Kind)
	assert.False(t, snap.Uploading)

	// still responsive
	f.endpoint.Respond(http.StatusOK, `{"text":"second result"}`)
	require.NoError(t, f.w.TriggerUpload(context.Background()))
	assert.Equal(t, "second result", f.w.Snapshot().Result.Text)

	attempts := f.recorder.all()
	require.Len(t, attempts, 3)
	assert.Equal(t, models.OutcomeServerError, attempts[1].Outcome)
}

func TestWidget_TriggerUpload_FailureFromReady(t *testing.T) {
	f := newFixture(t, `{}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	f.endpoint.Close()

	err = f.w.TriggerUpload(context.Background())
	var te *upload.TransportError
	require.ErrorAs(t, err, &te)

	snap := f.w.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Nil(t, snap.Result)
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "Error uploading file", snap.Notifications[0].Message)
	assert.Equal(t, models.OutcomeTransportError, f.recorder.all()[0].Outcome)
}

func TestWidget_TriggerUpload_OpenFailure(t *testing.T) {
	f := newFixture(t, `{}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	f.store.OpenErr = errors.New("gone")

	require.Error(t, f.w.TriggerUpload(context.Background()))
	assert.Equal(t, 0, f.endpoint.Count())
	assert.Len(t, f.w.Snapshot().Notifications, 1)
}

func TestWidget_NewSelectionKeepsStaleResult(t *testing.T) {
	f := newFixture(t, `{"text":"old text"}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	require.NoError(t, f.w.TriggerUpload(context.Background()))

	snap, err := f.w.ChooseFile(pick("b.txt", "text/plain", "b"))
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "old text", snap.Result.Text)
	assert.Equal(t, models.PhaseReady, snap.Phase)

	f.endpoint.Respond(http.StatusOK, `{"text":"new text"}`)
	require.NoError(t, f.w.TriggerUpload(context.Background()))
	assert.Equal(t, "new text", f.w.Snapshot().Result.Text)
	assert.Equal(t, "b.txt", f.w.Snapshot().Result.FileName)
}

func TestWidget_DoubleTriggerRejectedWhileInFlight(t *testing.T) {
	f := newFixture(t, `{"text":"slow"}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	f.endpoint.Hold()

	done, err := f.w.StartUpload(context.Background())
	require.NoError(t, err)
	<-f.endpoint.Arrived()

	assert.True(t, f.w.Snapshot().Uploading)
	assert.False(t, f.w.Snapshot().CanUpload())

	_, err = f.w.StartUpload(context.Background())
	assert.ErrorIs(t, err, ErrUploadInFlight)
	assert.ErrorIs(t, f.w.TriggerUpload(context.Background()), ErrUploadInFlight)
	assert.Empty(t, f.w.Snapshot().Notifications)

	f.endpoint.Release()
	require.NoError(t, <-done)

	assert.Equal(t, 1, f.endpoint.Count())
	assert.False(t, f.w.Snapshot().Uploading)
	assert.Equal(t, "slow", f.w.Snapshot().Result.Text)
}

func TestWidget_SelectionChangeDuringFlight(t *testing.T) {
	f := newFixture(t, `{"text":"from a"}`)
	snap, err := f.w.ChooseFile(pick("a.txt", "text/plain", "aaaa"))
	require.NoError(t, err)
	inFlight := snap.File.ID
	f.endpoint.Hold()

	done, err := f.w.StartUpload(context.Background())
	require.NoError(t, err)
	<-f.endpoint.Arrived()

	_, err = f.w.ChooseFile(pick("b.txt", "text/plain", "b"))
	require.NoError(t, err)
	assert.True(t, f.store.HasBlob(inFlight), "blob being uploaded must survive until the upload lands")

	f.endpoint.Release()
	require.NoError(t, <-done)

	assert.False(t, f.store.HasBlob(inFlight))
	snap = f.w.Snapshot()
	assert.Equal(t, "b.txt", snap.File.Name)
	assert.Equal(t, models.PhaseReady, snap.Phase)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "a.txt", snap.Result.FileName)
	assert.Equal(t, "aaaa", string(f.endpoint.Received()[0].Parts[0].Data))
}

func TestWidget_Subscribe(t *testing.T) {
	f := newFixture(t, `{"text":"pushed"}`)

	ch, cancel := f.w.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, models.PhaseIdle, initial.Phase)

	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)
	require.NoError(t, f.w.TriggerUpload(context.Background()))

	select {
	case snap := <-ch:
		assert.Greater(t, snap.Version, initial.Version)
		require.NotNil(t, snap.Result)
		assert.Equal(t, "pushed", snap.Result.Text)
	case <-time.After(time.Second):
		t.Fatal("expected a pushed snapshot")
	}
}

func TestWidget_DismissNotification(t *testing.T) {
	f := newFixture(t, `{}`)
	require.ErrorIs(t, f.w.TriggerUpload(context.Background()), ErrNoFileSelected)

	n := f.w.Snapshot().Notifications[0]
	assert.True(t, f.w.DismissNotification(n.ID))
	assert.False(t, f.w.DismissNotification(n.ID))
	assert.Empty(t, f.w.Snapshot().Notifications)
}

func TestWidget_Close(t *testing.T) {
	f := newFixture(t, `{}`)
	_, err := f.w.ChooseFile(pick("a.txt", "text/plain", "a"))
	require.NoError(t, err)

	ch, _ := f.w.Subscribe()
	<-ch

	f.w.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, f.store.GetBlobCount())
	assert.ErrorIs(t, f.w.TriggerUpload(context.Background()), ErrClosed)
	_, err = f.w.ChooseFile(pick("b.txt", "text/plain", "b"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, f.store.GetBlobCount())
}
