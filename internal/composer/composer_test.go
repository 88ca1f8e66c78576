package composer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
	"github.com/RaiderRus/moodTrack/internal/retry"
	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/store/sqlite"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	f.got = audio
	return f.text, f.err
}

type fakeClassifier struct {
	mu      sync.Mutex
	tags    []string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.tags, f.err
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type flakyBlobs struct {
	objectstore.Blobs
	failures int
	calls    int
	keys     []string
	onPut    func()
}

func (f *flakyBlobs) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	f.calls++
	if f.onPut != nil {
		f.onPut()
	}
	f.keys = append(f.keys, key)
	if f.calls <= f.failures {
		return "", errors.New("upload failed")
	}
	return f.Blobs.Put(ctx, key, contentType, data)
}

type recordingMoods struct {
	mu      sync.Mutex
	entries []model.MoodEntry
}

func (r *recordingMoods) Append(e model.MoodEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type failingEntries struct{ store.Entries }

func (failingEntries) Create(context.Context, *model.MoodEntry) (*model.MoodEntry, error) {
	return nil, errors.New("db down")
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	deps        *Deps
	rows        store.Store
	transcriber *fakeTranscriber
	classifier  *fakeClassifier
	blobs       *flakyBlobs
	moods       *recordingMoods
	clock       *clock
	userID      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "composer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(db))
	rows := sqlite.NewWithDB(db)
	u, err := rows.Users().Create(ctx, &model.User{Email: "c@example.com", PasswordHash: []byte("h")})
	require.NoError(t, err)

	f := &fixture{
		rows:        rows,
		transcriber: &fakeTranscriber{text: "I went for a run and feel great"},
		classifier:  &fakeClassifier{tags: []string{"happy", "exercise"}},
		blobs:       &flakyBlobs{Blobs: objectstore.NewDisk(t.TempDir(), "http://test")},
		moods:       &recordingMoods{},
		clock:       &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		userID:      u.UserID,
	}
	f.deps = &Deps{
		Transcriber: f.transcriber,
		Classifier:  f.classifier,
		Entries:     rows.Entries(),
		Recordings:  rows.Recordings(),
		Blobs:       f.blobs,
		Moods:       f.moods,
		Catalog:     tags.MustDefault(),
		AudioRetry:  retry.Policy{Attempts: 3, Unit: time.Millisecond},
		Now:         f.clock.now,
		Log:         zerolog.Nop(),
	}
	return f
}

func (f *fixture) composer() *Composer { return New(f.deps, f.userID) }

func hasLevel(notices []model.Notice, level model.NoticeLevel) int {
	n := 0
	for _, x := range notices {
		if x.Level == level {
			n++
		}
	}
	return n
}

func TestTextSubmitClassifiesAndSaves(t *testing.T) {
	f := newFixture(t)
	f.classifier.tags = []string{"happy", "exercise", "made_up"}
	c := f.composer()

	_, err := c.SetText("  great morning run  ")
	require.NoError(t, err)
	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Entry)
	assert.Equal(t, "great morning run", res.Entry.Text)
	assert.Equal(t, []string{"happy", "exercise"}, res.Entry.Tags)
	assert.Nil(t, res.Entry.Audio)
	assert.Equal(t, 1, f.classifier.Calls())
	assert.Equal(t, StateIdle, res.Snapshot.State)
	assert.Empty(t, res.Snapshot.Text)
	assert.Empty(t, res.Snapshot.Tags)
	require.Len(t, f.moods.entries, 1)
	assert.Equal(t, res.Entry.ID, f.moods.entries[0].ID)

	stored, err := f.rows.Entries().Get(context.Background(), f.userID, res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"happy", "exercise"}, stored.Tags)
}

func TestManualTagsUnionWithInferred(t *testing.T) {
	f := newFixture(t)
	f.classifier.tags = []string{"happy", "outside"}
	c := f.composer()

	_, err := c.ToggleTag("happy")
	require.NoError(t, err)
	_, err = c.ToggleTag("home")
	require.NoError(t, err)
	_, err = c.SetText("sunny")
	require.NoError(t, err)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"happy", "home", "outside"}, res.Entry.Tags)
}

func TestManualTagsOnlySkipsClassification(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	_, err := c.ToggleTag("calm")
	require.NoError(t, err)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"calm"}, res.Entry.Tags)
	assert.Zero(t, f.classifier.Calls())
}

func TestEmptySubmitIsLocalValidation(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	_, err := c.SetText("   ")
	require.NoError(t, err)

	res, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyDraft)
	assert.Nil(t, res.Entry)
	assert.Equal(t, 1, hasLevel(res.Notices, model.NoticeWarning))
	assert.Equal(t, StateIdle, res.Snapshot.State)
	assert.Zero(t, f.classifier.Calls())
	assert.Empty(t, f.moods.entries)

	list, err := f.rows.Entries().ListByUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClassificationFailureUsesSentinel(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("503")
	c := f.composer()
	_, _ = c.SetText("meh")

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, res.Entry.Tags)
	assert.Equal(t, 1, hasLevel(res.Notices, model.NoticeWarning))
}

func TestClassificationWithNoKnownTagsUsesSentinelSilently(t *testing.T) {
	f := newFixture(t)
	f.classifier.tags = []string{"bogus"}
	c := f.composer()
	_, _ = c.SetText("hmm")

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, res.Entry.Tags)
	assert.Zero(t, hasLevel(res.Notices, model.NoticeWarning))
}

func TestVoicePathTranscribesTagsAndAttachesAudio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.composer()

	snap, err := c.StartRecording()
	require.NoError(t, err)
	assert.Equal(t, StateRecording, snap.State)
	_, err = c.AppendChunk([]byte("ab"))
	require.NoError(t, err)
	_, err = c.AppendChunk([]byte("cd"))
	require.NoError(t, err)
	f.clock.advance(3700 * time.Millisecond)

	res, err := c.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), f.transcriber.got)
	assert.Equal(t, StateTagging, res.Snapshot.State)
	assert.Equal(t, "I went for a run and feel great", res.Snapshot.Text)
	assert.Equal(t, []string{"happy", "exercise"}, res.Snapshot.InferredTags)
	assert.True(t, res.Snapshot.HasAudio)
	assert.Equal(t, 3, res.Snapshot.AudioDurationSeconds)

	saved, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.classifier.Calls(), "inferred tags are reused on submit")
	require.NotNil(t, saved.Entry.Audio)
	assert.Equal(t, 3, saved.Entry.Audio.DurationSeconds)
	require.Len(t, f.blobs.keys, 1)
	assert.True(t, strings.HasPrefix(f.blobs.keys[0], f.userID+"/"+saved.Entry.ID+"/"))
	assert.True(t, strings.HasSuffix(f.blobs.keys[0], ".webm"))

	rec, err := f.rows.Recordings().GetByEntry(ctx, f.userID, saved.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Entry.Audio.URL, rec.URL)
	assert.False(t, saved.Snapshot.HasAudio)
	require.Len(t, f.moods.entries, 1)
	assert.NotNil(t, f.moods.entries[0].Audio)
}

func TestAudioFailureAfterRetriesKeepsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.blobs.failures = 100
	c := f.composer()

	_, _ = c.StartRecording()
	_, _ = c.AppendChunk([]byte("x"))
	_, err := c.StopRecording(ctx)
	require.NoError(t, err)

	res, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.blobs.calls)
	assert.Equal(t, 1, hasLevel(res.Notices, model.NoticeWarning))
	require.NotNil(t, res.Entry)
	assert.Nil(t, res.Entry.Audio)

	_, err = f.rows.Entries().Get(ctx, f.userID, res.Entry.ID)
	require.NoError(t, err, "base entry stays saved")
	_, err = f.rows.Recordings().GetByEntry(ctx, f.userID, res.Entry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, StateIdle, res.Snapshot.State)
}

func TestAudioSucceedsOnRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.blobs.failures = 2
	c := f.composer()

	_, _ = c.StartRecording()
	_, _ = c.AppendChunk([]byte("x"))
	_, err := c.StopRecording(ctx)
	require.NoError(t, err)

	res, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.blobs.calls)
	assert.NotNil(t, res.Entry.Audio)
	assert.Zero(t, hasLevel(res.Notices, model.NoticeWarning))
}

func TestTranscriptionFailureKeepsTypedText(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = errors.New("bad gateway")
	c := f.composer()
	_, _ = c.SetText("typed before recording")
	_, _ = c.StartRecording()

	res, err := c.StopRecording(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, res.Snapshot.State)
	assert.Equal(t, "typed before recording", res.Snapshot.Text)
	assert.Equal(t, 1, hasLevel(res.Notices, model.NoticeError))
	assert.Zero(t, f.classifier.Calls())
}

func TestRecordingTransitions(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	_, err := c.AppendChunk([]byte("x"))
	assert.ErrorIs(t, err, ErrNotRecording)
	_, err = c.CancelRecording()
	assert.ErrorIs(t, err, ErrNotRecording)

	_, err = c.StartRecording()
	require.NoError(t, err)
	_, _ = c.AppendChunk([]byte("x"))
	snap, err := c.StartRecording()
	require.NoError(t, err, "second start is a no-op")
	assert.Equal(t, 1, snap.BufferedChunks)

	_, err = c.SetText("x")
	assert.ErrorIs(t, err, ErrBusy)

	snap, err = c.CancelRecording()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.BufferedChunks)
}

func TestCancelReturnsToTagging(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	_, _ = c.StartRecording()
	_, err := c.StopRecording(context.Background())
	require.NoError(t, err)

	_, err = c.StartRecording()
	require.NoError(t, err)
	snap, err := c.CancelRecording()
	require.NoError(t, err)
	assert.Equal(t, StateTagging, snap.State)
	assert.Equal(t, []string{"happy", "exercise"}, snap.InferredTags)
}

func TestSingleSaveInFlight(t *testing.T) {
	f := newFixture(t)
	f.classifier.started = make(chan struct{}, 1)
	f.classifier.release = make(chan struct{})
	c := f.composer()
	_, _ = c.SetText("slow")

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Submit(context.Background())
		done <- res
	}()
	<-f.classifier.started

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSaveInFlight)
	_, err = c.StartRecording()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = c.ToggleTag("happy")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateSaving, c.Snapshot().State)

	close(f.classifier.release)
	res := <-done
	require.NotNil(t, res.Entry)
	assert.Equal(t, StateIdle, c.Snapshot().State)

	list, err := f.rows.Entries().ListByUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBaseSaveFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	f.deps.Entries = failingEntries{}
	c := f.composer()
	_, _ = c.ToggleTag("sad")
	_, _ = c.SetText("rough day")

	res, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Nil(t, res.Entry)
	assert.Equal(t, StateIdle, res.Snapshot.State)
	assert.Equal(t, "rough day", res.Snapshot.Text)
	assert.Contains(t, res.Snapshot.Tags, "sad")
	assert.Equal(t, 1, hasLevel(res.Notices, model.NoticeError))
	assert.Empty(t, f.moods.entries)

	// a retry does not classify again
	_, _ = c.Submit(context.Background())
	assert.Equal(t, 1, f.classifier.Calls())
}

func TestToggleTag(t *testing.T) {
	f := newFixture(t)
	c := f.composer()

	_, err := c.ToggleTag("other")
	assert.ErrorIs(t, err, ErrUnknownTag, "hidden tags cannot be picked")
	_, err = c.ToggleTag("nope")
	assert.ErrorIs(t, err, ErrUnknownTag)

	snap, err := c.ToggleTag("calm")
	require.NoError(t, err)
	assert.Equal(t, []string{"calm"}, snap.Tags)
	snap, err = c.ToggleTag("calm")
	require.NoError(t, err)
	assert.Empty(t, snap.Tags)
}

func TestSessionsReuseComposer(t *testing.T) {
	f := newFixture(t)
	s := NewSessions(f.deps)
	a := s.For("u1")
	assert.Same(t, a, s.For("u1"))
	assert.NotSame(t, a, s.For("u2"))
	s.Drop("u1")
	assert.NotSame(t, a, s.For("u1"))
}

func TestSubmitOutlivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.deps.AudioRetry = retry.Policy{Attempts: 3, Unit: 50 * time.Millisecond}
	f.blobs.failures = 1
	c := f.composer()

	_, _ = c.StartRecording()
	_, _ = c.AppendChunk([]byte("x"))
	_, err := c.StopRecording(context.Background())
	require.NoError(t, err)

	// The caller disconnects while the first upload is failing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.blobs.onPut = cancel

	res, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.blobs.calls, "the retry still runs")
	require.NotNil(t, res.Entry)
	require.NotNil(t, res.Entry.Audio)
	assert.Zero(t, hasLevel(res.Notices, model.NoticeWarning))

	rec, err := f.rows.Recordings().GetByEntry(context.Background(), f.userID, res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Entry.Audio.URL, rec.URL)
}

func TestSubmitWithCanceledContextStillClassifiesAndSaves(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	_, _ = c.SetText("evening run")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, []string{"happy", "exercise"}, res.Entry.Tags)
	assert.Zero(t, hasLevel(res.Notices, model.NoticeWarning))
}

func TestStopRecordingWithCanceledContextStillClassifies(t *testing.T) {
	f := newFixture(t)
	c := f.composer()
	_, _ = c.StartRecording()
	_, _ = c.AppendChunk([]byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"happy", "exercise"}, res.Snapshot.InferredTags)
	assert.Zero(t, hasLevel(res.Notices, model.NoticeWarning))
}
