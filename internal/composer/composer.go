package composer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/inference"
	"github.com/RaiderRus/moodTrack/internal/metrics"
	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
	"github.com/RaiderRus/moodTrack/internal/retry"
	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// Appender receives entries once they are saved.
type Appender interface {
	Append(entry model.MoodEntry)
}

// Deps are the collaborators shared by every composer.
type Deps struct {
	Transcriber inference.Transcriber
	Classifier  inference.Classifier
	Entries     store.Entries
	Recordings  store.Recordings
	Blobs       objectstore.Blobs
	Moods       Appender
	Catalog     *tags.Catalog
	AudioRetry  retry.Policy
	Now         func() time.Time
	Log         zerolog.Logger
}

// Snapshot is the externally visible draft.
type Snapshot struct {
	State                State    `json:"state"`
	Text                 string   `json:"text"`
	ManualTags           []string `json:"manualTags"`
	InferredTags         []string `json:"inferredTags"`
	Tags                 []string `json:"tags"`
	HasAudio             bool     `json:"hasAudio"`
	AudioDurationSeconds int      `json:"audioDurationSeconds"`
	BufferedChunks       int      `json:"bufferedChunks"`
}

// Result is returned by the operations that talk to the network.
type Result struct {
	Snapshot Snapshot         `json:"composer"`
	Entry    *model.MoodEntry `json:"entry,omitempty"`
	Notices  []model.Notice   `json:"notices"`
}

// Composer holds one user's draft. The mutex guards fields only and is
// never held across network calls; state doubles as the re-entrancy guard.
type Composer struct {
	deps   *Deps
	userID string

	mu       sync.Mutex
	state    State
	resting  State
	gen      uint64
	text     string
	manual   []string
	inferred []string
	chunks   [][]byte
	recStart time.Time
	audio    []byte
	duration int
}

// New creates an idle composer for userID.
func New(deps *Deps, userID string) *Composer {
	return &Composer{deps: deps, userID: userID, state: StateIdle, resting: StateIdle}
}

func (c *Composer) now() time.Time {
	if c.deps.Now != nil {
		return c.deps.Now()
	}
	return time.Now()
}

// Snapshot returns the current draft.
func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Composer) snapshotLocked() Snapshot {
	return Snapshot{
		State:                c.state,
		Text:                 c.text,
		ManualTags:           append([]string{}, c.manual...),
		InferredTags:         append([]string{}, c.inferred...),
		Tags:                 c.combinedLocked(),
		HasAudio:             len(c.audio) > 0,
		AudioDurationSeconds: c.duration,
		BufferedChunks:       len(c.chunks),
	}
}

func (c *Composer) combinedLocked() []string {
	all := make([]string, 0, len(c.manual)+len(c.inferred))
	all = append(all, c.manual...)
	all = append(all, c.inferred...)
	return model.DedupeTags(all)
}

// SetText replaces the draft text.
func (c *Composer) SetText(text string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.resting() {
		return c.snapshotLocked(), ErrBusy
	}
	c.text = text
	return c.snapshotLocked(), nil
}

// ToggleTag flips a selectable tag in the combined set.
func (c *Composer) ToggleTag(id string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.resting() {
		return c.snapshotLocked(), ErrBusy
	}
	if !c.deps.Catalog.Selectable(id) {
		return c.snapshotLocked(), ErrUnknownTag
	}
	switch {
	case contains(c.manual, id):
		c.manual = remove(c.manual, id)
		c.inferred = remove(c.inferred, id)
	case contains(c.inferred, id):
		c.inferred = remove(c.inferred, id)
	default:
		c.manual = append(c.manual, id)
	}
	return c.snapshotLocked(), nil
}

// StartRecording opens a fresh capture buffer.
func (c *Composer) StartRecording() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRecording:
		return c.snapshotLocked(), nil
	case StateTranscribing, StateSaving:
		return c.snapshotLocked(), ErrBusy
	}
	c.resting = c.state
	c.gen++
	c.state = StateRecording
	c.chunks = nil
	c.recStart = c.now()
	return c.snapshotLocked(), nil
}

// AppendChunk buffers one piece of captured audio.
func (c *Composer) AppendChunk(data []byte) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return c.snapshotLocked(), ErrNotRecording
	}
	if len(data) > 0 {
		c.chunks = append(c.chunks, append([]byte(nil), data...))
	}
	return c.snapshotLocked(), nil
}

// CancelRecording drops the capture buffer and returns to the previous resting state.
func (c *Composer) CancelRecording() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return c.snapshotLocked(), ErrNotRecording
	}
	c.chunks = nil
	c.state = c.resting
	return c.snapshotLocked(), nil
}

// StopRecording closes the capture, transcribes it and infers tags from the transcript.
// Once started, transcription and classification run to completion even if
// the caller goes away.
func (c *Composer) StopRecording(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	if c.state != StateRecording {
		defer c.mu.Unlock()
		return Result{Snapshot: c.snapshotLocked()}, ErrNotRecording
	}
	c.audio = bytes.Join(c.chunks, nil)
	c.chunks = nil
	c.duration = int(c.now().Sub(c.recStart) / time.Second)
	c.state = StateTranscribing
	audio := c.audio
	c.mu.Unlock()

	text, err := c.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		c.deps.Log.Error().Stack().Err(err).Str("user_id", c.userID).Msg("transcription failed")
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state = StateIdle
		return Result{
			Snapshot: c.snapshotLocked(),
			Notices:  []model.Notice{{Level: model.NoticeError, Message: "Could not transcribe the recording. Please try again."}},
		}, err
	}

	c.mu.Lock()
	c.text = text
	c.inferred = nil
	c.state = StateTagging
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	inferred, notice := c.classify(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	res := Result{Notices: noticeList(notice)}
	if c.gen == gen && c.state == StateTagging {
		c.inferred = inferred
	}
	res.Snapshot = c.snapshotLocked()
	return res, nil
}

// classify asks for tags and applies the sentinel rule: unknown ids are
// dropped, and an empty result or a failure yields the sentinel tag.
func (c *Composer) classify(ctx context.Context, text string) ([]string, *model.Notice) {
	sentinel := []string{c.deps.Catalog.Sentinel()}
	if strings.TrimSpace(text) == "" {
		return sentinel, nil
	}
	ids, err := c.deps.Classifier.Classify(ctx, text)
	if err != nil {
		c.deps.Log.Warn().Err(err).Str("user_id", c.userID).Msg("classification failed; using sentinel tag")
		return sentinel, &model.Notice{Level: model.NoticeWarning, Message: "Could not detect mood tags automatically."}
	}
	ids = c.deps.Catalog.KnownIDs(ids)
	if len(ids) == 0 {
		return sentinel, nil
	}
	return ids, nil
}

// Submit saves the draft: base entry first, then the audio attachment under
// the retry policy. A failed attachment leaves the entry saved with a warning.
// The sequence is detached from ctx cancellation so every attempt runs.
func (c *Composer) Submit(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	switch c.state {
	case StateSaving:
		defer c.mu.Unlock()
		return Result{Snapshot: c.snapshotLocked()}, ErrSaveInFlight
	case StateRecording, StateTranscribing:
		defer c.mu.Unlock()
		return Result{Snapshot: c.snapshotLocked()}, ErrBusy
	}
	if len(c.combinedLocked()) == 0 && strings.TrimSpace(c.text) == "" {
		defer c.mu.Unlock()
		return Result{
			Snapshot: c.snapshotLocked(),
			Notices:  []model.Notice{{Level: model.NoticeWarning, Message: ErrEmptyDraft.Error()}},
		}, ErrEmptyDraft
	}
	c.state = StateSaving
	c.gen++
	text := strings.TrimSpace(c.text)
	manual := append([]string{}, c.manual...)
	inferred := append([]string{}, c.inferred...)
	audio := c.audio
	duration := c.duration
	c.mu.Unlock()

	var notices []model.Notice
	if text != "" && len(inferred) == 0 {
		var n *model.Notice
		inferred, n = c.classify(ctx, text)
		notices = append(notices, noticeList(n)...)
	}
	combined := model.DedupeTags(append(manual, inferred...))

	entry, err := c.deps.Entries.Create(ctx, &model.MoodEntry{UserID: c.userID, Text: text, Tags: combined})
	if err != nil {
		c.deps.Log.Error().Stack().Err(err).Str("user_id", c.userID).Msg("save entry failed")
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state = StateIdle
		c.inferred = inferred
		notices = append(notices, model.Notice{Level: model.NoticeError, Message: "Could not save the entry. Please try again."})
		return Result{Snapshot: c.snapshotLocked(), Notices: notices}, err
	}

	kind := "text"
	if len(audio) > 0 {
		kind = "voice"
		ref, err := c.attachAudio(ctx, entry, audio, duration)
		if err != nil {
			c.deps.Log.Error().Stack().Err(err).Str("entry_id", entry.ID).Msg("audio attachment failed; entry saved without audio")
			metrics.AudioAttachFailures.Inc()
			notices = append(notices, model.Notice{Level: model.NoticeWarning, Message: "Entry saved, but the recording could not be uploaded."})
		} else {
			entry.Audio = ref
		}
	}
	metrics.EntriesSaved.WithLabelValues(kind).Inc()

	c.mu.Lock()
	c.text = ""
	c.manual = nil
	c.inferred = nil
	c.audio = nil
	c.duration = 0
	c.state = StateIdle
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.deps.Moods != nil {
		c.deps.Moods.Append(*entry)
	}
	notices = append(notices, model.Notice{Level: model.NoticeInfo, Message: "Mood saved."})
	return Result{Snapshot: snap, Entry: entry, Notices: notices}, nil
}

func (c *Composer) attachAudio(ctx context.Context, entry *model.MoodEntry, audio []byte, duration int) (*model.AudioRef, error) {
	var ref *model.AudioRef
	err := c.deps.AudioRetry.Do(ctx, func(ctx context.Context) error {
		key := objectstore.AudioKey(c.userID, entry.ID, c.now())
		url, err := c.deps.Blobs.Put(ctx, key, objectstore.AudioContentType, audio)
		if err != nil {
			return err
		}
		rec, err := c.deps.Recordings.Put(ctx, &model.AudioRecording{
			EntryID:         entry.ID,
			UserID:          c.userID,
			URL:             url,
			DurationSeconds: duration,
		})
		if errors.Is(err, store.ErrNotFound) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		ref = rec.Ref()
		return nil
	}, func(err error, wait time.Duration) {
		metrics.AudioAttachRetries.Inc()
		c.deps.Log.Warn().Err(err).Dur("wait", wait).Str("entry_id", entry.ID).Msg("audio attachment failed; retrying")
	})
	return ref, err
}

func noticeList(n *model.Notice) []model.Notice {
	if n == nil {
		return nil
	}
	return []model.Notice{*n}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
