package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/RaiderRus/moodTrack/internal/inference"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

type fakeChat struct {
	reply  string
	err    error
	system string
}

func (f *fakeChat) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(msgs) > 0 && len(msgs[0].Parts) > 0 {
		if tp, ok := msgs[0].Parts[0].(llms.TextContent); ok {
			f.system = tp.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeChat) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func newBackend(t *testing.T, baseURL string, chat llms.Model) *Backend {
	t.Helper()
	return NewWithModel(Config{
		BaseURL:       baseURL,
		APIKey:        "sk-test",
		RatePerSecond: 100,
		Burst:         10,
		MaxAudioBytes: 1024,
	}, tags.MustDefault(), chat)
}

func TestClassifyFiltersUnknownIDs(t *testing.T) {
	chat := &fakeChat{reply: "```json\n[\"happy\", \"work_activity\", \"ecstatic\"]\n```"}
	b := newBackend(t, "http://unused", chat)

	ids, err := b.Classify(context.Background(), "great day at the office")
	require.NoError(t, err)
	assert.Equal(t, []string{"happy", "work_activity"}, ids)
	assert.Contains(t, chat.system, "Emotions: happy, excited, calm, anxious, sad, angry")
	assert.NotContains(t, chat.system, "other")
}

func TestClassifyErrors(t *testing.T) {
	_, err := newBackend(t, "http://unused", &fakeChat{err: errors.New("quota")}).Classify(context.Background(), "x")
	assert.Error(t, err)

	_, err = newBackend(t, "http://unused", &fakeChat{reply: "I feel happy"}).Classify(context.Background(), "x")
	assert.Error(t, err)
}

func TestTranscribeCallsWhisper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			b, _ := io.ReadAll(f)
			assert.Equal(t, "webm", string(b))
		}
		_, _ = io.WriteString(w, `{"text":" I went for a run "}`)
	}))
	defer srv.Close()

	text, err := newBackend(t, srv.URL, &fakeChat{}).Transcribe(context.Background(), []byte("webm"), "")
	require.NoError(t, err)
	assert.Equal(t, "I went for a run", text)
}

func TestTranscribeLimits(t *testing.T) {
	b := newBackend(t, "http://unused", &fakeChat{})
	_, err := b.Transcribe(context.Background(), []byte(strings.Repeat("a", 2048)), "a.webm")
	assert.ErrorIs(t, err, inference.ErrAudioTooLarge)

	_, err = b.Transcribe(context.Background(), nil, "a.webm")
	assert.Error(t, err)
}

func TestParseTagArray(t *testing.T) {
	ids, err := parseTagArray(`Sure: ["calm","rest"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"calm", "rest"}, ids)

	_, err = parseTagArray("none")
	assert.Error(t, err)
}
