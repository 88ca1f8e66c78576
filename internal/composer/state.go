// Package composer assembles a mood entry from typed text, manual tags and a
// voice recording, driving transcription, tagging and the save sequence.
package composer

import "errors"

// State is the composer lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateTagging      State = "tagging"
	StateSaving       State = "saving"
)

var (
	// ErrBusy is returned when an operation is not allowed while a network step runs.
	ErrBusy = errors.New("composer is busy")
	// ErrSaveInFlight is returned by Submit while a save is already running.
	ErrSaveInFlight = errors.New("a save is already in progress")
	// ErrNotRecording is returned by chunk, stop and cancel outside a recording.
	ErrNotRecording = errors.New("not recording")
	// ErrUnknownTag is returned when toggling an id that is not a selectable tag.
	ErrUnknownTag = errors.New("unknown or hidden tag")
	// ErrEmptyDraft is returned by Submit when there is nothing to save.
	ErrEmptyDraft = errors.New("add a tag or some text before saving")
)

// resting reports whether s accepts draft edits.
func (s State) resting() bool {
	return s == StateIdle || s == StateTagging
}
