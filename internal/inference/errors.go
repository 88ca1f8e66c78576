package inference

import "fmt"

// TranscriptionError reports a failed transcribe call. StatusCode is 0 for network failures.
type TranscriptionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transcription failed: HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ClassificationError reports a failed analyze call. StatusCode is 0 for network failures.
type ClassificationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ClassificationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("classification failed: HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
