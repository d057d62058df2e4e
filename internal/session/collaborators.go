package session

import (
	"context"
	"io"

	"github.com/easytranscription/easy-transcription/internal/storage"
	"github.com/easytranscription/easy-transcription/internal/transcript"
	"github.com/easytranscription/easy-transcription/internal/transcription"
)

// Uploader stores an uploaded blob and returns its file reference
type Uploader interface {
	Save(name string, r io.Reader) (string, error)
	Remove(ref string) error
}

// Transcriber produces diarized segments for a stored file
type Transcriber interface {
	Transcribe(ctx context.Context, fileRef string) ([]transcript.Segment, error)
}

// FileTranscriber resolves references through a Store and sends the file to the provider
type FileTranscriber struct {
	Client *transcription.Client
	Store  *storage.Store
}

// Transcribe implements Transcriber
func (f *FileTranscriber) Transcribe(ctx context.Context, fileRef string) ([]transcript.Segment, error) {
	path, err := f.Store.Path(fileRef)
	if err != nil {
		return nil, err
	}

	result, err := f.Client.Transcribe(ctx, path, storage.ContentType(fileRef))
	if err != nil {
		return nil, err
	}

	return result.Segments, nil
}
