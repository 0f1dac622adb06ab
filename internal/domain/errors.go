package domain

import "errors"

var (
	ErrNoContent         = errors.New("no content")
	ErrEmbedding         = errors.New("embedding failed")
	ErrStore             = errors.New("vector store failed")
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrGeneration        = errors.New("generation failed")
	ErrCollectionExists  = errors.New("collection already exists")
	ErrCollectionMissing = errors.New("collection not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrInvalidArgument   = errors.New("invalid argument")
)

func IsCollectionExists(err error) bool {
	return errors.Is(err, ErrCollectionExists)
}
