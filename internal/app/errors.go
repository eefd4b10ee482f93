package app

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("document not found")

	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("document could not be read")
	ErrNoExtractableText = errors.New("document contains no extractable text")
	ErrFileTooLarge      = errors.New("file exceeds the upload size limit")

	ErrStorageUnavailable = errors.New("object storage unavailable")
	ErrEmbeddingService   = errors.New("embedding service error")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrRetrieval          = errors.New("retrieval failed")
	ErrLLM                = errors.New("language model error")
	ErrIdentityProvider   = errors.New("identity provider unavailable")

	ErrEmbeddingModelMismatch = errors.New("document was indexed with a different embedding model")
	ErrDocumentNotReady       = errors.New("document is still being indexed")
)
