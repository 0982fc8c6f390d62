package sqlite

import (
	"github.com/felixgeelhaar/socratic/internal/auth"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ auth.Repository       = (*AuthStore)(nil)
	_ tutor.ProgressStore   = (*ProgressStore)(nil)
	_ retriever.VectorStore = (*VectorStore)(nil)
)
