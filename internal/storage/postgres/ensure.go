package postgres

import (
	"github.com/felixgeelhaar/socratic/internal/auth"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

var (
	_ auth.Repository       = (*AuthStore)(nil)
	_ tutor.ProgressStore   = (*ProgressStore)(nil)
	_ retriever.VectorStore = (*VectorStore)(nil)
)
