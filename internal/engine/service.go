package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
)

// Searcher is what a Service needs from an Engine.
type Searcher interface {
	Search(ctx context.Context, desc source.Descriptor, query string) record.ResultSet
}

// Service runs searches on named sources, resolving descriptors from the
// store and credentials from the environment.
type Service struct {
	Engine  Searcher
	Sources source.Store
	Logger  *slog.Logger
}

func (s *Service) Search(ctx context.Context, name, query string, maxPages int) record.ResultSet {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	desc, err := s.Sources.Resolve(name)
	if err != nil {
		return record.Failure(name, err)
	}
	if maxPages > 0 {
		desc.MaxPages = maxPages
	}
	if desc.RequiresAuth && desc.Credentials == nil {
		ref := desc.CredentialRef
		if ref == "" {
			ref = desc.Name
		}
		creds, err := source.ResolveEnv(ref)
		if err != nil {
			return record.Failure(desc.Name, fmt.Errorf("%w: %v", failure.ErrAuthenticationFailed, err))
		}
		desc = desc.WithCredentials(creds)
	}
	if _, err := s.Sources.Touch(desc.Name); err == nil {
		logger.Debug("source used", "source", desc.Name)
	}
	return s.Engine.Search(ctx, desc, query)
}

func (s *Service) List() ([]source.Descriptor, error) {
	return s.Sources.All()
}
