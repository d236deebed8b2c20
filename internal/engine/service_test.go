package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
)

type recordingSearcher struct {
	got []source.Descriptor
}

func (r *recordingSearcher) Search(_ context.Context, desc source.Descriptor, query string) record.ResultSet {
	r.got = append(r.got, desc)
	return record.Merge(desc.Name, []record.Record{{NaturalKey: "WO1", Title: query}})
}

func TestServiceResolvesAndOverrides(t *testing.T) {
	rec := &recordingSearcher{}
	svc := &Service{Engine: rec, Sources: source.Store{Root: t.TempDir()}}

	rs := svc.Search(context.Background(), "patentscope", "aspirin", 2)
	require.Equal(t, record.StatusOK, rs.Status)
	require.Len(t, rec.got, 1)
	require.Equal(t, 2, rec.got[0].MaxPages)

	rs = svc.Search(context.Background(), "atlantis", "aspirin", 0)
	require.Equal(t, record.StatusError, rs.Status)
	require.Contains(t, rs.Records[0].Abstract, "unknown source")
	require.Len(t, rec.got, 1)
}

func TestServiceCredentials(t *testing.T) {
	rec := &recordingSearcher{}
	svc := &Service{Engine: rec, Sources: source.Store{Root: t.TempDir()}}

	t.Setenv("INPI_USERNAME", "")
	t.Setenv("INPI_PASSWORD", "")
	rs := svc.Search(context.Background(), "inpi", "aspirin", 0)
	require.Equal(t, record.StatusError, rs.Status)
	require.Contains(t, rs.Records[0].Abstract, "authentication failed")
	require.Empty(t, rec.got)

	t.Setenv("INPI_USERNAME", "alice")
	t.Setenv("INPI_PASSWORD", "secret")
	rs = svc.Search(context.Background(), "inpi", "aspirin", 0)
	require.Equal(t, record.StatusOK, rs.Status)
	require.Len(t, rec.got, 1)
	require.Equal(t, "alice", rec.got[0].Credentials.Username)

	all, err := svc.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
}
