package export

import (
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/naming"
	"github.com/spherical/pagesnap/internal/session"
)

// IndividualFiles pairs each result with its own filename.
func IndividualFiles(results []domain.PageExportResult) []domain.NamedBlob {
	files := make([]domain.NamedBlob, len(results))
	for i, r := range results {
		files[i] = domain.NamedBlob{Name: r.Filename, Data: r.Bytes}
	}
	return files
}

// ArchiveEntries places each result under "{safe base name}/{filename}" of
// the document it came from.
func ArchiveEntries(results []domain.PageExportResult, snap session.Snapshot) []domain.NamedBlob {
	dirs := make(map[string]string, len(snap.Documents))
	for _, d := range snap.Documents {
		dirs[d.ID] = naming.SafeBaseName(d.DisplayName)
	}

	entries := make([]domain.NamedBlob, len(results))
	for i, r := range results {
		dir, ok := dirs[r.DocumentID]
		if !ok {
			dir = r.DocumentID
		}
		entries[i] = domain.NamedBlob{Name: dir + "/" + r.Filename, Data: r.Bytes}
	}
	return entries
}

// TotalBytes sums the encoded sizes of results.
func TotalBytes(results []domain.PageExportResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Bytes)
	}
	return n
}
