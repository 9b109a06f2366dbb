package export

import (
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/naming"
	"github.com/spherical/pagesnap/internal/session"
)

// BaseNameFunc picks the name output filenames are derived from.
type BaseNameFunc func(doc session.DocumentSnapshot) string

// DisplayBaseName uses the document's display name.
func DisplayBaseName(doc session.DocumentSnapshot) string {
	return doc.DisplayName
}

// ArchiveBaseName uses the display name without its extension.
func ArchiveBaseName(doc session.DocumentSnapshot) string {
	return naming.SafeBaseName(doc.DisplayName)
}

// FixedBaseName uses name for every document.
func FixedBaseName(name string) BaseNameFunc {
	return func(session.DocumentSnapshot) string { return name }
}

// Queue is the ordered list of units of one batch: documents in session
// order, pages ascending within a document.
type Queue struct {
	units []domain.ExportUnit
	next  int
}

// NewQueue flattens a snapshot. A nil baseName uses DisplayBaseName.
func NewQueue(snap session.Snapshot, baseName BaseNameFunc) *Queue {
	if baseName == nil {
		baseName = DisplayBaseName
	}

	q := &Queue{units: make([]domain.ExportUnit, 0, snap.TotalSelected())}
	for _, doc := range snap.Documents {
		base := baseName(doc)
		for _, page := range doc.Selected {
			q.units = append(q.units, domain.ExportUnit{
				DocumentID:  doc.ID,
				DisplayName: doc.DisplayName,
				BaseName:    base,
				Document:    doc.Handle,
				Page:        page,
			})
		}
	}
	return q
}

// Len returns the total number of units.
func (q *Queue) Len() int {
	return len(q.units)
}

// Remaining returns the number of units not yet popped.
func (q *Queue) Remaining() int {
	return len(q.units) - q.next
}

// Pop returns the next unit.
func (q *Queue) Pop() (domain.ExportUnit, bool) {
	if q.next >= len(q.units) {
		return domain.ExportUnit{}, false
	}
	u := q.units[q.next]
	q.units[q.next] = domain.ExportUnit{}
	q.next++
	return u, true
}
