package pipeline

import (
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
)

// maxMalformedLogged bounds per-source warn lines; the metric still counts every cell.
const maxMalformedLogged = 20

// normalize cleans one source and reports its malformed cells. Malformed
// cells never fail the load; they are already missing in the part.
func (l *Loader) normalize(spec domain.DatasetSpec, src domain.SourceDescriptor, raw domain.RawTable) (domain.Part, error) {
	part, err := domain.Normalize(spec, src, raw)
	if err != nil {
		return domain.Part{}, err
	}

	if n := len(part.Malformed); n > 0 {
		l.metrics.MalformedCells.WithLabelValues(spec.Name).Add(float64(n))
		for i, m := range part.Malformed {
			if i == maxMalformedLogged {
				l.logger.Warn("further malformed cells not logged",
					"dataset", spec.Name, "source", src.ID, "remaining", n-i)
				break
			}
			l.logger.Warn("malformed numeric cell treated as missing",
				"dataset", spec.Name,
				"source", m.Source,
				"column", m.Column,
				"row", m.Row,
				"raw", m.Raw,
				"error", m.Err,
			)
		}
	}
	l.logger.Debug("source normalized", "dataset", spec.Name, "source", src.ID,
		"records", len(part.Records), "malformed", len(part.Malformed))
	return part, nil
}
