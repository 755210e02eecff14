package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	telemetry "panel-energy/internal/telemetry/domain"
)

const readingColumns = `waktu, real_power, i_r, i_s, i_t, cos_phi, freq, avg_line_line, avg_line_neut, total_kwh`

var viewNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ErrUnknownSource is returned when no view is configured for a source.
var ErrUnknownSource = errors.New("telemetry query: unknown source")

// ReadingQuery reads panel readings from one Postgres view per source.
type ReadingQuery struct {
	db    *sql.DB
	views map[string]string
}

// NewReadingQuery constructs a query. views maps source id to a view or table name.
func NewReadingQuery(db *sql.DB, views map[string]string) (*ReadingQuery, error) {
	if db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	copied := make(map[string]string, len(views))
	for sourceID, view := range views {
		if !viewNamePattern.MatchString(view) {
			return nil, fmt.Errorf("telemetry query: invalid view name %q for source %s", view, sourceID)
		}
		copied[sourceID] = view
	}
	return &ReadingQuery{db: db, views: copied}, nil
}

// Readings returns readings within [start, end) ordered by time.
func (q *ReadingQuery) Readings(ctx context.Context, sourceID string, start, end time.Time) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, errors.New("telemetry query: invalid arguments")
	}
	view, err := q.view(sourceID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE waktu >= $1
	AND waktu < $2
ORDER BY waktu ASC`, readingColumns, view)

	rows, err := q.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		reading, err := scanReading(rows, sourceID)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].At.Before(readings[j].At) })
	return readings, nil
}

// Latest returns the newest reading of a source, or nil when the view is empty.
func (q *ReadingQuery) Latest(ctx context.Context, sourceID string) (*telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	view, err := q.view(sourceID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY waktu DESC
LIMIT 1`, readingColumns, view)

	reading, err := scanReading(q.db.QueryRowContext(ctx, query), sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

func (q *ReadingQuery) view(sourceID string) (string, error) {
	view, ok := q.views[sourceID]
	if !ok || view == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return view, nil
}

func scanReading(scanner interface{ Scan(dest ...any) error }, sourceID string) (telemetry.Reading, error) {
	var (
		at                             time.Time
		power, ia, ib, ic, pf, freq    sql.NullFloat64
		voltageLL, voltageLN, totalKWh sql.NullFloat64
	)
	if err := scanner.Scan(&at, &power, &ia, &ib, &ic, &pf, &freq, &voltageLL, &voltageLN, &totalKWh); err != nil {
		return telemetry.Reading{}, err
	}
	return telemetry.Reading{
		SourceID:         sourceID,
		At:               at.UTC(),
		PowerKW:          nullable(power),
		CurrentA:         nullable(ia),
		CurrentB:         nullable(ib),
		CurrentC:         nullable(ic),
		PowerFactor:      nullable(pf),
		FrequencyHz:      nullable(freq),
		VoltageLL:        nullable(voltageLL),
		VoltageLN:        nullable(voltageLN),
		EnergyCounterKWh: nullable(totalKWh),
	}, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}
