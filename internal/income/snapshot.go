package income

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"


	"github.com/autolytiq/income-service/internal/domain"
)

const (
	// SnapshotStorageKey is the one client storage key every surface reads.
	SnapshotStorageKey = "income-calc-state"
	// SnapshotVersion is the current schema version.
	SnapshotVersion = 1

	// CalculatorStreamID is reserved for the stream derived from the
	// calculator projection.
	CalculatorStreamID   = "calculator"
	calculatorStreamName = "Calculator projection"
)

// ErrSnapshotVersion is returned when a snapshot was written by a newer schema.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// CalculatorState is the raw calculator form as the client stores it.
type CalculatorState struct {
	YTDEarnings         string `json:"ytdIncome"`
	EmploymentStartDate string `json:"startDate"`
	AsOfDate            string `json:"checkDate,omitempty"`
}

// Snapshot is the client-local persisted state shared by every page.
type Snapshot struct {
	Version    int                   `json:"version"`
	Calculator *CalculatorState      `json:"calculator,omitempty"`
	Streams    []domain.IncomeStream `json:"streams"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// Encode validates s and serializes it in canonical form.
func Encode(s Snapshot) ([]byte, error) {
	normalized, err := normalizeSnapshot(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// DecodeSnapshot parses and validates a stored snapshot. Version 0 (an
// unversioned payload) is read as the current version.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot is not valid JSON: %v", ErrInvalidInput, err)
	}
	return normalizeSnapshot(s)
}

func normalizeSnapshot(s Snapshot) (Snapshot, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	if s.Version > SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	streams := make([]domain.IncomeStream, len(s.Streams))
	copy(streams, s.Streams)
	s.Streams = streams
	for i := range s.Streams {
		s.Streams[i].ID = strings.TrimSpace(s.Streams[i].ID)
		s.Streams[i].Name = strings.TrimSpace(s.Streams[i].Name)
	}
	if err := ValidateStreams(s.Streams); err != nil {
		return Snapshot{}, err
	}
	if err := checkReservedStreamID(s.Streams); err != nil {
		return Snapshot{}, err
	}
	if s.Calculator != nil {
		calc := *s.Calculator
		s.Calculator = &calc
		s.Calculator.YTDEarnings = strings.TrimSpace(s.Calculator.YTDEarnings)
		s.Calculator.EmploymentStartDate = strings.TrimSpace(s.Calculator.EmploymentStartDate)
		s.Calculator.AsOfDate = strings.TrimSpace(s.Calculator.AsOfDate)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

// UpsertStream replaces the stream with the same id or appends it.
func (s Snapshot) UpsertStream(stream domain.IncomeStream, now time.Time) (Snapshot, error) {
	if err := ValidateStream(stream); err != nil {
		return Snapshot{}, err
	}

	streams := make([]domain.IncomeStream, 0, len(s.Streams)+1)
	replaced := false
	for _, existing := range s.Streams {
		if existing.ID == stream.ID {
			streams = append(streams, stream)
			replaced = true
			continue
		}
		streams = append(streams, existing)
	}
	if !replaced {
		streams = append(streams, stream)
	}

	s.Streams = streams
	s.UpdatedAt = now.UTC()
	return normalizeSnapshot(s)
}

// RemoveStream drops the stream with id. Removing an unknown id is a no-op.
func (s Snapshot) RemoveStream(id string, now time.Time) Snapshot {
	streams := make([]domain.IncomeStream, 0, len(s.Streams))
	for _, existing := range s.Streams {
		if existing.ID != id {
			streams = append(streams, existing)
		}
	}
	s.Streams = streams
	s.UpdatedAt = now.UTC()
	return s
}

// CombinedStreams returns the stream list used for every combined figure.
// When calculator inputs are present the projection joins the list as one
// more stream, so income is never counted twice.
func (s Snapshot) CombinedStreams(now time.Time) ([]domain.IncomeStream, error) {
	if s.Calculator == nil || s.Calculator.YTDEarnings == "" {
		streams := make([]domain.IncomeStream, len(s.Streams))
		copy(streams, s.Streams)
		return streams, nil
	}
	input, err := ParseInput(s.Calculator.YTDEarnings, s.Calculator.EmploymentStartDate, s.Calculator.AsOfDate, now)
	if err != nil {
		return nil, err
	}
	result, err := Project(input, now)
	if err != nil {
		return nil, err
	}
	return WithCalculatorStream(result, s.Streams)
}

// WithCalculatorStream puts the calculator projection in front of streams.
// A stream already using CalculatorStreamID is rejected, never replaced.
func WithCalculatorStream(result domain.ProjectionResult, streams []domain.IncomeStream) ([]domain.IncomeStream, error) {
	if err := checkReservedStreamID(streams); err != nil {
		return nil, err
	}
	combined := make([]domain.IncomeStream, 0, len(streams)+1)
	combined = append(combined, StreamFromProjection(CalculatorStreamID, calculatorStreamName, result))
	return append(combined, streams...), nil
}

func checkReservedStreamID(streams []domain.IncomeStream) error {
	for _, stream := range streams {
		if strings.TrimSpace(stream.ID) == CalculatorStreamID {
			return fmt.Errorf("%w: stream id %q is reserved for the calculator projection", ErrInvalidStream, CalculatorStreamID)
		}
	}
	return nil
}
