package income

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autolytiq/income-service/internal/domain"
)

func TestSnapshotEncodeDecode(t *testing.T) {
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	s := Snapshot{
		Calculator: &CalculatorState{YTDEarnings: " 10000 ", EmploymentStartDate: "2025-01-01", AsOfDate: "2025-03-01"},
		Streams:    []domain.IncomeStream{stream(" rent ", 900, domain.FrequencyMonthly, 4)},
		UpdatedAt:  now,
	}

	raw, err := Encode(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), `"version":1`) {
		t.Fatalf("expected current version in payload, got %s", raw)
	}

	decoded, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Calculator.YTDEarnings != "10000" {
		t.Fatalf("expected trimmed earnings, got %q", decoded.Calculator.YTDEarnings)
	}
	if len(decoded.Streams) != 1 || decoded.Streams[0].ID != "rent" {
		t.Fatalf("expected normalized stream id, got %+v", decoded.Streams)
	}
	if !decoded.Streams[0].Amount.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected amount 900, got %s", decoded.Streams[0].Amount)
	}
}

func TestDecodeSnapshotRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{`, ErrInvalidInput},
		{"newer version", `{"version":2,"streams":[]}`, ErrSnapshotVersion},
		{"bad frequency", `{"streams":[{"id":"a","type":"gig","amount":"10","frequency":"daily","stabilityRating":2}]}`, ErrUnknownFrequency},
		{"reserved id", `{"streams":[{"id":"calculator","type":"gig","amount":"10","frequency":"weekly","stabilityRating":2}]}`, ErrInvalidStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSnapshot([]byte(tt.raw)); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeUnversionedSnapshot(t *testing.T) {
	s, err := DecodeSnapshot([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Version != SnapshotVersion {
		t.Fatalf("expected version %d, got %d", SnapshotVersion, s.Version)
	}
	if s.Streams == nil {
		t.Fatal("expected an empty, non-nil stream list")
	}
}

func TestSnapshotUpsertAndRemove(t *testing.T) {
	now := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	s := Snapshot{Version: SnapshotVersion}

	s, err := s.UpsertStream(stream("a", 100, domain.FrequencyMonthly, 3), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err = s.UpsertStream(stream("b", 50, domain.FrequencyWeekly, 2), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err = s.UpsertStream(stream("a", 200, domain.FrequencyMonthly, 3), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(s.Streams) != 2 {
		t.Fatalf("expected 2 streams after replace, got %d", len(s.Streams))
	}
	if !s.Streams[0].Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected stream a replaced in place, got %s", s.Streams[0].Amount)
	}

	s = s.RemoveStream("a", now)
	s = s.RemoveStream("missing", now)
	if len(s.Streams) != 1 || s.Streams[0].ID != "b" {
		t.Fatalf("expected only stream b left, got %+v", s.Streams)
	}

	if _, err := s.UpsertStream(stream("c", -1, domain.FrequencyMonthly, 3), now); !errors.Is(err, ErrInvalidStream) {
		t.Fatalf("expected ErrInvalidStream, got %v", err)
	}
}

func TestCombinedStreamsCountsCalculatorOnce(t *testing.T) {
	now := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	s := Snapshot{
		Version:    SnapshotVersion,
		Calculator: &CalculatorState{YTDEarnings: "10000", EmploymentStartDate: "2025-01-01", AsOfDate: "2025-07-01"},
		Streams:    []domain.IncomeStream{stream("side", 100, domain.FrequencyWeekly, 2)},
	}

	streams, err := s.CombinedStreams(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected calculator plus one stream, got %d", len(streams))
	}
	if streams[0].ID != "calculator" || streams[0].Frequency != domain.FrequencyAnnually {
		t.Fatalf("expected calculator stream first, got %+v", streams[0])
	}

	summary, err := Summarize(streams, DefaultStabilityWeights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalAnnual != 20055+5200 {
		t.Fatalf("expected total 25255, got %d", summary.TotalAnnual)
	}

	s.Calculator = nil
	streams, err = s.CombinedStreams(now)
	if err != nil || len(streams) != 1 {
		t.Fatalf("expected only stored streams without calculator input, got %d (%v)", len(streams), err)
	}
}

func TestWithCalculatorStreamRejectsReservedID(t *testing.T) {
	result, err := FromMonthly(decimal.NewFromInt(3000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	combined, err := WithCalculatorStream(result, []domain.IncomeStream{stream("side", 100, domain.FrequencyWeekly, 2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(combined) != 2 || combined[0].ID != CalculatorStreamID {
		t.Fatalf("expected calculator stream first, got %+v", combined)
	}

	_, err = WithCalculatorStream(result, []domain.IncomeStream{stream(CalculatorStreamID, 100, domain.FrequencyWeekly, 2)})
	if !errors.Is(err, ErrInvalidStream) || !strings.Contains(err.Error(), "reserved") {
		t.Fatalf("expected reserved id error, got %v", err)
	}
}
