package factorfeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/pkg/config"
	"github.com/wqlab/screener/pkg/database"
	"github.com/wqlab/screener/pkg/logger"
)

func TestChunkCodes(t *testing.T) {
	codes := []string{"600001", "600002", "600003", "600004", "600005"}

	tests := []struct {
		name string
		size int
		want [][]string
	}{
		{
			name: "even split with remainder",
			size: 2,
			want: [][]string{
				{"600001", "600002"},
				{"600003", "600004"},
				{"600005"},
			},
		},
		{
			name: "size larger than input",
			size: 10,
			want: [][]string{{"600001", "600002", "600003", "600004", "600005"}},
		},
		{
			name: "zero size",
			size: 0,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkCodes(codes, tt.size))
		})
	}

	assert.Nil(t, chunkCodes(nil, 3))
}

func TestReverseInPlace(t *testing.T) {
	odd := []float64{1, 2, 3, 4, 5}
	reverseInPlace(odd)
	assert.Equal(t, []float64{5, 4, 3, 2, 1}, odd)

	even := []float64{1, 2}
	reverseInPlace(even)
	assert.Equal(t, []float64{2, 1}, even)

	reverseInPlace(nil)
}

func TestAppendRow_GroupsAndAligns(t *testing.T) {
	frames := make(map[string]*contracts.Frame)
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		appendRow(frames, frameRow{
			Code:      "600001",
			Industry:  "计算机",
			Date:      day.AddDate(0, 0, i),
			Close:     10 + float64(i),
			Volume:    1_000_000,
			Turnover:  5,
			Valuation: 1.1,
			Momentum:  100 + float64(i),
		})
	}
	appendRow(frames, frameRow{Code: "600002", Industry: "银行", Date: day, Close: 4})

	require.Len(t, frames, 2)

	f := frames["600001"]
	assert.Equal(t, "计算机", f.Industry)
	assert.Equal(t, 3, f.Days())
	assert.Equal(t, 12.0, f.LastClose())
	assert.Len(t, f.Turnover, 3)
	assert.Len(t, f.Valuation, 3)
	assert.Len(t, f.Momentum, 3)
	assert.Equal(t, 102.0, f.Momentum[2])

	assert.Equal(t, 1, frames["600002"].Days())
}

// fakeRows feeds scanFrames without a live pool.
type fakeRows struct {
	rows []frameRow
	pos  int
}

func (r *fakeRows) Next() bool {
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	r.pos++

	*dest[0].(*string) = row.Code
	*dest[1].(*string) = row.Industry
	*dest[2].(*time.Time) = row.Date
	*dest[3].(*float64) = row.Open
	*dest[4].(*float64) = row.High
	*dest[5].(*float64) = row.Low
	*dest[6].(*float64) = row.Close
	*dest[7].(*float64) = row.Volume
	*dest[8].(*float64) = row.Turnover
	*dest[9].(*float64) = row.Valuation
	*dest[10].(*float64) = row.Momentum
	return nil
}

func (r *fakeRows) Err() error { return nil }

func TestPostgresFeed_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	cfg := &config.Config{Database: config.DatabaseConfig{
		URL:      os.Getenv("DATABASE_URL"),
		MaxConns: 2, MinConns: 1,
		MaxConnLifetime: time.Hour, MaxConnIdleTime: time.Minute,
	}}
	db, err := database.New(cfg)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	defer db.Close()

	feed := NewPostgres(db, "000300", 10, logger.NewNop())
	ctx := context.Background()
	date := time.Now()

	codes, err := feed.Universe(ctx, date)
	require.NoError(t, err)
	if len(codes) == 0 {
		t.Skip("universe table is empty")
	}

	fs, err := feed.FetchFrames(ctx, codes[:min(len(codes), 10)], date, 30)
	require.NoError(t, err)
	for code, frame := range fs.Frames {
		assert.Equal(t, code, frame.Code)
		assert.Equal(t, frame.Days(), len(frame.Turnover))
		assert.Equal(t, frame.Days(), len(frame.Momentum))
	}
}

func TestScanFrames(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: []frameRow{
		{Code: "600001", Industry: "电子", Date: day, Open: 9.8, High: 10.2, Low: 9.7, Close: 10, Volume: 2_500_000, Turnover: 4.2, Valuation: 1.3, Momentum: 98},
		{Code: "600001", Industry: "电子", Date: day.AddDate(0, 0, 1), Open: 10, High: 10.5, Low: 9.9, Close: 10.4, Volume: 2_600_000, Turnover: 4.5, Valuation: 1.3, Momentum: 101},
		{Code: "600002", Industry: "银行", Date: day, Open: 5, High: 5.1, Low: 4.9, Close: 5, Volume: 8_000_000, Turnover: 1.1, Valuation: 0.7, Momentum: 95},
	}}

	frames, err := scanFrames(rows)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	f := frames["600001"]
	assert.Equal(t, 2, f.Days())
	assert.Equal(t, 10.4, f.LastClose())
	assert.Equal(t, []float64{4.2, 4.5}, f.Turnover)
	assert.Equal(t, 10.2, f.Bars[0].High)
}
