package storage

import (
	"os"
	"path/filepath"
	"testing"

	"astock-strategy-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	csv := `date,open,high,low,close,volume
2024-01-02,10.0,10.5,9.8,10.2,120000
2024-01-03,10.2,10.2,10.2,10.2,0
2024-01-04,10.3,11.0,10.1,10.9,98000
`
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	bars, err := LoadBars(path)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "2024-01-02", bars[0].Date)
	assert.Equal(t, 10.2, bars[0].Close)
	assert.False(t, bars[0].Suspended())

	// A zero-volume row is kept and marked suspended.
	assert.True(t, bars[1].Suspended())
}

func TestLoadBars_Errors(t *testing.T) {
	_, err := LoadBars(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	headerOnly := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("date,open,high,low,close,volume\n"), 0644))
	_, err = LoadBars(headerOnly)
	assert.Error(t, err)

	badNumber := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(badNumber, []byte("date,open,high,low,close,volume\n2024-01-02,x,1,1,1,1\n"), 0644))
	_, err = LoadBars(badNumber)
	assert.Error(t, err)
}

func TestSaveThenLoadBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "bars.csv")
	bars := []models.Bar{
		{Date: "2024-01-02", Open: 10, High: 10.5, Low: 9.8, Close: 10.2, Volume: 120000},
		{Date: "2024-01-03", Open: 10.2, High: 10.8, Low: 10.0, Close: 10.6, Volume: 90000},
	}

	require.NoError(t, SaveBars(path, bars))

	loaded, err := LoadBars(path)
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
}
