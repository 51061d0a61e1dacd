package record

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestSheet(t *testing.T, headers []string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)

	hr := sheet.AddRow()
	for _, h := range headers {
		hr.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestResolveHeaders_CanonicalNames(t *testing.T) {
	cols := ResolveHeaders([]string{"idsbr", "nama_usaha", "alamat", "latitude", "longitude", "hasil_gc"})
	assert.Equal(t, 0, cols["idsbr"])
	assert.Equal(t, 1, cols["nama_usaha"])
	assert.Equal(t, 2, cols["alamat"])
	assert.Equal(t, 3, cols["latitude"])
	assert.Equal(t, 4, cols["longitude"])
	assert.Equal(t, 5, cols["hasil_gc"])
}

func TestResolveHeaders_AliasesAndCase(t *testing.T) {
	cols := ResolveHeaders([]string{"IDSBR", "Nama Usaha", "Alamat Usaha", "Lat", "Long", "KeberadaanUsaha_GC"})
	assert.Equal(t, 0, cols["idsbr"])
	assert.Equal(t, 1, cols["nama_usaha"])
	assert.Equal(t, 2, cols["alamat"])
	assert.Equal(t, 3, cols["latitude"])
	assert.Equal(t, 4, cols["longitude"])
	assert.Equal(t, 5, cols["hasil_gc"])
}

func TestResolveHeaders_ResultFallbackColumn(t *testing.T) {
	// No recognized result header: the sixth column is assumed.
	cols := ResolveHeaders([]string{"idsbr", "nama", "alamat", "lat", "lon", "something"})
	assert.Equal(t, 5, cols["hasil_gc"])
}

func TestResolveHeaders_NoFallbackWhenTooNarrow(t *testing.T) {
	cols := ResolveHeaders([]string{"idsbr", "nama"})
	_, ok := cols["hasil_gc"]
	assert.False(t, ok)
}

func TestLoadRecords_Basic(t *testing.T) {
	path := writeTestSheet(t,
		[]string{"idsbr", "nama_usaha", "alamat", "lat", "lon", "hasil_gc"},
		[][]string{
			{"123", "Toko Maju Jaya", "Jl. A No. 1", "-6.2", "106.8", "1"},
			{"456", "Warung Sederhana", "", "", "", ""},
		},
	)

	records, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, "123", records[0].ID)
	assert.Equal(t, "Toko Maju Jaya", records[0].Name)
	assert.Equal(t, "Jl. A No. 1", records[0].Address)
	assert.Equal(t, "-6.2", records[0].Latitude)
	assert.Equal(t, "106.8", records[0].Longitude)
	assert.Equal(t, ResultFound, records[0].Result)

	assert.Equal(t, 2, records[1].Row)
	assert.Equal(t, ResultUnset, records[1].Result)
}

func TestLoadRecords_SkipsEmptyRows(t *testing.T) {
	path := writeTestSheet(t,
		[]string{"idsbr", "nama_usaha"},
		[][]string{
			{"123", "Toko Maju Jaya"},
			{"", ""},
		},
	)

	records, err := LoadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLoadRecords_MissingFile(t *testing.T) {
	_, err := LoadRecords(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}

func TestClampRange_Defaults(t *testing.T) {
	lo, hi, err := ClampRange(10, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 10, hi)
}

func TestClampRange_ClampsEnd(t *testing.T) {
	lo, hi, err := ClampRange(5, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 5, hi)
}

func TestClampRange_StartBeyondData(t *testing.T) {
	lo, hi, err := ClampRange(3, 7, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)
}

func TestClampRange_StartAfterEnd(t *testing.T) {
	_, _, err := ClampRange(10, 5, 2)
	assert.Error(t, err)
}

func TestClampRange_NegativeBounds(t *testing.T) {
	_, _, err := ClampRange(10, -1, 5)
	assert.Error(t, err)
}
