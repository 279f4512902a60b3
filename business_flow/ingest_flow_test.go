package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGermanNumber(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		want  float64
		valid bool
	}{
		{"PlainInteger", "520", 520.0, true},
		{"CommaDecimal", "88,50", 88.5, true},
		{"ThousandsAndDecimal", "1.234,56", 1234.56, true},
		{"SpacedThousands", "1 234,56", 1234.56, true},
		// A lone dot reads as a decimal point, not a thousands separator
		{"DotDecimal", "12.345", 12.345, true},
		{"Negative", "-3,25", -3.25, true},
		{"Whitespace", "  7,5  ", 7.5, true},
		{"Empty", "", 0, false},
		{"Placeholder", "-", 0, false},
		{"Text", "stabil", 0, false},
		{"DoubleComma", "1,2,3", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseGermanNumber(tc.raw)
			assert.Equal(t, tc.valid, ok)
			if tc.valid {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestParseGermanDate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		date, err := parseGermanDate("24.12.2023")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2023, 12, 24, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("Trimmed", func(t *testing.T) {
		date, err := parseGermanDate("  05.01.2024 ")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-05", date.Format("2006-01-02"))
	})

	t.Run("ISORejected", func(t *testing.T) {
		_, err := parseGermanDate("2023-12-24")
		assert.Error(t, err)
	})

	t.Run("ImpossibleDay", func(t *testing.T) {
		_, err := parseGermanDate("31.02.2024")
		assert.Error(t, err)
	})
}

func TestCSVHeaderUnit(t *testing.T) {
	cases := []struct {
		name   string
		header string
		unit   string
		grams  float64
	}{
		{"Kilogram", "Kupfer [€/kg]", "kg", 1000.0},
		{"Tonne", "Stahl HRB [€/t]", "t", 1000000.0},
		{"Gram", "Gold [€/g] (Heraeus)", "g", 1.0},
		{"NonMass", "Strom [€/MWh]", "mwh", 0},
		{"NoSlash", "Arbeitszeit [h]", "h", 0},
		{"NoBracket", "Kommentar", "", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unit, grams := csvHeaderUnit(tc.header)
			assert.Equal(t, tc.unit, unit)
			assert.InDelta(t, tc.grams, grams, 1e-9)
		})
	}
}

func TestExcelHeaderUnit(t *testing.T) {
	assert.Equal(t, "kg", excelHeaderUnit("TAC - Kupfer [€/kg]"))
	assert.Equal(t, "kg", excelHeaderUnit("TAC - Silber [€/kg] (Heraeus)"))
	assert.Equal(t, "t", excelHeaderUnit("TAC - Stahl [€/t]"))
	assert.Equal(t, "mwh", excelHeaderUnit("TAC - Strom [€/MWh]"))
}

func TestParseExcelDate(t *testing.T) {
	t.Run("SerialNumber", func(t *testing.T) {
		date, err := parseExcelDate("45285")
		require.NoError(t, err)
		assert.Equal(t, "2023-12-25", date.Format("2006-01-02"))
	})

	t.Run("SerialWithTimeFraction", func(t *testing.T) {
		date, err := parseExcelDate("45285.75")
		require.NoError(t, err)
		assert.Equal(t, "2023-12-25", date.Format("2006-01-02"))
		assert.Zero(t, date.Hour())
	})

	t.Run("GermanString", func(t *testing.T) {
		date, err := parseExcelDate("26.12.2023")
		require.NoError(t, err)
		assert.Equal(t, "2023-12-26", date.Format("2006-01-02"))
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := parseExcelDate("   ")
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := parseExcelDate("kein Datum")
		assert.Error(t, err)
	})
}

func TestReadCSV(t *testing.T) {
	t.Run("StripsBOM", func(t *testing.T) {
		records, err := readCSV([]byte("\xef\xbb\xbfDatum,Wert\n01.01.2024,5\n"))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Datum", records[0][0])
	})

	t.Run("RaggedRows", func(t *testing.T) {
		records, err := readCSV([]byte("a,b,c\n1,2\n3,4,5,6\n"))
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Len(t, records[1], 2)
		assert.Len(t, records[2], 4)
	})

	t.Run("QuotedFields", func(t *testing.T) {
		records, err := readCSV([]byte("name,value\n\"Stahl, warmgewalzt\",\"1.234,56\"\n"))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Stahl, warmgewalzt", records[1][0])
		assert.Equal(t, "1.234,56", records[1][1])
	})
}
