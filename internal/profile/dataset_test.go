package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	rows := [][]string{
		{"1", "A", "2024-01-01", "yes", "10"},
		{"2", "A", "2024-01-02", "no", "20"},
		{"3", "B", "2024-01-03", "yes", "31"},
		{"", "C", "", "no", "39"},
		{"5", "A", "2024-01-05", "yes", "52"},
		{"5", "A", "2024-01-05", "yes", "52"},
	}
	ds := &Dataset{Name: "sample", Columns: []string{"n", "cat", "when", "flag", "m"}}
	for _, r := range rows {
		row := Row{}
		for i, c := range ds.Columns {
			row[c] = ParseValue(r[i])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func TestProfileDataset(t *testing.T) {
	ds := sampleDataset()
	p, err := ProfileDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, 6, p.TotalRows)
	assert.Equal(t, 5, p.TotalColumns)
	assert.Equal(t, 2, p.MissingCells)
	assert.Equal(t, 1, p.DuplicateRows)
	assert.Equal(t, TypeCounts{Numeric: 2, Categorical: 1, DateTime: 1, Boolean: 1}, p.TypeCounts)

	require.Len(t, p.Fields, 5)
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, ds.Columns, names)

	when, ok := p.Field("when")
	require.True(t, ok)
	assert.Equal(t, TypeDateTime, when.Type)
	assert.Equal(t, "2024-01-05", when.MostFrequent)
}

func TestProfileDatasetIdempotent(t *testing.T) {
	ds := sampleDataset()
	a, err := ProfileDataset(ds)
	require.NoError(t, err)
	b, err := ProfileDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProfileDatasetEmpty(t *testing.T) {
	p, err := ProfileDataset(&Dataset{Columns: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalRows)
	assert.Equal(t, 0, p.TotalColumns)
	assert.NotNil(t, p.Fields)
	assert.Empty(t, p.Fields)

	_, err = ProfileDataset(nil)
	assert.True(t, errors.Is(err, ErrNilDataset))
}

func TestProfileDatasetRaggedRows(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"a", "b"},
		Rows: []Row{
			{"a": ParseValue("1"), "b": ParseValue("x")},
			{"a": ParseValue("2")},
			{"b": ParseValue("y"), "extra": ParseValue("ignored")},
		},
	}
	p, err := ProfileDataset(ds)
	require.NoError(t, err)
	a, _ := p.Field("a")
	b, _ := p.Field("b")
	assert.Equal(t, 1, a.Missing)
	assert.Equal(t, 1, b.Missing)
	assert.Equal(t, 2, p.TotalColumns)
}

func TestProfileDatasetHeaderFromFirstRow(t *testing.T) {
	ds := &Dataset{Rows: []Row{{"b": ParseValue("1"), "a": ParseValue("x")}}}
	p, err := ProfileDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Fields[0].Name)
	assert.Equal(t, "b", p.Fields[1].Name)
}

func TestProfileDatasetDuplicateHeader(t *testing.T) {
	ds := &Dataset{Columns: []string{"a", "a"}, Rows: []Row{{"a": ParseValue("1")}}}
	_, err := ProfileDataset(ds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateColumn))
	var pe *ProfilingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "a", pe.Column)
}

func TestHistogramForAndProfileColumn(t *testing.T) {
	ds := sampleDataset()
	h, err := HistogramFor(ds, "cat")
	require.NoError(t, err)
	assert.Equal(t, "cat", h.Column)
	assert.Equal(t, []CategoryCount{{"A", 4}, {"B", 1}, {"C", 1}}, h.Categories)

	_, err = HistogramFor(ds, "nope")
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	cp, err := ProfileColumn(ds, "m")
	require.NoError(t, err)
	assert.Equal(t, TypeNumeric, cp.Type)

	_, err = ProfileColumn(ds, "nope")
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestRecommendationsFor(t *testing.T) {
	p, err := ProfileDataset(sampleDataset())
	require.NoError(t, err)
	recs := RecommendationsFor(p)
	require.Len(t, recs, 5)
	assert.Contains(t, kindsOf(recs["n"]), RecModerateMissing)
}

func TestCorrelations(t *testing.T) {
	m, err := Correlations(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "m"}, m.Columns)
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.Greater(t, m.Values[0][1], 0.95)
	assert.Equal(t, m.Values[0][1], m.Values[1][0])

	strong := m.StrongPairs(StrongCorrelation)
	require.Len(t, strong, 1)
	assert.Equal(t, "n", strong[0].A)
	assert.Equal(t, "m", strong[0].B)
}

func TestCorrelationsConstantColumn(t *testing.T) {
	ds := &Dataset{Columns: []string{"x", "k"}}
	for _, v := range []string{"1", "2", "3", "4"} {
		ds.Rows = append(ds.Rows, Row{"x": ParseValue(v), "k": ParseValue("7")})
	}
	m, err := Correlations(ds)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Values[0][1])
	assert.Empty(t, m.StrongPairs(StrongCorrelation))
}
