package linkage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/internal/normalizer"
)

func newAssigner(t *testing.T, yaml string) *Assigner {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	a, err := NewAssigner(cfg, zap.NewNop())
	require.NoError(t, err)
	return a
}

const namePhoneCfg = `
duplicate_fields:
  - {name: name, type: name, weight: 60}
  - {name: phone, type: phone, weight: 40}
blocking_fields: [name]
similarity_threshold: 85
`

func row(id, name, phone string) Row {
	return Row{
		UniqueID: id,
		Record: models.NormalizedRecord{
			"name":  normalizer.Normalize(config.TypeName, name),
			"phone": normalizer.Normalize(config.TypePhone, phone),
		},
	}
}

func TestAssigner_AcmeEndToEnd(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	assert.Nil(t, a.Add(row("1", "Acme Ltd", "555-1234")))
	m := a.Add(row("2", "ACME LIMITED", "5551234"))
	require.NotNil(t, m)
	assert.Equal(t, 0, m.RowIndex)
	assert.Equal(t, 1, m.RowNumber)
	assert.Equal(t, "1", m.UniqueID)
	assert.Equal(t, float64(100), m.Score)

	res := a.Result()
	assert.Equal(t, 2, res.Rows)
	assert.Nil(t, res.DuplicateOf[0])
	assert.Equal(t, []models.MatchRef{{RowNumber: 2, UniqueID: "2", Score: 100}}, res.MatchedBy[0])
	assert.Empty(t, res.MatchedBy[1])
	assert.Equal(t, []int{1, 1}, res.MatchKey)
	assert.Equal(t, 1, res.Groups())
	assert.Equal(t, 1, res.Comparisons)
}

func TestAssigner_TieKeepsEarliest(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	a.Add(row("A", "Acme Ltd", "111 1111"))
	a.Add(row("B", "Acme Limited", "1111111"))
	m := a.Add(row("C", "acme ltd.", "(111) 1111"))
	require.NotNil(t, m)
	assert.Equal(t, 0, m.RowIndex)

	res := a.Result()
	assert.Len(t, res.MatchedBy[0], 2)
	assert.Equal(t, []int{1, 1, 1}, res.MatchKey)
}

func TestAssigner_NeverLinksForward(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	rows := []Row{
		row("A", "Globex Group", "2025550100"),
		row("B", "Globex Grp", "2025550100"),
		row("C", "Globex Group", "202-555-0100"),
	}
	for i, r := range rows {
		m := a.Add(r)
		if i == 0 {
			assert.Nil(t, m)
			continue
		}
		require.NotNil(t, m)
		assert.Less(t, m.RowIndex, i)
	}
}

func TestAssigner_ChainAdoptsKey(t *testing.T) {
	a := newAssigner(t, `
duplicate_fields:
  - {name: name, type: name, weight: 60}
  - {name: phone, type: phone, weight: 40}
blocking_fields: [phone]
similarity_threshold: 85
`)

	a.Add(row("A", "Acme Widgets", "5551234"))
	a.Add(row("B", "Acme Widgets Limited", "5551234"))
	m := a.Add(row("C", "Acme Ltd", "5551234"))
	require.NotNil(t, m)
	assert.Equal(t, "B", m.UniqueID)

	res := a.Result()
	assert.Equal(t, []int{1, 1, 1}, res.MatchKey)
	assert.Len(t, res.MatchedBy[0], 1)
	assert.Len(t, res.MatchedBy[1], 1)
	assert.Equal(t, 1, res.Groups())
}

func TestAssigner_SeparateGroups(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	a.Add(row("1", "Acme Ltd", "5551234"))
	a.Add(row("2", "Globex", "2025550100"))
	a.Add(row("3", "Acme Limited", "5551234"))
	a.Add(row("4", "Globex", "2025550100"))

	res := a.Result()
	assert.Equal(t, []int{1, 2, 1, 2}, res.MatchKey)
	assert.Equal(t, 2, res.Groups())
}

func TestAssigner_BelowThreshold(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	a.Add(row("1", "Acme Ltd", "5551234"))
	m := a.Add(row("2", "Acme Ltd", "9999999"))
	assert.Nil(t, m)

	res := a.Result()
	assert.Equal(t, []int{0, 0}, res.MatchKey)
	assert.Empty(t, res.MatchedBy[0])
	assert.Equal(t, 1, res.Comparisons)
}

func TestAssigner_EmptyBlockingFieldIsolated(t *testing.T) {
	a := newAssigner(t, namePhoneCfg)

	assert.Nil(t, a.Add(row("1", "", "5551234")))
	assert.Nil(t, a.Add(row("2", "", "5551234")))
	assert.Nil(t, a.Add(row("3", "Acme", "5551234")))
	assert.Nil(t, a.Add(row("4", "!!!", "5551234")))

	res := a.Result()
	assert.Zero(t, res.Comparisons)
	assert.Equal(t, []int{0, 0, 0, 0}, res.MatchKey)
	_, records := a.IndexStats()
	assert.Equal(t, 1, records)
}
