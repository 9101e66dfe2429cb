package dashboard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelAccumulatesRowsUpToMaxRows(t *testing.T) {
	m := NewModel(nil, nil)
	m.maxRows = 3

	for cycle := 0; cycle < 5; cycle++ {
		updated, cmd := m.Update(CycleMsg(Row{Cycle: cycle, Games: 5}))
		m = updated.(Model)
		assert.NotNil(t, cmd)
	}

	require.Len(t, m.rows, 3)
	assert.Equal(t, 2, m.rows[0].Cycle) // oldest two trimmed
	assert.Equal(t, 4, m.rows[2].Cycle)
}

func TestModelWindowSizeUpdatesDimensions(t *testing.T) {
	m := NewModel(nil, nil)
	updated, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(Model)

	assert.Nil(t, cmd)
	assert.Equal(t, 100, m.width)
	assert.Equal(t, 40, m.height)
}

func TestModelQuitsOnQKey(t *testing.T) {
	m := NewModel(nil, nil)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(Model)

	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestViewRendersBestRowMarker(t *testing.T) {
	m := NewModel(nil, nil)
	updated, _ := m.Update(CycleMsg(Row{Cycle: 1, Games: 5, BestPerf: 0.5, IsBest: true}))
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "*best*")
	assert.Contains(t, view, "cycle")
}
