package nav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialSection(t *testing.T) {
	n := New()
	assert.Equal(t, Dashboard, n.Active())
	assert.Len(t, Sections(), 7)
}

func TestSwitchUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	n := New()
	require.True(t, n.Switch(ctx, Chat))

	changed := false
	n.OnChange(func(from, to string) { changed = true })

	assert.False(t, n.Switch(ctx, "financeiro"))
	assert.False(t, n.Switch(ctx, ""))
	assert.Equal(t, Chat, n.Active())
	assert.False(t, changed)
}

func TestSwitchRunsListenersThenHooks(t *testing.T) {
	ctx := context.Background()
	n := New()

	var order []string
	n.OnChange(func(from, to string) { order = append(order, "change:"+from+">"+to) })
	n.OnEnter(Analise, func(context.Context) { order = append(order, "enter:analise") })
	n.OnEnter(Casos, func(context.Context) { order = append(order, "enter:casos") })
	n.OnEnter("nope", func(context.Context) { order = append(order, "never") })

	require.True(t, n.Switch(ctx, Analise))
	assert.Equal(t, []string{"change:dashboard>analise", "enter:analise"}, order)

	// Re-entering the same section fires its hooks again
	order = nil
	require.True(t, n.Switch(ctx, Analise))
	assert.Equal(t, []string{"change:analise>analise", "enter:analise"}, order)
}

func TestHookMaySwitchAgain(t *testing.T) {
	ctx := context.Background()
	n := New()
	n.OnEnter(Relatorios, func(ctx context.Context) { n.Switch(ctx, Dashboard) })

	require.True(t, n.Switch(ctx, Relatorios))
	assert.Equal(t, Dashboard, n.Active())
}
