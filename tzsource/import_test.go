package tzsource

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/synctz/tzreg"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRegistry() *tzreg.Registry {
	return tzreg.New(
		tzreg.WithLogger(quiet),
		tzreg.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

func TestImport(t *testing.T) {
	f := mustParse(t)
	reg := newRegistry()
	opts := ImportOptions{Since: 1970, Until: 2025, Logger: quiet, Concurrency: 2}

	report, err := Import(context.Background(), reg, f, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Europe/Berlin", "Europe/Dublin", "America/New_York", "Asia/Tokyo",
		"America/Sao_Paulo", "Test/Permanent", "Arctic/Longyearbyen",
	}, report.Added)
	assert.Empty(t, report.Skipped)
	failed := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		failed = append(failed, name)
	}
	slices.Sort(failed)
	assert.Equal(t, []string{"Test/Dangling", "Test/Odd", "Test/Twice"}, failed)

	berlin, ok := reg.Lookup("Europe/Berlin")
	require.True(t, ok)
	r1975, _ := reg.GetForYear(berlin, 1975)
	assert.False(t, r1975.HasDST())
	r2024, _ := reg.GetForYear(berlin, 2024)
	assert.Equal(t, on(10, 0, 5, 3), r2024.Std)
	assert.True(t, r2024.GroupEnd)

	alias, ok := reg.Lookup("Arctic/Longyearbyen")
	require.True(t, ok)
	a2024, _ := reg.GetForYear(alias, 2024)
	assert.True(t, tzreg.SameRules(r2024, a2024))
	assert.Equal(t, "Europe/Berlin", a2024.Location)

	// The imported zone matches the built-in entry by rules.
	m, ok := reg.BestMatch(tzreg.Rule{Name: "Berlin", Bias: 60, DSTBias: 60, DST: on(3, 0, 5, 2), Std: on(10, 0, 5, 3)})
	require.True(t, ok)
	assert.True(t, m.RuleMatch)

	n := reg.Len()
	again, err := Import(context.Background(), reg, f, opts)
	require.NoError(t, err)
	assert.Empty(t, again.Added)
	assert.Len(t, again.Skipped, 7)
	assert.Equal(t, n, reg.Len())
}

func TestImport_Zones(t *testing.T) {
	f := mustParse(t)
	reg := newRegistry()
	report, err := Import(context.Background(), reg, f, ImportOptions{
		Zones:  []string{"Arctic/Longyearbyen", "Asia/Tokyo"},
		Logger: quiet,
		Now:    func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Asia/Tokyo", "Arctic/Longyearbyen"}, report.Added)
	_, ok := reg.Lookup("Europe/Berlin")
	assert.False(t, ok)
}

func TestImport_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Import(ctx, newRegistry(), mustParse(t), ImportOptions{Logger: quiet})
	assert.ErrorIs(t, err, context.Canceled)
}
