package billing_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// N asignaciones simultáneas sobre la misma clave devuelven exactamente
// {inicial+1 … inicial+N}, sin huecos ni duplicados.
// ──────────────────────────────────────────────────────────────────────────────
func TestAllocate_ConcurrenteSinHuecosNiDuplicados(t *testing.T) {
	h := newHarness(t)
	const n = 25
	const initial = 100

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := h.allocator.NextNumber(context.Background(), testBranchID, "01", "F001", initial)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, num)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, int64(initial+i+1), v)
	}
}

func TestAllocate_ClavesIndependientes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	f1, err := h.allocator.NextNumber(ctx, testBranchID, "01", "F001", 0)
	require.NoError(t, err)
	b1, err := h.allocator.NextNumber(ctx, testBranchID, "03", "B001", 0)
	require.NoError(t, err)
	f2, err := h.allocator.NextNumber(ctx, testBranchID, "01", "F001", 0)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f1)
	assert.Equal(t, int64(1), b1)
	assert.Equal(t, int64(2), f2)
}

func TestAllocate_ReintentaConflictoTransitorio(t *testing.T) {
	h := newHarness(t)
	h.db.fails = 2

	n, err := h.allocator.NextNumber(context.Background(), testBranchID, "01", "F001", 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "los intentos fallidos no consumen números")
	assert.Equal(t, 3, h.db.txs)
}

func TestAllocate_AgotaReintentos(t *testing.T) {
	h := newHarness(t)
	h.db.fails = 3

	_, err := h.allocator.NextNumber(context.Background(), testBranchID, "01", "F001", 0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))

	n, err := h.allocator.NextNumber(context.Background(), testBranchID, "01", "F001", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "un incremento sin commit no produce número")
}

func TestAllocate_ErrorAlGuardarDevuelveElNumero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("insert falló")

	_, err := h.allocator.Allocate(ctx, testBranchID, "03", "B001", 0,
		func(n int64, _ repository.DocumentRepository) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, h.db.txs, "un error que no es transitorio no se reintenta")

	n, err := h.allocator.NextNumber(ctx, testBranchID, "03", "B001", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
