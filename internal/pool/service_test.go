package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "6b1e6a2f-55a7-4b6e-9d3a-8c2f4a6e1b05"

func TestAllocateRejectsInvalidOwner(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.Allocate(context.Background(), "not-a-uuid", "wg", 1)
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

func TestAllocateRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.Allocate(context.Background(), testOwner, "wg", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Allocate(context.Background(), testOwner, "wg", -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAllocateRejectsEmptyCategory(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.Allocate(context.Background(), testOwner, "", 1)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestAllocateRejectsOversizedBatch(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 10)

	_, err := svc.Allocate(context.Background(), testOwner, "wg", 11)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	// The limit applies to the total across categories
	_, err = svc.AllocateSet(context.Background(), testOwner, []CategoryRequest{
		{Category: "wg", Quantity: 6},
		{Category: "ovpn", Quantity: 5},
	})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestAllocateSetRejectsEmptyRequest(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.AllocateSet(context.Background(), testOwner, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDefaultMaxBatch(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)
	assert.Equal(t, DefaultMaxBatch, svc.MaxBatch())

	svc = NewService(NewStore(nil), nil, 7)
	assert.Equal(t, 7, svc.MaxBatch())
}

func TestMergeRequestsCombinesDuplicateCategories(t *testing.T) {
	merged, total, err := mergeRequests([]CategoryRequest{
		{Category: "wg", Quantity: 2},
		{Category: "ovpn", Quantity: 1},
		{Category: "wg", Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, total)
	// Categories come back sorted so every transaction locks them in the
	// same order
	assert.Equal(t, []CategoryRequest{
		{Category: "ovpn", Quantity: 1},
		{Category: "wg", Quantity: 5},
	}, merged)
}

func TestMergeRequestsRejectsBadSlices(t *testing.T) {
	_, _, err := mergeRequests([]CategoryRequest{{Category: "", Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, _, err = mergeRequests([]CategoryRequest{{Category: "wg", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReleaseEmptyListIsNoOp(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	result, err := svc.Release(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Empty(t, result.Released)
}

func TestReleaseRejectsOversizedBatch(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 2)

	_, err := svc.Release(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestReleaseReportsMalformedIDsWithoutStore(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	result, err := svc.Release(context.Background(), []string{"not-a-uuid", "also-bad"})
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Empty(t, result.Released)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, ReasonInvalidID, result.Failed[0].Reason)
	assert.Equal(t, "not-a-uuid", result.Failed[0].ID)
}

func TestGetOwnedRejectsMalformedID(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.GetOwned(context.Background(), testOwner, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOwnedRejectsInvalidOwner(t *testing.T) {
	svc := NewService(NewStore(nil), nil, 0)

	_, err := svc.ListOwned(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

func TestReleaseResultOK(t *testing.T) {
	assert.True(t, ReleaseResult{Released: []string{"a"}}.OK())
	assert.False(t, ReleaseResult{Failed: []ReleaseFailure{{ID: "a", Reason: ReasonNotFound}}}.OK())
}
