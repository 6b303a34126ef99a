package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRejectsEmptyBatch(t *testing.T) {
	svc := NewService(nil, nil, nil)

	_, err := svc.Import(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestImportReportsMalformedItems(t *testing.T) {
	svc := NewService(nil, nil, nil)

	result, err := svc.Import(context.Background(), "", []ImportItem{
		{Category: "", Secret: "x"},
		{Category: "wg", Secret: ""},
		{ID: "not-a-uuid", Category: "wg", Secret: "x"},
	})
	require.NoError(t, err)

	assert.Empty(t, result.ImportedIDs)
	require.Len(t, result.Failed, 3)
	assert.Equal(t, ReasonMissingCategory, result.Failed[0].Reason)
	assert.Equal(t, ReasonMissingSecret, result.Failed[1].Reason)
	assert.Equal(t, ReasonInvalidID, result.Failed[2].Reason)
	assert.Equal(t, 2, result.Failed[2].Index)
}

func TestRetireRejectsEmptyBatch(t *testing.T) {
	svc := NewService(nil, nil, nil)

	_, err := svc.Retire(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestRetireReportsMalformedIDsWithoutStore(t *testing.T) {
	svc := NewService(nil, nil, nil)

	result, err := svc.Retire(context.Background(), "", []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, result.Retired)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, ReasonInvalidID, result.Failed[0].Reason)
}
