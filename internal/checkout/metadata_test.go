package checkout

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimToBudget(t *testing.T) {
	values := []string{"aaaa", "bbbb", "cccc"}

	// ["aaaa","bbbb","cccc"] is 22 chars.
	assert.Equal(t, values, TrimToBudget(values, 22))
	assert.Equal(t, []string{"aaaa", "bbbb"}, TrimToBudget(values, 21))
	assert.Equal(t, []string{"aaaa"}, TrimToBudget(values, 8))
	assert.Empty(t, TrimToBudget(values, 2))
	assert.Empty(t, TrimToBudget(nil, 10))
}

func TestCardMetadata_Complete(t *testing.T) {
	md := CardMetadata("buyer@example.com", []Item{
		{ID: "p1", Title: "Widget", Image: "w.jpg", Quantity: 2},
		{ID: "p2", Title: "Gadget", Image: "g.jpg", Quantity: 1},
	})

	assert.Equal(t, "buyer@example.com", md["email"])
	assert.JSONEq(t, `["w.jpg","g.jpg"]`, md["images"])
	assert.JSONEq(t, `["Widget","Gadget"]`, md["title"])
	assert.JSONEq(t, `["p1","p2"]`, md["itemIds"])
	assert.JSONEq(t, `[2,1]`, md["quantities"])
}

func TestCardMetadata_DeduplicatesImages(t *testing.T) {
	md := CardMetadata("buyer@example.com", []Item{
		{ID: "p1", Title: "Tee S", Image: "tee.jpg", Quantity: 1},
		{ID: "p2", Title: "Tee M", Image: "tee.jpg", Quantity: 1},
		{ID: "p3", Title: "Cap", Image: "", Quantity: 1},
	})

	assert.JSONEq(t, `["tee.jpg"]`, md["images"])
	assert.JSONEq(t, `["p1","p2","p3"]`, md["itemIds"])
}

func TestCardMetadata_BudgetsEnforced(t *testing.T) {
	items := make([]Item, 60)
	for i := range items {
		items[i] = Item{
			ID:       fmt.Sprintf("product-%02d", i),
			Title:    strings.Repeat("x", 30),
			Image:    fmt.Sprintf("image-%02d.jpg", i),
			Quantity: i + 1,
		}
	}

	md := CardMetadata("buyer@example.com", items)

	assert.LessOrEqual(t, len(md["images"]), BudgetImages)
	assert.LessOrEqual(t, len(md["title"]), BudgetTitles)
	assert.LessOrEqual(t, len(md["itemIds"]), BudgetItemIDs)
	assert.LessOrEqual(t, len(md["quantities"]), BudgetQuantities)

	// Ids and quantities stay pairwise aligned after trimming.
	var ids []string
	var quantities []int
	require.NoError(t, json.Unmarshal([]byte(md["itemIds"]), &ids))
	require.NoError(t, json.Unmarshal([]byte(md["quantities"]), &quantities))
	require.Equal(t, len(ids), len(quantities))
	require.NotEmpty(t, ids)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("product-%02d", i), id)
		assert.Equal(t, i+1, quantities[i])
	}
}

func TestWalletCustomData_Fits(t *testing.T) {
	blob, err := WalletCustomData("buyer@example.com", []string{"p1", "p2"})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(blob), BudgetCustomData)
	assert.JSONEq(t, `{"email":"buyer@example.com","itemIds":["p1","p2"]}`, blob)
}

func TestWalletCustomData_PopsTrailingIDs(t *testing.T) {
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("product-%02d", i)
	}

	blob, err := WalletCustomData("buyer@example.com", ids)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(blob), BudgetCustomData)

	var decoded struct {
		Email   string   `json:"email"`
		ItemIDs []string `json:"itemIds"`
	}
	require.NoError(t, json.Unmarshal([]byte(blob), &decoded))
	assert.Equal(t, "buyer@example.com", decoded.Email)
	require.NotEmpty(t, decoded.ItemIDs)
	require.Less(t, len(decoded.ItemIDs), len(ids))
	// Only the tail is popped, the head survives in order.
	for i, id := range decoded.ItemIDs {
		assert.Equal(t, ids[i], id)
	}
}

func TestWalletCustomData_EmailTooLong(t *testing.T) {
	_, err := WalletCustomData(strings.Repeat("a", 150)+"@example.com", []string{"p1"})
	require.Error(t, err)
}
