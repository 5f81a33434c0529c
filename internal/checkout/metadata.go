package checkout

import (
	"encoding/json"

	"github.com/go-faster/errors"
)

// Provider-side size limits for session metadata. The card processor caps
// each metadata value; the wallet processor caps the whole custom reference
// field. Lists are trimmed by popping trailing elements until the JSON
// encoding fits, which is lossy by design: the webhook normalizer tolerates
// shorter lists on the way back in.
const (
	BudgetImages     = 500
	BudgetTitles     = 400
	BudgetItemIDs    = 400
	BudgetQuantities = 400
	BudgetCustomData = 127
)

// TrimToBudget drops trailing elements until the JSON encoding of values
// fits within budget characters. It never fails: with zero elements the
// encoding is "[]".
func TrimToBudget(values []string, budget int) []string {
	out := values
	for len(out) > 0 && jsonLen(out) > budget {
		out = out[:len(out)-1]
	}
	return out
}

func trimIntsToBudget(values []int, budget int) []int {
	out := values
	for len(out) > 0 && jsonLen(out) > budget {
		out = out[:len(out)-1]
	}
	return out
}

func jsonLen(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only slices of plain strings/ints reach here.
		panic(err)
	}
	return string(b)
}

// CardMetadata builds the metadata string bag embedded in a card checkout
// session. Every value is itself JSON-encoded; images, titles, item ids and
// quantities are independently trimmed to their budgets. Ids and quantities
// share index positions, so both are cut to the shorter trimmed length to
// keep the pairs aligned.
func CardMetadata(email string, items []Item) map[string]string {
	images := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	titles := make([]string, len(items))
	ids := make([]string, len(items))
	quantities := make([]int, len(items))
	for i, it := range items {
		if _, dup := seen[it.Image]; !dup && it.Image != "" {
			seen[it.Image] = struct{}{}
			images = append(images, it.Image)
		}
		titles[i] = it.Title
		ids[i] = it.ID
		quantities[i] = it.Quantity
	}

	ids = TrimToBudget(ids, BudgetItemIDs)
	quantities = trimIntsToBudget(quantities, BudgetQuantities)
	n := min(len(ids), len(quantities))

	return map[string]string{
		"email":      email,
		"images":     mustJSON(TrimToBudget(images, BudgetImages)),
		"title":      mustJSON(TrimToBudget(titles, BudgetTitles)),
		"itemIds":    mustJSON(ids[:n]),
		"quantities": mustJSON(quantities[:n]),
	}
}

// walletCustomData mirrors the blob parsed by the wallet normalizer.
type walletCustomData struct {
	Email   string   `json:"email"`
	ItemIDs []string `json:"itemIds"`
}

// WalletCustomData builds the compact {email, itemIds} blob embedded in the
// wallet purchase unit's custom reference field, popping trailing ids until
// it fits the provider's cap. It fails only when the email alone does not
// fit.
func WalletCustomData(email string, itemIDs []string) (string, error) {
	ids := itemIDs
	for {
		blob := mustJSON(walletCustomData{Email: email, ItemIDs: ids})
		if len(blob) <= BudgetCustomData {
			return blob, nil
		}
		if len(ids) == 0 {
			return "", errors.Errorf("custom data exceeds %d chars with no item ids left", BudgetCustomData)
		}
		ids = ids[:len(ids)-1]
	}
}
