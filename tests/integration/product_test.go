//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	products := getProducts(t)

	if len(products) != seededProducts {
		t.Fatalf("got %d products, want %d", len(products), seededProducts)
	}

	for _, p := range products {
		if p.ID == "" || p.Title == "" {
			t.Errorf("product missing id or title: %+v", p)
		}
		if p.Price <= 0 {
			t.Errorf("product %s has non-positive price %v", p.ID, p.Price)
		}
	}
}

func TestListProducts_KnownItem(t *testing.T) {
	for _, p := range getProducts(t) {
		if p.ID == "canvas-tote" {
			if p.Price != 18.50 {
				t.Errorf("canvas-tote price = %v, want 18.50", p.Price)
			}
			return
		}
	}
	t.Fatal("canvas-tote not in catalog")
}

func TestLastUpdated_ProductsMarker(t *testing.T) {
	// seed-db stamps the global products marker.
	resp := doGet(t, "/api/last-updated?type=products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("last-updated: status %d", resp.StatusCode)
	}

	body := decodeJSON[lastUpdatedResponse](t, resp)
	if body.Type != "products" {
		t.Errorf("type = %q, want products", body.Type)
	}
	if body.UpdatedAt.IsZero() {
		t.Error("updatedAt is zero")
	}
}

func TestLastUpdated_Validation(t *testing.T) {
	resp := doGet(t, "/api/last-updated?type=orders")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("orders without email: status %d, want 400", resp.StatusCode)
	}

	resp = doGet(t, "/api/last-updated?type=bogus")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus type: status %d, want 400", resp.StatusCode)
	}
}
