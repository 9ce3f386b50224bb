package gamma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchTargetAssets(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[
			{"id":"1","markets":[
				{"id":"m1","clobTokenIds":"[\"111\",\"222\"]"},
				{"id":"m2","tokens":[{"token_id":333},{"token_id":"444"}]},
				{"clobTokenIds":"[\"999\"]"}
			]},
			{"id":"2","markets":[{"id":"m3","clobTokenIds":"[\"222\",\"555\"]"}]}
		]`))
	}))
	defer server.Close()

	d, err := newTestClient(server.URL, WithEventsLimit(7)).FetchTargetAssets(context.Background())
	if err != nil {
		t.Fatalf("FetchTargetAssets() error = %v", err)
	}

	if gotQuery != "ascending=false&closed=false&limit=7&order=id" {
		t.Errorf("query = %q", gotQuery)
	}

	want := []string{"111", "222", "333", "444", "555"}
	if len(d.AssetIDs) != len(want) {
		t.Fatalf("AssetIDs = %v, want %v", d.AssetIDs, want)
	}
	for i := range want {
		if d.AssetIDs[i] != want[i] {
			t.Errorf("AssetIDs[%d] = %q, want %q", i, d.AssetIDs[i], want[i])
		}
	}
	if d.MarketByAsset["333"] != "m2" || d.MarketByAsset["222"] != "m3" {
		t.Errorf("MarketByAsset = %v", d.MarketByAsset)
	}
	if _, ok := d.MarketByAsset["999"]; ok {
		t.Error("token from market without id was kept")
	}

	markets := d.MarketIDs()
	if len(markets) != 3 || markets[0] != "m1" || markets[1] != "m3" || markets[2] != "m2" {
		t.Errorf("MarketIDs() = %v", markets)
	}
}

func TestFetchTargetAssets_WrappedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"markets":[{"id":7,"clobTokenIds":"[\"111\"]"}]}]}`))
	}))
	defer server.Close()

	d, err := newTestClient(server.URL).FetchTargetAssets(context.Background())
	if err != nil {
		t.Fatalf("FetchTargetAssets() error = %v", err)
	}
	if len(d.AssetIDs) != 1 || d.MarketByAsset["111"] != "7" {
		t.Errorf("discovery = %+v", d)
	}
}

func TestFetchTargetAssets_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"empty array", `[]`, ErrNoEvents},
		{"empty data", `{"data":[]}`, ErrNoEvents},
		{"no tokens", `[{"markets":[{"id":"m1","clobTokenIds":"not json"}]}]`, ErrNoTokens},
		{"no markets", `[{"id":"1"}]`, ErrNoTokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).FetchTargetAssets(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
