package oracle_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/oracle"
)

func TestStaticOracle(t *testing.T) {
	asset := common.HexToAddress("0xC011000000000000000000000000000000000000")
	o := oracle.NewStaticOracle()

	if _, err := o.Price(asset); !errors.Is(err, core.ErrPriceUnavailable) {
		t.Fatalf("missing feed: expected ErrPriceUnavailable, got %v", err)
	}

	o.Set(asset, 950_000)
	p, err := o.Price(asset)
	if err != nil {
		t.Fatalf("price failed: %v", err)
	}
	if p != 950_000 {
		t.Errorf("price = %d, want 950_000", p)
	}

	// A non-positive post clears the feed rather than serving garbage.
	o.Set(asset, 0)
	if _, err := o.Price(asset); !errors.Is(err, core.ErrPriceUnavailable) {
		t.Fatalf("cleared feed: expected ErrPriceUnavailable, got %v", err)
	}
}
