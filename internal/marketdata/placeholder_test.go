package marketdata

import (
	"context"
	"errors"
	"testing"
)

func TestPlaceholderRanges(t *testing.T) {
	src := NewPlaceholder(7)
	for i := 0; i < 100; i++ {
		snap, err := src.FetchSnapshot(context.Background(), testMint)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if err := snap.Validate(); err != nil {
			t.Fatalf("invalid snapshot: %v", err)
		}
		if snap.MarketCap >= 1_000_000 || snap.Price >= 0.01 || snap.Volume5m >= 1_000 ||
			snap.Volume15m >= 3_000 || snap.Volume30m >= 6_000 || snap.Holders >= 1000 {
			t.Fatalf("value out of range: %+v", snap)
		}
	}
}

func TestPlaceholderSeeded(t *testing.T) {
	a, _ := NewPlaceholder(11).FetchSnapshot(context.Background(), testMint)
	b, _ := NewPlaceholder(11).FetchSnapshot(context.Background(), testMint)
	if a.Price != b.Price || a.Holders != b.Holders {
		t.Fatalf("same seed should produce the same values")
	}
}

func TestPlaceholderHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPlaceholder(1).FetchSnapshot(ctx, testMint); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestNewSource(t *testing.T) {
	if _, err := New(Config{Name: "placeholder"}, nil, nil); err != nil {
		t.Fatalf("placeholder: %v", err)
	}

	src, err := New(Config{}, fakeChain{}, nil)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := src.(*Combined); !ok {
		t.Fatalf("expected Combined with chain source, got %T", src)
	}

	if _, err := New(Config{Name: "coingecko"}, fakeChain{}, nil); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestNewDexScreenerRequiresChain(t *testing.T) {
	for _, name := range []string{"", "dexscreener", " DexScreener "} {
		src, err := New(Config{Name: name}, nil, nil)
		if !errors.Is(err, ErrChainRequired) {
			t.Fatalf("%q: expected ErrChainRequired, got %v", name, err)
		}
		if src != nil {
			t.Fatalf("%q: no source should be returned, got %T", name, src)
		}
	}
}
