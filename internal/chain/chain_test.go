package chain

import "testing"

func TestParseSlugAndID(t *testing.T) {
	c, err := Parse("Arbitrum")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.CAIP2 != "eip155:42161" || c.EVMChainID != 42161 {
		t.Fatalf("unexpected chain: %+v", c)
	}

	byNum, err := Parse("8453")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if byNum.Slug != "base" {
		t.Fatalf("expected base, got %s", byNum.Slug)
	}

	byCAIP, err := Parse("eip155:10")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if byCAIP.Slug != "optimism" {
		t.Fatalf("expected optimism, got %s", byCAIP.Slug)
	}
}

func TestParseUnknownEVMChain(t *testing.T) {
	c, err := Parse("eip155:59144")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.EVMChainID != 59144 || c.CAIP2 != "eip155:59144" {
		t.Fatalf("unexpected synthetic chain: %+v", c)
	}
	if _, err := Parse("not-a-chain"); err == nil {
		t.Fatal("expected error for unknown slug")
	}
}

func TestMatchesFeedNames(t *testing.T) {
	c := chainBySlug["arbitrum"]
	for _, in := range []string{"Arbitrum", "arbitrum", " ARBITRUM "} {
		if !c.Matches(in) {
			t.Fatalf("expected %q to match arbitrum", in)
		}
	}
	if c.Matches("Optimism") {
		t.Fatal("optimism must not match arbitrum")
	}
	if c.Matches("") {
		t.Fatal("empty must not match")
	}
}

func TestResolveAsset(t *testing.T) {
	c := chainBySlug["base"]
	a, err := ResolveAsset(c, "usdc")
	if err != nil {
		t.Fatalf("ResolveAsset failed: %v", err)
	}
	if a.Decimals != 6 || a.Address != "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913" {
		t.Fatalf("unexpected asset: %+v", a)
	}

	byAddr, err := ResolveAsset(c, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	if err != nil {
		t.Fatalf("ResolveAsset by address failed: %v", err)
	}
	if byAddr.Symbol != "USDC" {
		t.Fatalf("expected USDC, got %s", byAddr.Symbol)
	}

	if _, err := ResolveAsset(c, "NOPE"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	if _, err := ResolveAsset(c, "0x0000000000000000000000000000000000000001"); err == nil {
		t.Fatal("expected error for unregistered address")
	}
}

func TestGasSwapPriorityStablesFirst(t *testing.T) {
	order := GasSwapPriority()
	if len(order) == 0 || order[0] != "USDC" {
		t.Fatalf("unexpected priority order: %v", order)
	}
	seenWETH := false
	for _, sym := range order {
		if sym == "WETH" {
			seenWETH = true
			continue
		}
		if seenWETH {
			t.Fatalf("stable %s ordered after WETH", sym)
		}
	}
}
