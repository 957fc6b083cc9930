package memory

import "github.com/JhonesBR/go-ome/internal/exchange"

// SeedDemo loads the assets, markets and users the local setup runs with.
func SeedDemo(s *Store) error {
	for _, a := range []exchange.Asset{
		{Symbol: "BTC", BaseUnitScale: 100_000_000},
		{Symbol: "ETH", BaseUnitScale: 1_000_000_000},
		{Symbol: "USD", BaseUnitScale: 100},
	} {
		if err := s.AddAsset(a); err != nil {
			return err
		}
	}
	// 0.001 BTC and 0.01 ETH lots
	if _, err := s.AddMarket("BTC", "USD", 100_000); err != nil {
		return err
	}
	if _, err := s.AddMarket("ETH", "USD", 10_000_000); err != nil {
		return err
	}
	for _, email := range []string{"alice@example.com", "bob@example.com"} {
		if _, err := s.AddUser(email); err != nil {
			return err
		}
	}
	return nil
}
