package chains

import (
	"sort"
	"strings"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

// Family groups chains sharing a transaction hash format
type Family string

const (
	FamilyEVM     Family = "eip155"
	FamilySolana  Family = "solana"
	FamilyNear    Family = "near"
	FamilyBitcoin Family = "bip122"
	FamilyTron    Family = "tron"
	FamilyTon     Family = "ton"
	FamilyStellar Family = "stellar"
	FamilyAptos   Family = "aptos"
	FamilySui     Family = "sui"
	FamilyXRPL    Family = "xrpl"
	FamilyZcash   Family = "zcash"
	FamilyCardano Family = "cardano"
)

// Chain describes a destination chain and its observed withdrawal settlement latency
type Chain struct {
	ID    string // CAIP-2, e.g. eip155:1
	Name  string
	Stats models.CompletionStats
}

// Family returns the CAIP-2 namespace of the chain
func (c Chain) Family() Family {
	return FamilyOf(c.ID)
}

func stats(p50, p90, p99 time.Duration) models.CompletionStats {
	return models.CompletionStats{P50: p50, P90: p90, P99: p99}
}

// registry maps CAIP-2 identifiers to chains with their latency calibration
var registry = map[string]Chain{
	"eip155:1":     {ID: "eip155:1", Name: "ETHEREUM", Stats: stats(1*time.Minute, 3*time.Minute, 10*time.Minute)},
	"eip155:8453":  {ID: "eip155:8453", Name: "BASE", Stats: stats(20*time.Second, 45*time.Second, 2*time.Minute)},
	"eip155:42161": {ID: "eip155:42161", Name: "ARBITRUM", Stats: stats(20*time.Second, 45*time.Second, 2*time.Minute)},
	"eip155:137":   {ID: "eip155:137", Name: "POLYGON", Stats: stats(30*time.Second, 1*time.Minute, 3*time.Minute)},
	"eip155:56":    {ID: "eip155:56", Name: "BSC", Stats: stats(15*time.Second, 40*time.Second, 2*time.Minute)},
	"eip155:43114": {ID: "eip155:43114", Name: "AVALANCHE", Stats: stats(15*time.Second, 30*time.Second, 90*time.Second)},
	"eip155:100":   {ID: "eip155:100", Name: "GNOSIS", Stats: stats(20*time.Second, 1*time.Minute, 3*time.Minute)},
	"eip155:80094": {ID: "eip155:80094", Name: "BERACHAIN", Stats: stats(20*time.Second, 1*time.Minute, 3*time.Minute)},
	"eip155:7000":  {ID: "eip155:7000", Name: "ZETACHAIN", Stats: stats(20*time.Second, 1*time.Minute, 3*time.Minute)},
	"near:mainnet": {ID: "near:mainnet", Name: "NEAR", Stats: stats(5*time.Second, 15*time.Second, 45*time.Second)},
	"solana:mainnet": {ID: "solana:mainnet", Name: "SOLANA",
		Stats: stats(10*time.Second, 30*time.Second, 90*time.Second)},
	"bip122:000000000019d6689c085ae165831e93": {ID: "bip122:000000000019d6689c085ae165831e93", Name: "BITCOIN",
		Stats: stats(30*time.Minute, 60*time.Minute, 120*time.Minute)},
	"bip122:1a91e3dace36e2be3bf030a65679fe82": {ID: "bip122:1a91e3dace36e2be3bf030a65679fe82", Name: "DOGECOIN",
		Stats: stats(10*time.Minute, 20*time.Minute, 40*time.Minute)},
	"zcash:0":         {ID: "zcash:0", Name: "ZCASH", Stats: stats(20*time.Minute, 40*time.Minute, 90*time.Minute)},
	"tron:27Lqcw":     {ID: "tron:27Lqcw", Name: "TRON", Stats: stats(1*time.Minute, 3*time.Minute, 10*time.Minute)},
	"ton:mainnet":     {ID: "ton:mainnet", Name: "TON", Stats: stats(30*time.Second, 90*time.Second, 5*time.Minute)},
	"stellar:pubnet":  {ID: "stellar:pubnet", Name: "STELLAR", Stats: stats(15*time.Second, 30*time.Second, 90*time.Second)},
	"aptos:mainnet":   {ID: "aptos:mainnet", Name: "APTOS", Stats: stats(10*time.Second, 30*time.Second, 90*time.Second)},
	"sui:mainnet":     {ID: "sui:mainnet", Name: "SUI", Stats: stats(10*time.Second, 30*time.Second, 90*time.Second)},
	"xrpl:0":          {ID: "xrpl:0", Name: "XRPL", Stats: stats(15*time.Second, 45*time.Second, 2*time.Minute)},
	"cardano:mainnet": {ID: "cardano:mainnet", Name: "CARDANO", Stats: stats(2*time.Minute, 5*time.Minute, 15*time.Minute)},
}

// Get returns the chain registered under the CAIP-2 id
func Get(chainID string) (Chain, bool) {
	c, ok := registry[chainID]
	return c, ok
}

// List returns all registered chains ordered by id
func List() []Chain {
	list := make([]Chain, 0, len(registry))
	for _, c := range registry {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID string) string {
	c, exists := registry[chainID]
	if !exists {
		return ""
	}
	return c.Name
}

// FamilyOf returns the CAIP-2 namespace of chainID
func FamilyOf(chainID string) Family {
	namespace, _, found := strings.Cut(chainID, ":")
	if !found {
		return ""
	}
	return Family(namespace)
}
