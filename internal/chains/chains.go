package chains

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
)

var eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)

// Chain describes an EVM chain that exposes the distribution precompile.
type Chain struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	CAIP2  string `json:"caip2"`
	Symbol string `json:"symbol"`
}

var chainBySlug = map[string]Chain{
	"haqq":           {ID: 11235, Name: "HAQQ Network", Slug: "haqq", CAIP2: "eip155:11235", Symbol: "ISLM"},
	"haqq-mainnet":   {ID: 11235, Name: "HAQQ Network", Slug: "haqq", CAIP2: "eip155:11235", Symbol: "ISLM"},
	"haqq-testedge2": {ID: 54211, Name: "HAQQ Testedge 2", Slug: "haqq-testedge2", CAIP2: "eip155:54211", Symbol: "ISLMT"},
	"testedge2":      {ID: 54211, Name: "HAQQ Testedge 2", Slug: "haqq-testedge2", CAIP2: "eip155:54211", Symbol: "ISLMT"},
}

var chainByID = func() map[int64]Chain {
	out := make(map[int64]Chain, len(chainBySlug))
	for _, chain := range chainBySlug {
		out[chain.ID] = chain
	}
	return out
}()

// Default is the chain used when neither config nor flags select one.
func Default() Chain {
	return chainBySlug["haqq"]
}

// ParseChain accepts a slug, a numeric chain id, or a CAIP-2 identifier.
func ParseChain(input string) (Chain, error) {
	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}
	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if n, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[n]; ok {
			return chain, nil
		}
		return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain id: %d", n))
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain: %s", input))
}

// ByID returns the registered chain for an EVM chain id.
func ByID(id int64) (Chain, bool) {
	chain, ok := chainByID[id]
	return chain, ok
}

// List returns every registered chain once, ordered by chain id.
func List() []Chain {
	out := make([]Chain, 0, len(chainByID))
	for _, chain := range chainByID {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
