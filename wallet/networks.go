package wallet

import (
	"context"
	"fmt"
	"slices"
)

// Network is one entry of the fixed network catalog.
type Network struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChainID    string `json:"chainId"`
	GraphQLURL string `json:"graphqlUrl"`
	Explorer   string `json:"explorerUrl"`
	Testnet    bool   `json:"testnet"`
}

// DefaultNetworkID is the network selected for a fresh wallet.
const DefaultNetworkID = "mainnet"

var networks = []Network{
	{
		ID:         "mainnet",
		Name:       "Mainnet",
		ChainID:    "mainnet",
		GraphQLURL: "https://api.minascan.io/node/mainnet/v1/graphql",
		Explorer:   "https://minascan.io/mainnet",
	},
	{
		ID:         "devnet",
		Name:       "Devnet",
		ChainID:    "devnet",
		GraphQLURL: "https://api.minascan.io/node/devnet/v1/graphql",
		Explorer:   "https://minascan.io/devnet",
		Testnet:    true,
	},
	{
		ID:         "berkeley",
		Name:       "Berkeley",
		ChainID:    "berkeley",
		GraphQLURL: "https://api.minascan.io/node/berkeley/v1/graphql",
		Explorer:   "https://minascan.io/berkeley",
		Testnet:    true,
	},
}

// Networks returns the catalog.
func Networks() []Network {
	return slices.Clone(networks)
}

// LookupNetwork finds a network by id.
func LookupNetwork(id string) (Network, error) {
	i := slices.IndexFunc(networks, func(n Network) bool { return n.ID == id })
	if i < 0 {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, id)
	}
	return networks[i], nil
}

// ActiveNetwork returns the selected network.
func (c *Core) ActiveNetwork(ctx context.Context) (Network, error) {
	s, err := c.loadSettings(ctx)
	if err != nil {
		return Network{}, err
	}
	n, err := LookupNetwork(s.NetworkID)
	if err != nil {
		// A stored id that left the catalog falls back to the default.
		return LookupNetwork(DefaultNetworkID)
	}
	return n, nil
}

// SetNetwork selects the active network.
func (c *Core) SetNetwork(ctx context.Context, id string) (Network, error) {
	n, err := LookupNetwork(id)
	if err != nil {
		return Network{}, err
	}
	err = c.updateSettings(ctx, func(s *settings) error {
		s.NetworkID = n.ID
		return nil
	})
	if err != nil {
		return Network{}, err
	}
	c.logger.Info("network changed", "network", n.ID)
	return n, nil
}
