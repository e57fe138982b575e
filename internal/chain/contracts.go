package chain

import "os"

// ContractAddresses holds the deployed contract script hashes the fund layer
// talks to.
type ContractAddresses struct {
	FundVault string `json:"fundvault"`
	Flamingo  string `json:"flamingo"`
	Burger    string `json:"burger"`
}

// LoadFromEnv loads contract addresses from environment variables.
func (c *ContractAddresses) LoadFromEnv() {
	if h := os.Getenv("CONTRACT_FUNDVAULT_HASH"); h != "" {
		c.FundVault = h
	}
	if h := os.Getenv("CONTRACT_FLAMINGO_HASH"); h != "" {
		c.Flamingo = h
	}
	if h := os.Getenv("CONTRACT_BURGER_HASH"); h != "" {
		c.Burger = h
	}
}

// ContractAddressesFromEnv creates ContractAddresses from environment variables.
func ContractAddressesFromEnv() ContractAddresses {
	c := ContractAddresses{}
	c.LoadFromEnv()
	return c
}
