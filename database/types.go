package database

// Distros maps a distribution list name to its member addresses.
type Distros map[string][]string

// DistributionListRecord is a row of distribution_lists.
type DistributionListRecord struct {
	AccountName  string
	EmailDistros Distros
}
