// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package correlation

// Category groups keywords by what a hit implies.
type Category string

const (
	CategoryGovernment Category = "government"
	CategoryPolice     Category = "police"
	CategoryContractor Category = "defense_contractor"
	CategorySecurity   Category = "security_vendor"
	CategoryComms      Category = "communications_vendor"
	CategoryAgency     Category = "agency"
	CategoryTactical   Category = "tactical"
)

// manufacturerKeywords score a manufacturer name. The highest tier hit wins.
var manufacturerKeywords = []Keyword{
	{Text: "government", Category: CategoryGovernment, Score: 1.0},
	{Text: "federal", Category: CategoryGovernment, Score: 1.0},
	{Text: "military", Category: CategoryGovernment, Score: 1.0},
	{Text: "department of defense", Category: CategoryGovernment, Score: 1.0},
	{Text: "army", Category: CategoryGovernment, Score: 1.0},
	{Text: "navy", Category: CategoryGovernment, Score: 1.0},
	{Text: "air force", Category: CategoryGovernment, Score: 1.0},

	{Text: "police", Category: CategoryPolice, Score: 0.9},
	{Text: "sheriff", Category: CategoryPolice, Score: 0.9},
	{Text: "public safety", Category: CategoryPolice, Score: 0.9},
	{Text: "law enforcement", Category: CategoryPolice, Score: 0.9},
	{Text: "state patrol", Category: CategoryPolice, Score: 0.9},

	{Text: "harris", Category: CategoryContractor, Score: 0.8},
	{Text: "l3harris", Category: CategoryContractor, Score: 0.8},
	{Text: "raytheon", Category: CategoryContractor, Score: 0.8},
	{Text: "lockheed", Category: CategoryContractor, Score: 0.8},
	{Text: "northrop", Category: CategoryContractor, Score: 0.8},
	{Text: "general dynamics", Category: CategoryContractor, Score: 0.8},
	{Text: "bae systems", Category: CategoryContractor, Score: 0.8},
	{Text: "motorola solutions", Category: CategoryContractor, Score: 0.8},
	{Text: "cellebrite", Category: CategoryContractor, Score: 0.8},
	{Text: "leonardo", Category: CategoryContractor, Score: 0.8},
	{Text: "elbit", Category: CategoryContractor, Score: 0.8},

	{Text: "security", Category: CategorySecurity, Score: 0.4},
	{Text: "surveillance", Category: CategorySecurity, Score: 0.4},
	{Text: "defense", Category: CategorySecurity, Score: 0.4},
	{Text: "tactical", Category: CategorySecurity, Score: 0.4},

	{Text: "communications", Category: CategoryComms, Score: 0.2},
	{Text: "telecom", Category: CategoryComms, Score: 0.2},
	{Text: "radio", Category: CategoryComms, Score: 0.2},
	{Text: "systems", Category: CategoryComms, Score: 0.2},
}

// metadataKeywords are scanned in device names and comments.
var metadataKeywords = []Keyword{
	{Text: "fbi", Category: CategoryAgency},
	{Text: "dea", Category: CategoryAgency},
	{Text: "atf", Category: CategoryAgency},
	{Text: "dhs", Category: CategoryAgency},
	{Text: "homeland security", Category: CategoryAgency},
	{Text: "nsa", Category: CategoryAgency},
	{Text: "cbp", Category: CategoryAgency},
	{Text: "ice", Category: CategoryAgency},
	{Text: "secret service", Category: CategoryAgency},
	{Text: "us marshal", Category: CategoryAgency},
	{Text: "usms", Category: CategoryAgency},
	{Text: "police", Category: CategoryAgency},
	{Text: "pd", Category: CategoryAgency},
	{Text: "sheriff", Category: CategoryAgency},
	{Text: "state patrol", Category: CategoryAgency},
	{Text: "trooper", Category: CategoryAgency},
	{Text: "federal", Category: CategoryAgency},

	{Text: "surveillance", Category: CategoryTactical},
	{Text: "surv", Category: CategoryTactical},
	{Text: "tactical", Category: CategoryTactical},
	{Text: "covert", Category: CategoryTactical},
	{Text: "stingray", Category: CategoryTactical},
	{Text: "hailstorm", Category: CategoryTactical},
	{Text: "task force", Category: CategoryTactical},
	{Text: "mobile command", Category: CategoryTactical},
	{Text: "unmarked", Category: CategoryTactical},
	{Text: "undercover", Category: CategoryTactical},
	{Text: "swat", Category: CategoryTactical},
}

var (
	manufacturerMatcher = NewKeywordMatcher(manufacturerKeywords)
	metadataMatcher     = NewKeywordMatcher(metadataKeywords)
)

// ManufacturerScore returns the government-likelihood implied by a
// manufacturer name: the score of the highest tier keyword it contains, or
// 0 when nothing matches.
func ManufacturerScore(name string) float64 {
	best := 0.0
	for _, m := range manufacturerMatcher.Search(name) {
		if m.Keyword.Score > best {
			best = m.Keyword.Score
		}
	}
	return best
}
