package journey

import (
	"net/url"
	"strings"
)

// Channel labels.
const (
	ChannelDirect        = "Direct"
	ChannelOrganicSearch = "Organic Search"
	ChannelPaidSearch    = "Paid Search"
	ChannelSocial        = "Social"
	ChannelEmail         = "Email"
	ChannelReferral      = "Referral"
	ChannelDisplay       = "Display"
	ChannelAffiliate     = "Affiliate"
	ChannelOther         = "Other"
)

var searchEngines = []string{"google.", "bing.", "duckduckgo.", "yahoo.", "baidu.", "yandex.", "ecosia."}

var socialNetworks = []string{"facebook", "instagram", "twitter", "linkedin", "reddit", "youtube", "tiktok"}

var socialHosts = []string{"t.co", "x.com", "lnkd.in", "fb.me"}

// ClassifyChannel maps a source/medium pair to a channel label.
func ClassifyChannel(source, medium string) string {
	source = strings.ToLower(source)
	medium = strings.ToLower(medium)

	switch {
	case source == "" || source == "direct" || medium == "none" && source == "(direct)":
		return ChannelDirect
	case medium == "cpc" || medium == "ppc" || medium == "paid_search" || medium == "paidsearch":
		return ChannelPaidSearch
	case medium == "email" || medium == "newsletter":
		return ChannelEmail
	case medium == "display" || medium == "banner" || medium == "cpm":
		return ChannelDisplay
	case medium == "affiliate":
		return ChannelAffiliate
	case medium == "social" || medium == "paid_social" || isSocial(source):
		return ChannelSocial
	case medium == "organic":
		return ChannelOrganicSearch
	case medium == "referral":
		return ChannelReferral
	}
	return ChannelOther
}

// IsSearchEngine reports whether host belongs to a known search engine.
func IsSearchEngine(host string) bool {
	return SearchEngineName(host) != ""
}

// SearchEngineName returns the engine name for host ("google" for
// "www.google.co.uk"), or "" when host is not a search engine.
func SearchEngineName(host string) string {
	host = strings.ToLower(host)
	for _, e := range searchEngines {
		if strings.Contains(host, e) {
			return strings.TrimSuffix(e, ".")
		}
	}
	return ""
}

// RefererHost returns the host of a referrer URL without a leading "www.".
func RefererHost(referrer string) string {
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isSocial(source string) bool {
	for _, h := range socialHosts {
		if source == h {
			return true
		}
	}
	return containsAny(source, socialNetworks)
}
