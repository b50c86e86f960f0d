package registry

import "argusgo/pkg/model"

// defaultCatalog is the built-in source set: global wire coverage plus
// outlets close to active conflict theaters. Entries here can be
// replaced or disabled from the YAML catalog by reusing the name.
func defaultCatalog() []model.Source {
	return []model.Source{
		{
			Name:     "bbc-world",
			FeedURL:  "https://feeds.bbci.co.uk/news/world/rss.xml",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Country:  "GB",
			Priority: model.PriorityHigh,
			Enabled:  true,
		},
		{
			Name:     "aljazeera-english",
			FeedURL:  "https://www.aljazeera.com/xml/rss/all.xml",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Country:  "QA",
			Region:   "middle-east",
			Priority: model.PriorityHigh,
			Enabled:  true,
		},
		{
			Name:     "aljazeera-arabic",
			FeedURL:  "https://www.aljazeera.net/aljazeerarss/a7c186be-1baa-4bd4-9d80-a84db769f779/73d0e1b4-532f-45ef-b135-bfdff8b8cab9",
			Protocol: model.ProtocolRSS,
			Language: "ar",
			Country:  "QA",
			Region:   "middle-east",
			Priority: model.PriorityMedium,
			Enabled:  true,
		},
		{
			Name:     "dw-world",
			FeedURL:  "https://rss.dw.com/rdf/rss-en-world",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Country:  "DE",
			Priority: model.PriorityMedium,
			Enabled:  true,
		},
		{
			Name:     "france24-en",
			FeedURL:  "https://www.france24.com/en/rss",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Country:  "FR",
			Priority: model.PriorityMedium,
			Enabled:  true,
		},
		{
			Name:            "kyiv-independent",
			FeedURL:         "https://kyivindependent.com/feed/rss",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "UA",
			Region:          "eastern-europe",
			Priority:        model.PriorityCritical,
			ConflictZoneTag: "ukraine",
			Enabled:         true,
		},
		{
			Name:            "ukrinform-en",
			FeedURL:         "https://www.ukrinform.net/rss/block-lastnews",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "UA",
			Region:          "eastern-europe",
			Priority:        model.PriorityHigh,
			ConflictZoneTag: "ukraine",
			Enabled:         true,
		},
		{
			Name:            "times-of-israel",
			FeedURL:         "https://www.timesofisrael.com/feed/",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "IL",
			Region:          "middle-east",
			Priority:        model.PriorityCritical,
			ConflictZoneTag: "israel-gaza",
			Enabled:         true,
		},
		{
			Name:            "middle-east-eye",
			FeedURL:         "https://www.middleeasteye.net/rss",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "GB",
			Region:          "middle-east",
			Priority:        model.PriorityHigh,
			ConflictZoneTag: "israel-gaza",
			Enabled:         true,
		},
		{
			Name:     "reliefweb-updates",
			FeedURL:  "https://reliefweb.int/updates/rss.xml",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Priority: model.PriorityHigh,
			Enabled:  true,
		},
		{
			Name:     "elpais-internacional",
			FeedURL:  "https://feeds.elpais.com/mrss-s/pages/ep/site/elpais.com/section/internacional/portada",
			Protocol: model.ProtocolRSS,
			Language: "es",
			Country:  "ES",
			Priority: model.PriorityStandard,
			Enabled:  true,
		},
		{
			Name:     "lemonde-international",
			FeedURL:  "https://www.lemonde.fr/international/rss_full.xml",
			Protocol: model.ProtocolRSS,
			Language: "fr",
			Country:  "FR",
			Priority: model.PriorityStandard,
			Enabled:  true,
		},
		{
			Name:            "garowe-online",
			FeedURL:         "https://www.garoweonline.com/en/rss",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "SO",
			Region:          "horn-of-africa",
			Priority:        model.PriorityMedium,
			ConflictZoneTag: "somalia",
			Enabled:         true,
		},
		{
			Name:            "sudan-tribune",
			FeedURL:         "https://sudantribune.com/feed/",
			Protocol:        model.ProtocolRSS,
			Language:        "en",
			Country:         "SD",
			Region:          "horn-of-africa",
			Priority:        model.PriorityHigh,
			ConflictZoneTag: "sudan",
			Enabled:         true,
		},
		{
			Name:     "un-news",
			FeedURL:  "https://news.un.org/feed/subscribe/en/news/all/rss.xml",
			Protocol: model.ProtocolRSS,
			Language: "en",
			Priority: model.PriorityMedium,
			Enabled:  true,
		},
	}
}
