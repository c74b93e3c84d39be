package config

import "time"

func Default() Config {
	return Config{
		App: App{
			Port:      38471,
			DataDir:   ".",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Browser: Browser{
			Headless:      true,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			WindowWidth:   1920,
			WindowHeight:  1080,
			DisableImages: true,
			StartTimeout:  30 * time.Second,
			NavTimeout:    30 * time.Second,
		},
		Search: Search{
			URLTemplate:   "https://www.google.com/maps/search/{query}/",
			NearMeSuffix:  " near me",
			LocationHints: []string{"في", "in", "at", "near", "close to"},
		},
		Gateway: DefaultGateway(),
		Harvest: DefaultHarvest(),
		Extract: DefaultExtract(),
		Enrich: Enrich{
			Enabled:           true,
			Timeout:           10 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			ContactSuffixes:   []string{"/contact/", "/Contact/", "/contact-us/"},
			MaxEmails:         3,
			MaxBodyBytes:      2 << 20,
			ExcludeSuffixes:   []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"},
			RequestsPerSecond: 1,
			Burst:             2,
			DNSServer:         "8.8.8.8:53",
			CacheTTL:          7 * 24 * time.Hour,
		},
		Output: Output{
			Dir:           "output",
			DefaultFormat: "excel",
		},
		Storage: Storage{
			SQLite:           true,
			DBName:           "mapsharvest.db",
			HistoryRetention: 30 * 24 * time.Hour,
		},
		Jobs: Jobs{
			MessageLimit:  20,
			Retention:     24 * time.Hour,
			PruneEvery:    10 * time.Minute,
			ShutdownGrace: 30 * time.Second,
		},
	}
}

func DefaultGateway() Gateway {
	alt := func(name, tmpl string) TacticSpec {
		return TacticSpec{Kind: "alternate_address", Name: name, Template: tmpl, Timeout: 8 * time.Second, Settle: 2 * time.Second}
	}
	return Gateway{
		OverallTimeout: 60 * time.Second,
		Markers: Markers{
			Location: []string{"consent.google.com"},
			Title:    []string{"Voordat je verdergaat", "Before you continue", "Bevor Sie zu Google", "Avant d'accéder"},
		},
		Tactics: []TacticSpec{
			alt("maps-host", "https://maps.google.com/maps/search/{query}/"),
			alt("locale-en", "https://www.google.com/maps/search/{query}/?hl=en"),
			alt("locale-ar", "https://www.google.com/maps/search/{query}/?hl=ar"),
			alt("viewport", "https://www.google.com/maps/search/{query}/@25.2854,51.5310,12z"),
			alt("maps-host-us", "https://maps.google.com/maps/search/{query}/?hl=en&gl=US"),
			alt("www-us", "https://www.google.com/maps/search/{query}/?hl=en&gl=US"),
			{
				Kind:        "acknowledge",
				Name:        "accept-button",
				Timeout:     15 * time.Second,
				Settle:      2 * time.Second,
				LocatorWait: 2 * time.Second,
				Locators: []Locator{
					{By: "css", Expr: "button[aria-label*='Accept']"},
					{By: "css", Expr: "button[aria-label*='Accepteren']"},
					{By: "css", Expr: "button[aria-label*='Agree']"},
					{By: "css", Expr: "button[aria-label*='Akkoord']"},
					{By: "xpath", Expr: "//button[contains(., 'Accept all')]"},
					{By: "xpath", Expr: "//button[contains(., 'Alles accepteren')]"},
					{By: "xpath", Expr: "//button[contains(., 'Alle akzeptieren')]"},
					{By: "xpath", Expr: "//button[contains(., 'I agree')]"},
				},
			},
			{Kind: "alternate_address", Name: "force-direct", Template: "{target}", Timeout: 10 * time.Second, Settle: 3 * time.Second},
		},
	}
}

func DefaultHarvest() Harvest {
	return Harvest{
		ContainerLocators: []string{
			"div[role='feed']",
			"[data-value='Search results']",
			"div.m6QErb[aria-label]",
			".section-scrollbox",
			".section-layout-root",
		},
		NoResultsMarkers:    []string{".section-no-results", "[data-value='No results found']"},
		EndSelectors:        []string{"span.HlvSq", ".PbZDve"},
		EndTexts:            []string{"You've reached the end of the list", "Je hebt het einde van de lijst bereikt"},
		StructuralSelectors: []string{"a.hfpxzc", "div.Nv2PK a[href]"},
		AttributeMarkers:    []string{"data-href", "data-url", "data-value"},
		IdentifierPattern:   `^https?://(www\.|maps\.)?google\.[a-z.]+/maps/place/`,
		ContainerWait:       30 * time.Second,
		PollInterval:        500 * time.Millisecond,
		ScrollStep:          1200,
		ScrollSettle:        2 * time.Second,
		AggressiveSteps:     5,
		AggressiveSettle:    4 * time.Second,
		StuckAfter:          3,
		StuckBelow:          20,
		Tiers: []Tier{
			{Below: 5, Tolerance: 15},
			{Below: 20, Tolerance: 8},
		},
		DefaultTolerance: 4,
		MaxIterations:    50,
	}
}

func DefaultExtract() Extract {
	return Extract{
		Root:       []string{"div[role='main']"},
		Settle:     2 * time.Second,
		NavTimeout: 30 * time.Second,
		Fields: map[string]FieldSpec{
			"name":     {Selectors: []string{"h1.DUwDvf", ".tAiQdd h1", "h1"}},
			"category": {Selectors: []string{"button.DkEaL", "button[jsaction*='category']"}},
			"address": {
				Selectors:  []string{"button[data-item-id='address'] div.rogA2c", "button[data-item-id='address']"},
				TrimPrefix: []string{"Address:"},
			},
			"phone": {
				Selectors:  []string{"button[data-item-id^='phone:'] div.rogA2c", "button.CsEnBe[data-item-id^='phone:']"},
				TrimPrefix: []string{"Phone:"},
			},
			"website":         {Selectors: []string{"a[data-item-id='authority']"}, Attr: "href"},
			"booking_link":    {Selectors: []string{"a[aria-label*='Open booking link']", "a[data-item-id='action:4']"}, Attr: "href"},
			"business_status": {Selectors: []string{"span.ZDu9vd span", "span.ZDu9vd"}},
			"total_reviews": {
				Selectors:  []string{"div.F7nice > span:nth-child(2)", "div.F7nice span[aria-label*='review']"},
				TrimPrefix: []string{"("},
				TrimSuffix: []string{")", "reviews", "review"},
			},
			"rating": {
				Selectors:  []string{"span.ceNzKf", "div.F7nice span[role='img']"},
				Attr:       "aria-label",
				TrimSuffix: []string{"stars", "star"},
			},
			"hours": {Selectors: []string{"div.t39EBf", "table.eK4R0e"}, Attr: "aria-label"},
		},
	}
}
