package enrich

// Theme is one entry of the EU data-theme vocabulary.
type Theme struct {
	Code        string
	Label       string
	Description string
	Keywords    []string
}

// MaxTags is the largest number of topics attached to a record.
const MaxTags = 3

// Themes returns the vocabulary in its canonical order.
func Themes() []Theme {
	return []Theme{
		{
			Code: "AGRI", Label: "Agriculture, fisheries, forestry and food",
			Description: "Farming, crops, livestock, fisheries, forestry, food production, food safety and rural land use.",
			Keywords:    []string{"agriculture", "agricultural", "farm", "farms", "farming", "farmer", "farmers", "crop", "crops", "livestock", "cattle", "dairy", "fishery", "fisheries", "fishing", "forestry", "forest", "forests", "food", "wheat", "corn", "harvest", "rural"},
		},
		{
			Code: "ECON", Label: "Economy and finance",
			Description: "Economic output, public finance, budgets, taxation, prices, inflation, trade, business and employment.",
			Keywords:    []string{"economy", "economic", "finance", "financial", "budget", "budgets", "tax", "taxation", "inflation", "gdp", "prices", "price", "market", "markets", "trade", "business", "businesses", "spending", "revenue", "employment", "unemployment", "wages", "income"},
		},
		{
			Code: "EDUC", Label: "Education, culture and sport",
			Description: "Schools, universities, teaching, pupils and students, libraries, museums, the arts, heritage and sport.",
			Keywords:    []string{"education", "educational", "school", "schools", "pupil", "pupils", "student", "students", "teacher", "teachers", "university", "universities", "college", "curriculum", "culture", "cultural", "museum", "museums", "library", "libraries", "arts", "heritage", "sport", "sports"},
		},
		{
			Code: "ENER", Label: "Energy",
			Description: "Electricity, gas, oil, renewable energy, wind and solar power, fuel, energy consumption and efficiency.",
			Keywords:    []string{"energy", "electricity", "electric", "gas", "oil", "fuel", "fuels", "renewable", "renewables", "wind", "solar", "nuclear", "power", "grid", "emissions", "coal", "heating"},
		},
		{
			Code: "ENVI", Label: "Environment",
			Description: "Climate, pollution, air and water quality, waste, recycling, biodiversity, wildlife and nature conservation.",
			Keywords:    []string{"environment", "environmental", "climate", "pollution", "air", "water", "waste", "recycling", "biodiversity", "wildlife", "bird", "birds", "species", "habitat", "conservation", "flood", "flooding", "carbon", "nature"},
		},
		{
			Code: "GOVE", Label: "Government and public sector",
			Description: "Government departments, parliament, elections, councils, public administration, policy and public services.",
			Keywords:    []string{"government", "parliament", "parliamentary", "minister", "ministers", "department", "council", "councils", "election", "elections", "vote", "voting", "policy", "public", "administration", "legislation", "bill", "committee", "hansard"},
		},
		{
			Code: "HEAL", Label: "Health",
			Description: "Health care, hospitals, the NHS, patients, diseases, mortality, vaccination, mental health and wellbeing.",
			Keywords:    []string{"health", "healthcare", "hospital", "hospitals", "nhs", "patient", "patients", "disease", "diseases", "mortality", "vaccine", "vaccination", "medical", "medicine", "doctor", "doctors", "nurse", "nurses", "wellbeing", "covid"},
		},
		{
			Code: "INTR", Label: "International issues",
			Description: "Foreign affairs, international relations, development aid, treaties, migration between countries and the European Union.",
			Keywords:    []string{"international", "foreign", "overseas", "treaty", "treaties", "embassy", "diplomatic", "aid", "development", "migration", "immigration", "eu", "european", "united nations", "nato", "export", "exports", "import", "imports"},
		},
		{
			Code: "JUST", Label: "Justice, legal system and public safety",
			Description: "Crime, policing, courts, prisons, law, legal aid, public safety and emergency services.",
			Keywords:    []string{"justice", "crime", "crimes", "criminal", "police", "policing", "court", "courts", "prison", "prisons", "offender", "offenders", "law", "legal", "safety", "fire", "emergency", "sentencing", "victim", "victims"},
		},
		{
			Code: "REGI", Label: "Regions and cities",
			Description: "Regional and local statistics, cities, towns, housing, planning, land use and local authorities.",
			Keywords:    []string{"region", "regions", "regional", "local", "city", "cities", "town", "towns", "housing", "homes", "planning", "authority", "authorities", "borough", "county", "counties", "urban", "neighbourhood", "postcode"},
		},
		{
			Code: "SOCI", Label: "Population and society",
			Description: "Population, census, households, demographics, births, deaths, welfare, benefits, poverty and social care.",
			Keywords:    []string{"population", "census", "household", "households", "demographic", "demographics", "births", "deaths", "age", "gender", "ethnicity", "welfare", "benefits", "poverty", "social", "society", "community", "families", "children"},
		},
		{
			Code: "TECH", Label: "Science and technology",
			Description: "Research, science, innovation, technology, digital services, broadband, telecommunications and data.",
			Keywords:    []string{"science", "scientific", "research", "innovation", "technology", "technologies", "digital", "broadband", "internet", "telecommunications", "software", "data", "computing", "cyber", "space", "engineering"},
		},
		{
			Code: "TRAN", Label: "Transport",
			Description: "Roads, traffic, railways, buses, aviation, shipping, vehicles, cycling and journeys.",
			Keywords:    []string{"transport", "transportation", "road", "roads", "traffic", "rail", "railway", "railways", "train", "trains", "bus", "buses", "aviation", "airport", "airports", "shipping", "port", "vehicle", "vehicles", "cycling", "journey", "journeys"},
		},
	}
}

// ThemeCodes returns the vocabulary codes in canonical order.
func ThemeCodes() []string {
	themes := Themes()
	codes := make([]string, len(themes))
	for i, t := range themes {
		codes[i] = t.Code
	}
	return codes
}
