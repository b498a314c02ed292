package classify

// Метки по умолчанию, если ни одно правило не сработало.
const (
	DefaultSector = "Tech"
	DefaultEvent  = "News"
	// RegionSentinel - страна не определена, но новость региональная.
	RegionSentinel = "LATAM"
)

// Метки событий, используемые в скоринге и секциях.
const (
	EventFunding     = "Funding"
	EventMA          = "M&A"
	EventMarketEntry = "MarketEntry"
	EventNewPlant    = "NewPlant"
	EventPartnership = "Partnership"

	SectorManufacturing = "Manufacturing"
)

// Rule - метка и набор шаблонов. Шаблон с завершающей '*' совпадает по префиксу слова.
type Rule struct {
	Label    string
	Patterns []string
}

// Rules - полная декларативная таблица классификатора. Порядок значим.
type Rules struct {
	Sectors      []Rule
	Events       []Rule
	Countries    []Rule
	StartupHints []string
	RegionHints  []string
	MaxSectors   int
	MaxEvents    int
}

// DefaultRules возвращает встроенную таблицу правил.
func DefaultRules() Rules {
	return Rules{
		MaxSectors: 3,
		MaxEvents:  2,
		Countries: []Rule{
			{"AR", []string{"argentina", "argentino", "buenos aires", "mendoza", "cordoba", "córdoba"}},
			{"BR", []string{"brazil", "brasil", "brazilian", "são paulo", "sao paulo", "rio de janeiro", "bahia"}},
			{"MX", []string{"mexico", "méxico", "mexican", "cdmx", "guadalajara", "jalisco", "monterrey"}},
			{"CL", []string{"chile", "chilean", "santiago", "valparaíso", "valparaiso"}},
			{"CO", []string{"colombia", "colombian", "bogotá", "bogota", "medellín", "medellin", "cali"}},
			{"PE", []string{"peru", "perú", "peruvian", "lima"}},
			{"UY", []string{"uruguay", "montevideo"}},
			{"PY", []string{"paraguay", "asunción", "asuncion"}},
			{"EC", []string{"ecuador", "quito", "guayaquil"}},
			{"BO", []string{"bolivia", "la paz", "santa cruz"}},
			{"PA", []string{"panama", "panamá"}},
			{"CR", []string{"costa rica", "san josé", "san jose"}},
			{"DO", []string{"dominican", "república dominicana", "republica dominicana", "santo domingo"}},
			{"SV", []string{"el salvador", "san salvador"}},
			{"GT", []string{"guatemala", "guatemala city"}},
		},
		Sectors: []Rule{
			{"FinTech", []string{"fintech", "payments", "payment", "wallet", "bank", "lending", "credit", "crypto", "usdt", "remittance*"}},
			{"MedTech", []string{"medtech", "healthtech", "health", "hospital", "clinic", "biotech", "pharma", "diagnostic*"}},
			{"EdTech", []string{"edtech", "education", "learning", "school", "university", "lms", "course", "student*"}},
			{"AI", []string{"ai", "artificial intelligence", "machine learning", "llm", "model", "genai"}},
			{"SaaS", []string{"saas", "b2b software", "subscription", "platform", "enterprise software"}},
			{"HRTech", []string{"hrtech", "hr", "hiring", "recruit*", "talent", "payroll", "benefits"}},
			{"Climate", []string{"climate", "carbon", "sustainab*", "recycling", "clean energy", "solar", "wind"}},
			{"Energy", []string{"energy", "oil", "gas", "grid", "renewable*"}},
			{"AgriTech", []string{"agritech", "agro*", "farm", "farms", "farming", "crops", "livestock"}},
			{"Mobility", []string{"mobility", "ride", "transport*", "logistics", "delivery", "fleet"}},
			{"E-commerce", []string{"ecommerce", "e-commerce", "marketplace", "retail", "shop"}},
			{"InsurTech", []string{"insurtech", "insurance"}},
			{"PropTech", []string{"proptech", "real estate", "housing"}},
			{"Cybersecurity", []string{"cyber*", "security", "infosec", "fraud"}},
			{SectorManufacturing, []string{"factory", "manufacturing", "plant", "production", "industrial", "new facility", "gigafactory"}},
		},
		Events: []Rule{
			{EventFunding, []string{"raised", "raises", "round", "series a", "series b", "seed", "pre-seed", "investment", "financing", "funding", "ronda", "inversión", "levantó", "financiación"}},
			{EventMA, []string{"acquired", "acquires", "acquisition", "merger", "m&a", "compró", "adquirió"}},
			{EventMarketEntry, []string{"launches in", "enters", "expands to", "expansion", "new market", "arrives to", "llega a", "desembarca", "expande"}},
			{EventNewPlant, []string{"opens", "opening", "new plant", "new factory", "builds", "manufacturing", "production facility", "planta", "fábrica", "producción"}},
			{EventPartnership, []string{"partners", "partnership", "agreement", "allianc*", "acuerdo", "alianza"}},
		},
		StartupHints: []string{
			"startup", "startups", "start-up", "scaleup", "unicorn", "vc", "venture", "accelerator", "incubator",
			"funding", "series", "seed", "round", "investment", "acquired", "acquisition",
			"fintech", "saas", "ai", "platform", "raises", "raised",
			"inversión", "ronda", "financiación", "levantó", "adquirió", "acuerdo",
		},
		RegionHints: []string{
			"latam", "latin america", "latinoamérica", "latinoamerica", "américa latina",
			"argentina", "brazil", "brasil", "mexico", "méxico", "colombia", "chile", "peru", "perú",
			"uruguay", "paraguay", "bolivia", "ecuador", "venezuela", "costa rica",
			"guatemala", "panama", "panamá", "dominican", "salvador", "honduras", "nicaragua",
		},
	}
}

// Веса сигналов для скоринга.
const (
	weightFunding       = 5
	weightMA            = 4
	weightManufacturing = 3
	weightMarketEntry   = 2
	weightPartnership   = 1
	weightStartup       = 1
	weightAmount        = 2
)

// SectorLabels возвращает метки секторов в порядке объявления.
func (r Rules) SectorLabels() []string {
	return labels(r.Sectors)
}

// EventLabels возвращает метки событий в порядке объявления.
func (r Rules) EventLabels() []string {
	return labels(r.Events)
}

func labels(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Label)
	}
	return out
}
