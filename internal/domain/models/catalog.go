package models

// CatalogSection groups the products listed under one category.
type CatalogSection struct {
	Category string
	Products []string
}

var defaultCatalog = []CatalogSection{
	{
		Category: "PASTELARIA",
		Products: []string{
			"BOLA DE BERLIM", "BOLO CENOURA FATIA", "BOLO CHOCOLATE FATIA", "BOLO DE ARROZ",
			"BRIGADEIRO", "FRIPANUTS CHOCOLATE", "FRIPANUTS SUGAR", "MINI CHAUSSON",
			"TRANÇA CREME E MAÇÃ", "MUFFIN CHOCOLATE", "MUFFIN LIMÃO", "MUFFIN NOZ",
			"PAO DEUS SIMPLES", "PASTEL DE NATA", "QUEIJADA DE LEITE", "QUEIJADA DE MARACUJÁ",
			"QUEIJADA LARANJA", "QUEIJADA FEIJÃO", "SCONE SIMPLES", "TARTE MAÇÃ PREMIUM",
		},
	},
	{
		Category: "CROISSANTS",
		Products: []string{
			"CROISSANT CHOC E AVELÃ", "CROISSANT SIMPLES", "CROISSANT MULTICEREAIS",
			"CROISSANT MULTICEREAIS MISTO", "CROISSANT MISTO", "PÃO DE DEUS MISTO",
		},
	},
	{
		Category: "SALGADOS",
		Products: []string{
			"CHAMUÇA", "CROQ CARNE", "EMPANADA CAPRESE", "EMPANADA FRANGO", "EMPANADA Q/F",
			"EMPANADAS DE ATUM", "FOLHADO MISTO CARNE", "NAPOLITANA MISTA", "PASTEIS BAC",
			"RISSOL CARNE", "RISSOL MARISCO",
		},
	},
	{
		Category: "TOSTAS / SANDUÍCHES",
		Products: []string{
			"BAGUETE AMERICANA", "BAGUETE ATUM", "BAGUETE DELICIAS", "BAGUETE PRESUNTO QUEI",
			"BOLA PANADO DE PORCO", "PAO QUEIJO FRESCO", "PAO SALMAO FUMADO", "SD FRANGO COGUMELOS",
			"BAGUETE PRESUNTO", "BOLA 110 GRS MISTA", "BOLA PANADO DE PORCO (S/ Alface)",
			"TOSTA ATUM SALOIA", "TOSTA FRANGO SALOIA", "TOSTA MISTA SALOIA",
			"TOSTA PRESUNTO/QUEIJO SALOIA", "BOLO CACO MISTO", "SD AMERICANA",
		},
	},
	{
		Category: "REGIONAIS",
		Products: []string{
			"PÃO DE LÓ OVAR PEQ 85 GRS", "OVOS MOLES UND", "TARTES DE AMÊNDOA UND",
			"TRAVESSEIRO SINTRA", "PASTEIS TORRES VEDRAS UND", "PASTEIS AGUEDA UND",
			"PASTEIS VOUZELA UND", "TORTA DE AZEITÃO UND", "QUEIJADA MADEIRENSE",
			"MALASADA CREME (FRESCO)", "SALAME (FATIA)",
		},
	},
	{
		Category: "PÃO",
		Products: []string{"BAGUETE", "BOLA LENHA", "PÃO CEREAIS", "PÃO RUSTICO FATIAS"},
	},
}

// DefaultCatalog returns the sections of the built-in product catalog.
func DefaultCatalog() []CatalogSection {
	out := make([]CatalogSection, len(defaultCatalog))
	for idx, section := range defaultCatalog {
		out[idx] = CatalogSection{
			Category: section.Category,
			Products: append([]string(nil), section.Products...),
		}
	}
	return out
}

// NewProductionMap builds an empty map listing every product of the catalog.
func NewProductionMap(catalog []CatalogSection) *ProductionMap {
	m := &ProductionMap{}
	for _, section := range catalog {
		for _, product := range section.Products {
			m.Items = append(m.Items, ProductionItem{Category: section.Category, Product: product})
		}
	}
	return m
}
