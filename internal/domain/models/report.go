package models

import "time"

// ItemSummary is the end-of-day figure for one product.
type ItemSummary struct {
	Category string `bson:"category" json:"category"`
	Product  string `bson:"product" json:"product"`
	Produced int    `bson:"produced" json:"produced"`
	Losses   int    `bson:"losses" json:"losses"`
	Surplus  int    `bson:"surplus" json:"surplus"`
}

// DailyReport represents the aggregated daily data to be stored in MongoDB.
type DailyReport struct {
	Scope         string        `bson:"scope" json:"scope"`
	Date          string        `bson:"date" json:"date"`
	Weekday       string        `bson:"weekday" json:"weekday"`
	TotalProduced int           `bson:"total_produced" json:"total_produced"`
	TotalLosses   int           `bson:"total_losses" json:"total_losses"`
	TotalSurplus  int           `bson:"total_surplus" json:"total_surplus"`
	Items         []ItemSummary `bson:"items" json:"items"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
}

// NewDailyReport summarises a production map for archiving.
func NewDailyReport(scope Scope, m *ProductionMap, createdAt time.Time) DailyReport {
	report := DailyReport{Scope: scope.String(), CreatedAt: createdAt}
	if m == nil {
		return report
	}
	report.Date = m.Date
	report.Weekday = m.Weekday
	report.TotalProduced, report.TotalLosses, report.TotalSurplus = m.Totals()
	for _, item := range m.Items {
		report.Items = append(report.Items, ItemSummary{
			Category: item.Category,
			Product:  item.Product,
			Produced: item.TotalProduced(),
			Losses:   item.Losses,
			Surplus:  item.Surplus,
		})
	}
	return report
}
