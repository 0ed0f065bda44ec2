package store

import (
	"chainwatch/internal/domain"
	"time"
)

// SampleBatches returns the built-in dataset used to seed an empty medium and
// as the fallback when the medium cannot be read. Times are relative to now.
func SampleBatches(now time.Time) []domain.Batch {
	now = now.UTC()
	day := 24 * time.Hour
	temp := func(v float64) *float64 { return &v }

	batches := []domain.Batch{
		{
			ID:                      "BATCH001",
			ProductName:             "PharmaX Vaccine",
			Origin:                  "Factory A, Berlin",
			Destination:             "Central Pharmacy, Munich",
			CurrentLocationGPS:      "50.1109,8.6821",
			TemperatureLimitCelsius: 5,
			Status:                  domain.StatusInTransit,
			CreationDate:            now.Add(-2 * day),
			QRCodeURL:               QRCodeURL("BATCH001"),
			Attachments: []domain.FileAttachment{
				{Name: "Invoice_001.pdf", URL: "#", Type: domain.AttachmentInvoice},
				{Name: "Product_Image.jpg", URL: "https://placehold.co/300x200.png/E0E0E0/B0B0B0?text=Product_Image", Type: domain.AttachmentImage},
			},
			Checkpoints: []domain.Checkpoint{
				{ID: "CP001", LocationName: "Factory A Loading Dock", GPSCoordinates: "52.5200,13.4050", Timestamp: now.Add(-2*day - time.Hour), TemperatureCelsius: temp(3), HandlerRole: domain.RoleManufacturer},
				{ID: "CP002", LocationName: "Distributor Hub Leipzig", GPSCoordinates: "51.3397,12.3731", Timestamp: now.Add(-day), TemperatureCelsius: temp(4), Notes: "Transferred to refrigerated truck.", HandlerRole: domain.RoleDistributor},
			},
			TemperatureLogs: []domain.TemperatureLog{
				{Timestamp: now.Add(-2*day - 50*time.Minute), TemperatureCelsius: 3.2, LocationGPS: "52.5200,13.4050"},
				{Timestamp: now.Add(-day - 10*time.Minute), TemperatureCelsius: 4.1, LocationGPS: "51.3397,12.3731"},
				{Timestamp: now.Add(-10 * time.Minute), TemperatureCelsius: 4.5, LocationGPS: "50.1109,8.6821"},
			},
		},
		{
			ID:                      "BATCH002",
			ProductName:             "MediChill Gel",
			Origin:                  "Lab B, Hamburg",
			Destination:             "Retailer X, Cologne",
			CurrentLocationGPS:      "53.5511,9.9937",
			TemperatureLimitCelsius: 8,
			Status:                  domain.StatusRegistered,
			CreationDate:            now.Add(-day),
			QRCodeURL:               QRCodeURL("BATCH002"),
			Checkpoints: []domain.Checkpoint{
				{ID: "CP003", LocationName: "Lab B Storage", GPSCoordinates: "53.5511,9.9937", Timestamp: now.Add(-day + time.Hour), TemperatureCelsius: temp(6), HandlerRole: domain.RoleManufacturer},
			},
			TemperatureLogs: []domain.TemperatureLog{
				{Timestamp: now.Add(-day + 70*time.Minute), TemperatureCelsius: 6.5},
			},
		},
		{
			ID:                      "BATCH003",
			ProductName:             "Sensitive Reagents",
			Origin:                  "Research Institute, Stuttgart",
			Destination:             "Hospital Y, Berlin",
			CurrentLocationGPS:      "52.5200,13.4050",
			TemperatureLimitCelsius: 2,
			Status:                  domain.StatusDelivered,
			CreationDate:            now.Add(-5 * day),
			QRCodeURL:               QRCodeURL("BATCH003"),
			Checkpoints: []domain.Checkpoint{
				{ID: "CP004", LocationName: "Research Institute", GPSCoordinates: "48.7758,9.1829", Timestamp: now.Add(-5 * day), TemperatureCelsius: temp(1.5), HandlerRole: domain.RoleManufacturer},
				{ID: "CP005", LocationName: "Logistics Partner Hub", GPSCoordinates: "50.1109,8.6821", Timestamp: now.Add(-4 * day), TemperatureCelsius: temp(1.8), HandlerRole: domain.RoleDistributor},
				{ID: "CP006", LocationName: "Hospital Y Receiving", GPSCoordinates: "52.5200,13.4050", Timestamp: now.Add(-3 * day), TemperatureCelsius: temp(1.9), Notes: "Delivered and stored.", HandlerRole: domain.RoleRetailer},
			},
			TemperatureLogs: []domain.TemperatureLog{
				{Timestamp: now.Add(-5 * day), TemperatureCelsius: 1.5},
				{Timestamp: now.Add(-4 * day), TemperatureCelsius: 1.8},
				{Timestamp: now.Add(-3 * day), TemperatureCelsius: 1.9},
			},
		},
	}

	for i := range batches {
		batches[i].Version = 1
		batches[i].Normalize()
	}
	return batches
}

// QRCodeURL returns the placeholder QR image reference for a batch id.
func QRCodeURL(id string) string {
	text := id
	if len(text) > 10 {
		text = text[:10]
	}
	return "https://placehold.co/150x150.png/E0E0E0/B0B0B0?text=QR+" + text
}
