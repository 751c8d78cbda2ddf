package ygoprodeck

const (
	BaseURL = "https://db.ygoprodeck.com/api/v7"

	CardInfoEndpoint = "/cardinfo.php"

	// MaxBatchSize is the most ids sent in one cardinfo request.
	MaxBatchSize = 200
)
