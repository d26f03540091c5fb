package domain

import (
	"encoding/json"
	"time"
)

// CacheSampleSize is how many raw records an ApiResponseCache row keeps.
const CacheSampleSize = 10

// ResponseCache is the CacheData document stored per connection in
// ApiResponseCache.
type ResponseCache struct {
	ConnectionID int64             `json:"connectionId"`
	Timestamp    time.Time         `json:"timestamp"`
	TotalOffers  int               `json:"totalOffers"`
	SampleOffer  json.RawMessage   `json:"sampleOffer"`
	RawData      []json.RawMessage `json:"rawData"`
	Structure    map[string]string `json:"structure"`
}
