package bittrex

import "encoding/json"

// envelope is the wrapper every v1.1 endpoint responds with.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// noAPIResponse is the message the venue reports when its backend did not
// answer in time.
const noAPIResponse = "NO_API_RESPONSE"

type market struct {
	MarketName     string `json:"MarketName"`
	MarketCurrency string `json:"MarketCurrency"`
	BaseCurrency   string `json:"BaseCurrency"`
	IsActive       bool   `json:"IsActive"`
}

type ticker struct {
	Bid  float64 `json:"Bid"`
	Ask  float64 `json:"Ask"`
	Last float64 `json:"Last"`
}

type balance struct {
	Currency  string  `json:"Currency"`
	Balance   float64 `json:"Balance"`
	Available float64 `json:"Available"`
	Pending   float64 `json:"Pending"`
}

type uuidResult struct {
	UUID string `json:"uuid"`
}

type order struct {
	OrderUUID         string   `json:"OrderUuid"`
	Exchange          string   `json:"Exchange"`
	Quantity          float64  `json:"Quantity"`
	QuantityRemaining float64  `json:"QuantityRemaining"`
	Price             float64  `json:"Price"`
	PricePerUnit      *float64 `json:"PricePerUnit"`
	IsOpen            bool     `json:"IsOpen"`
}
