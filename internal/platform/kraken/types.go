package kraken

import "encoding/json"

// envelope is the wrapper every endpoint responds with. A non-empty Error
// means the request failed.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

type assetPair struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Status  string `json:"status"`
}

// tickerInfo holds the fields this binding reads. a, b and c are
// [price, ...] arrays of decimal strings.
type tickerInfo struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
}

type addOrderResult struct {
	Description struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

type cancelResult struct {
	Count int `json:"count"`
}

type withdrawResult struct {
	RefID string `json:"refid"`
}

type orderInfo struct {
	Status  string `json:"status"`
	Vol     string `json:"vol"`
	VolExec string `json:"vol_exec"`
	Cost    string `json:"cost"`
	Price   string `json:"price"`
}
