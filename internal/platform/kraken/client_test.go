package kraken

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zcesur/crypto-arb/internal/crypto"
	"github.com/zcesur/crypto-arb/internal/domain"
	"github.com/zcesur/crypto-arb/internal/platform/rest"
)

var testAuth = crypto.HMACAuth{Key: "test-key", Secret: "c2VjcmV0"}

type recorded struct {
	method string
	path   string
	query  url.Values
	body   string
	header http.Header
}

// fakeKraken serves testdata/<Method>.json for /0/public/<Method> and
// /0/private/<Method>.
type fakeKraken struct {
	t         *testing.T
	srv       *httptest.Server
	mu        sync.Mutex
	overrides map[string]string
	requests  []recorded
}

func newFakeKraken(t *testing.T) *fakeKraken {
	f := &fakeKraken{t: t, overrides: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKraken) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		body:   string(body),
		header: r.Header.Clone(),
	})
	name := method
	if o, ok := f.overrides[method]; ok {
		name = o
	}
	f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join("testdata", name+".json"))
	if err != nil {
		f.t.Errorf("no fixture for %s: %v", r.URL.Path, err)
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (f *fakeKraken) respond(method, fixture string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[method] = fixture
}

func (f *fakeKraken) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeKraken) lastForm(t *testing.T) url.Values {
	t.Helper()
	form, err := url.ParseQuery(f.last().body)
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return form
}

func newTestClient(f *fakeKraken) *Client {
	return New(Config{
		Name:       "Kraken",
		QuoteAsset: "BTC",
		Auth:       testAuth,
		Deposits: domain.DepositBook{
			"Bittrex": {
				"XRP": {Address: "rPVMhWBsfF9iMXYj3aAzJVkPDTFNSyWdKy", Memo: "99", WithdrawalKey: "bittrex-xrp"},
				"XLM": {Address: "GB6YPGW5JFMMP2QB2USQ33EUWTXVL4ZT5ITUNCY3YKVWOJPP57CANOF3"},
			},
		},
		Transport: rest.Config{BaseURL: f.srv.URL},
	})
}

func TestMarkets(t *testing.T) {
	f := newFakeKraken(t)
	markets, err := newTestClient(f).Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	bySymbol := map[string]domain.Market{}
	for _, m := range markets {
		bySymbol[m.Symbol] = m
	}
	xrp := bySymbol["XXRPXXBT"]
	if xrp.Base != "XRP" || xrp.Quote != "BTC" || !xrp.Active {
		t.Errorf("XXRPXXBT = %+v", xrp)
	}
	if bySymbol["XXLMXXBT"].Active {
		t.Error("cancel_only pair reported active")
	}
}

func TestTickers(t *testing.T) {
	f := newFakeKraken(t)
	tickers, err := newTestClient(f).Tickers(context.Background(), []string{"XRP", "XLM"})
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if got := f.last().query.Get("pair"); got != "XXRPXXBT,XXLMXXBT" {
		t.Errorf("pair = %q", got)
	}
	xrp := tickers["XRP"]
	if xrp.Ask != 0.0000501 || xrp.Bid != 0.0000499 || xrp.Last != 0.00005 {
		t.Errorf("XRP = %+v", xrp)
	}
	if tickers["XLM"].Bid != 0.00000211 {
		t.Errorf("XLM = %+v", tickers["XLM"])
	}
}

func TestBalancesSigned(t *testing.T) {
	f := newFakeKraken(t)
	bals, err := newTestClient(f).Balances(context.Background(), []string{"BTC", "XRP", "XLM"})
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	want := domain.Balances{"BTC": 0.5, "XRP": 50000, "XLM": 0}
	if len(bals) != len(want) {
		t.Fatalf("balances = %v", bals)
	}
	for k, v := range want {
		if bals[k] != v {
			t.Errorf("%s = %v, want %v", k, bals[k], v)
		}
	}

	r := f.last()
	if r.method != http.MethodPost || r.path != "/0/private/Balance" {
		t.Errorf("request = %s %s", r.method, r.path)
	}
	nonce := f.lastForm(t).Get("nonce")
	if nonce == "" {
		t.Fatal("nonce missing")
	}
	wantSig, err := testAuth.PathSignature("/0/private/Balance", nonce, r.body)
	if err != nil {
		t.Fatal(err)
	}
	if r.header.Get("API-Key") != "test-key" || r.header.Get("API-Sign") != wantSig {
		t.Errorf("auth headers = %q / %q", r.header.Get("API-Key"), r.header.Get("API-Sign"))
	}
}

func TestOrderSides(t *testing.T) {
	f := newFakeKraken(t)
	c := newTestClient(f)
	ctx := context.Background()

	id, err := c.Buy(ctx, "XRP", 2000, 0.0005)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if id != "OUF4EM-FRGI2-MQMWZD,OUF4EM-FRGI2-MQMWZE" {
		t.Errorf("txid = %q", id)
	}
	form := f.lastForm(t)
	if form.Get("type") != "buy" || form.Get("pair") != "XXRPXXBT" || form.Get("ordertype") != "limit" {
		t.Errorf("buy form = %v", form)
	}
	if form.Get("price") != "0.00050000" || form.Get("volume") != "2000" {
		t.Errorf("price/volume = %s/%s", form.Get("price"), form.Get("volume"))
	}

	if _, err := c.Sell(ctx, "XRP", 2000, 0.00052); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if got := f.lastForm(t).Get("type"); got != "sell" {
		t.Errorf("sell placed with type %q", got)
	}

	ok, err := c.Cancel(ctx, id)
	if err != nil || !ok {
		t.Errorf("Cancel = %v, %v", ok, err)
	}
	if got := f.lastForm(t).Get("txid"); got != id {
		t.Errorf("cancel txid = %q", got)
	}
}

func TestWithdrawByKey(t *testing.T) {
	f := newFakeKraken(t)
	c := newTestClient(f)
	ctx := context.Background()

	ref, err := c.Withdraw(ctx, "XRP", 1500, "Bittrex")
	if err != nil || ref != "AGBSO6T-UFMTTQ-I7KGS6" {
		t.Fatalf("Withdraw = %q, %v", ref, err)
	}
	form := f.lastForm(t)
	if form.Get("asset") != "XXRP" || form.Get("key") != "bittrex-xrp" || form.Get("amount") != "1500" {
		t.Errorf("withdraw form = %v", form)
	}

	if _, err := c.Withdraw(ctx, "XLM", 10, "Bittrex"); !errors.Is(err, domain.ErrNoDepositEntry) {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := c.Withdraw(ctx, "XRP", 10, "Binance"); !errors.Is(err, domain.ErrNoDepositEntry) {
		t.Errorf("missing venue: err = %v", err)
	}
}

func TestGetOrder(t *testing.T) {
	f := newFakeKraken(t)
	c := newTestClient(f)

	st, err := c.GetOrder(context.Background(), "OUF4EM-FRGI2-MQMWZD,OUF4EM-FRGI2-MQMWZE")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if st.OpenSize != 400 || st.FillSize != 1600 {
		t.Errorf("status = %+v", st)
	}
	if st.PricePerUnit == nil || math.Abs(*st.PricePerUnit-0.0005) > 1e-12 {
		t.Errorf("price per unit = %v", st.PricePerUnit)
	}

	f.respond("QueryOrders", "QueryOrders_unfilled")
	st, err = c.GetOrder(context.Background(), "OUF4EM-FRGI2-MQMWZD")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if st.FillSize != 0 || st.OpenSize != 2000 || st.PricePerUnit != nil {
		t.Errorf("unfilled status = %+v", st)
	}
}

func TestErrors(t *testing.T) {
	f := newFakeKraken(t)
	c := newTestClient(f)

	f.respond("AddOrder", "insufficient_funds")
	_, err := c.Buy(context.Background(), "XRP", 2000, 0.0005)
	var ve *domain.VenueError
	if !errors.As(err, &ve) || ve.Venue != "Kraken" || ve.Op != "buy" {
		t.Errorf("err = %v, want buy VenueError", err)
	}

	f.respond("Ticker", "garbled")
	_, err = c.Tickers(context.Background(), []string{"XRP"})
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestAssetCodes(t *testing.T) {
	tests := []struct{ currency, code string }{
		{"BTC", "XXBT"},
		{"XRP", "XXRP"},
		{"XLM", "XXLM"},
	}
	for _, tt := range tests {
		if got := asset(tt.currency); got != tt.code {
			t.Errorf("asset(%s) = %s, want %s", tt.currency, got, tt.code)
		}
		if got := fromVenue(tt.code); got != tt.currency {
			t.Errorf("fromVenue(%s) = %s, want %s", tt.code, got, tt.currency)
		}
	}
}
