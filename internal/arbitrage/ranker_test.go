package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/zcesur/crypto-arb/internal/domain"
)

func rankParams() CalcParams {
	p := testParams()
	p.Fees["Origin"] = map[string]float64{"XRP": 1, "XLM": 1}
	return p
}

func TestRankOrdersByProfit(t *testing.T) {
	log := &callLog{}
	origin := &fakeVenue{
		name: "Origin",
		tickers: domain.Tickers{
			"XRP": {Ask: 0.0005, Bid: 0.00049},
			"XLM": {Ask: 0.00002, Bid: 0.000019},
		},
		balances: domain.Balances{"BTC": 1.0},
		log:      log,
	}
	b := &fakeVenue{
		name: "B",
		tickers: domain.Tickers{
			"XRP": {Ask: 0.00053, Bid: 0.00052},
			"XLM": {Ask: 0.000022, Bid: 0.000021},
		},
		balances: domain.Balances{"XRP": 50000, "XLM": 10000},
		log:      log,
	}
	c := &fakeVenue{
		name:     "C",
		tickers:  domain.Tickers{"XRP": {Ask: 0.00052, Bid: 0.00051}},
		balances: domain.Balances{"XRP": 50000, "XLM": 0},
		log:      log,
	}

	r := NewRanker([]string{"XRP", "XLM"}, rankParams(), discardLogger())
	opps, err := r.Rank(context.Background(), origin, []domain.Venue{b, c})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	// C has no XLM quote, so that combination is skipped.
	want := []struct{ dest, currency string }{
		{"B", "XRP"},
		{"C", "XRP"},
		{"B", "XLM"},
	}
	if len(opps) != len(want) {
		t.Fatalf("got %d opportunities, want %d: %+v", len(opps), len(want), opps)
	}
	for i, w := range want {
		if opps[i].Destination != w.dest || opps[i].Currency != w.currency {
			t.Errorf("opps[%d] = %s/%s, want %s/%s", i, opps[i].Destination, opps[i].Currency, w.dest, w.currency)
		}
		if opps[i].Origin != "Origin" {
			t.Errorf("opps[%d].Origin = %q", i, opps[i].Origin)
		}
	}
	for i := 1; i < len(opps); i++ {
		if opps[i-1].ProfitEstimate < opps[i].ProfitEstimate {
			t.Errorf("not sorted at %d: %v < %v", i, opps[i-1].ProfitEstimate, opps[i].ProfitEstimate)
		}
	}
	if !approx(opps[0].ProfitEstimate, 0.03542) {
		t.Errorf("best profit = %v, want 0.03542", opps[0].ProfitEstimate)
	}
}

func TestRankStableTies(t *testing.T) {
	log := &callLog{}
	origin := &fakeVenue{
		name:     "Origin",
		tickers:  domain.Tickers{"XRP": {Ask: 0.0005}},
		balances: domain.Balances{"BTC": 1.0},
		log:      log,
	}
	var dests []domain.Venue
	for _, name := range []string{"D1", "D2", "D3", "D4"} {
		dests = append(dests, &fakeVenue{
			name:     name,
			tickers:  domain.Tickers{"XRP": {Bid: 0.00052}},
			balances: domain.Balances{"XRP": 50000},
			log:      log,
		})
	}

	r := NewRanker([]string{"XRP"}, rankParams(), discardLogger())
	for run := 0; run < 20; run++ {
		opps, err := r.Rank(context.Background(), origin, dests)
		if err != nil {
			t.Fatalf("Rank: %v", err)
		}
		for i, o := range opps {
			if o.Destination != dests[i].Name() {
				t.Fatalf("run %d: tie order changed: opps[%d] = %s, want %s", run, i, o.Destination, dests[i].Name())
			}
		}
	}
}

func TestRankFetchFailureAborts(t *testing.T) {
	log := &callLog{}
	origin := &fakeVenue{
		name:     "Origin",
		tickers:  domain.Tickers{"XRP": {Ask: 0.0005}},
		balances: domain.Balances{"BTC": 1.0},
		log:      log,
	}
	good := &fakeVenue{
		name:     "B",
		tickers:  domain.Tickers{"XRP": {Bid: 0.00052}},
		balances: domain.Balances{"XRP": 50000},
		log:      log,
	}
	bad := &fakeVenue{
		name:       "C",
		tickersErr: domain.NewVenueError("C", "tickers", "INVALID_MARKET"),
		balances:   domain.Balances{"XRP": 50000},
		log:        log,
	}

	r := NewRanker([]string{"XRP"}, rankParams(), discardLogger())
	opps, err := r.Rank(context.Background(), origin, []domain.Venue{good, bad})
	if err == nil {
		t.Fatalf("expected error, got %d opportunities", len(opps))
	}
	if !domain.IsVenueError(err) {
		t.Errorf("err = %v, want wrapped VenueError", err)
	}
	if opps != nil {
		t.Errorf("partial ranking returned: %+v", opps)
	}
}

func TestRankMissingData(t *testing.T) {
	tests := []struct {
		name   string
		origin *fakeVenue
		dest   *fakeVenue
	}{
		{
			name: "origin quote balance missing",
			origin: &fakeVenue{
				name:     "Origin",
				tickers:  domain.Tickers{"XRP": {Ask: 0.0005}},
				balances: domain.Balances{},
			},
			dest: &fakeVenue{
				name:     "B",
				tickers:  domain.Tickers{"XRP": {Bid: 0.00052}},
				balances: domain.Balances{"XRP": 50000},
			},
		},
		{
			name: "origin ask missing",
			origin: &fakeVenue{
				name:     "Origin",
				tickers:  domain.Tickers{},
				balances: domain.Balances{"BTC": 1},
			},
			dest: &fakeVenue{
				name:     "B",
				tickers:  domain.Tickers{"XRP": {Bid: 0.00052}},
				balances: domain.Balances{"XRP": 50000},
			},
		},
		{
			name: "destination balance missing",
			origin: &fakeVenue{
				name:     "Origin",
				tickers:  domain.Tickers{"XRP": {Ask: 0.0005}},
				balances: domain.Balances{"BTC": 1},
			},
			dest: &fakeVenue{
				name:     "B",
				tickers:  domain.Tickers{"XRP": {Bid: 0.00052}},
				balances: domain.Balances{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			tt.origin.log = log
			tt.dest.log = log
			r := NewRanker([]string{"XRP"}, rankParams(), discardLogger())
			_, err := r.Rank(context.Background(), tt.origin, []domain.Venue{tt.dest})
			if !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("err = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestRankNoDestinations(t *testing.T) {
	origin := &fakeVenue{
		name:     "Origin",
		tickers:  domain.Tickers{"XRP": {Ask: 0.0005}},
		balances: domain.Balances{"BTC": 1},
		log:      &callLog{},
	}
	r := NewRanker([]string{"XRP"}, rankParams(), discardLogger())
	opps, err := r.Rank(context.Background(), origin, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("got %d opportunities, want 0", len(opps))
	}
}
