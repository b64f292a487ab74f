package arbitrage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zcesur/crypto-arb/internal/domain"
)

// callLog records venue calls across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// after returns the calls from the first one starting with prefix onwards.
func (c *callLog) after(prefix string) []string {
	calls := c.snapshot()
	for i, call := range calls {
		if strings.HasPrefix(call, prefix) {
			return calls[i:]
		}
	}
	return nil
}

type fakeVenue struct {
	name        string
	tickers     domain.Tickers
	balances    domain.Balances
	tickersErr  error
	balancesErr error
	sellErr     error
	withdrawErr error
	log         *callLog
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) Markets(ctx context.Context) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeVenue) Tickers(ctx context.Context, currencies []string) (domain.Tickers, error) {
	f.log.add("%s tickers", f.name)
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	out := domain.Tickers{}
	for _, c := range currencies {
		if q, ok := f.tickers[c]; ok {
			out[c] = q
		}
	}
	return out, nil
}

func (f *fakeVenue) Balances(ctx context.Context, currencies []string) (domain.Balances, error) {
	f.log.add("%s balances %s", f.name, strings.Join(currencies, ","))
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	out := domain.Balances{}
	for _, c := range currencies {
		if b, ok := f.balances[c]; ok {
			out[c] = b
		}
	}
	return out, nil
}

func (f *fakeVenue) Buy(ctx context.Context, currency string, size, rate float64) (string, error) {
	f.log.add("%s buy %s %.0f@%.8f", f.name, currency, size, rate)
	return f.name + "-buy-1", nil
}

func (f *fakeVenue) Sell(ctx context.Context, currency string, size, rate float64) (string, error) {
	f.log.add("%s sell %s %.0f@%.8f", f.name, currency, size, rate)
	if f.sellErr != nil {
		return "", f.sellErr
	}
	return f.name + "-sell-1", nil
}

func (f *fakeVenue) Cancel(ctx context.Context, orderID string) (bool, error) {
	f.log.add("%s cancel %s", f.name, orderID)
	return true, nil
}

func (f *fakeVenue) Withdraw(ctx context.Context, currency string, size float64, destination string) (string, error) {
	f.log.add("%s withdraw %s %.0f to %s", f.name, currency, size, destination)
	if f.withdrawErr != nil {
		return "", f.withdrawErr
	}
	return f.name + "-wd-1", nil
}

func (f *fakeVenue) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	return domain.OrderStatus{}, nil
}

func recordingSleep(log *callLog) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		log.add("sleep %s", d)
		return ctx.Err()
	}
}

type notification struct {
	event, title, message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recordingNotifier) Notify(ctx context.Context, event, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{event, title, message})
	return nil
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.event)
	}
	return out
}
