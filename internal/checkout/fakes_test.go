package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imrishuroy/checkout-reconciler/internal/cache"
	"github.com/imrishuroy/checkout-reconciler/internal/orders"
	"github.com/imrishuroy/checkout-reconciler/internal/payments"
	"github.com/imrishuroy/checkout-reconciler/internal/pending"
	"github.com/imrishuroy/checkout-reconciler/internal/users"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeProvider struct {
	mu        sync.Mutex
	seq       int
	sessions  map[string]*payments.Session
	customers map[string]*payments.Customer

	customerParams []payments.CustomerParams
	sessionParams  []payments.SessionParams
	getSessions    int
	getCustomers   int

	createCustomerErr error
	createSessionErr  error
	getSessionErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions:  map[string]*payments.Session{},
		customers: map[string]*payments.Customer{},
	}
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, p payments.CustomerParams) (*payments.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerParams = append(f.customerParams, p)
	if f.createCustomerErr != nil {
		return nil, f.createCustomerErr
	}
	f.seq++
	c := &payments.Customer{ID: fmt.Sprintf("cus_%d", f.seq), Email: p.Email, Metadata: p.Metadata}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeProvider) GetCustomer(ctx context.Context, id string) (*payments.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCustomers++
	c, ok := f.customers[id]
	if !ok {
		return nil, payments.ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeProvider) CreateSession(ctx context.Context, p payments.SessionParams) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionParams = append(f.sessionParams, p)
	if f.createSessionErr != nil {
		return nil, f.createSessionErr
	}
	f.seq++
	s := &payments.Session{
		ID:            fmt.Sprintf("cs_test_%d", f.seq),
		URL:           fmt.Sprintf("https://checkout.example.com/c/%d", f.seq),
		PaymentStatus: payments.PaymentStatusUnpaid,
		CustomerID:    p.CustomerID,
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeProvider) GetSession(ctx context.Context, id string) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getSessions++
	if f.getSessionErr != nil {
		return nil, f.getSessionErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	out := *s
	if c, ok := f.customers[s.CustomerID]; ok && out.Customer == nil {
		cc := *c
		out.Customer = &cc
	}
	return &out, nil
}

// pay marks a session paid and attaches a shipping address.
func (f *fakeProvider) pay(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].PaymentStatus = payments.PaymentStatusPaid
	f.sessions[id].Address = &payments.Address{Line1: "1 Mall Rd", City: "Lahore", Country: "PK"}
}

type fakePending struct {
	mu      sync.Mutex
	records map[string]*pending.Record
	now     func() time.Time
}

func newFakePending() *fakePending {
	return &fakePending{records: map[string]*pending.Record{}, now: time.Now}
}

func (f *fakePending) Create(ctx context.Context, rec pending.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.SessionID]; ok {
		return false, nil
	}
	rec.Status = pending.StatusPending
	rec.CreatedAt = f.now()
	f.records[rec.SessionID] = &rec
	return true, nil
}

func (f *fakePending) Get(ctx context.Context, sessionID string) (*pending.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[sessionID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (f *fakePending) Claim(ctx context.Context, sessionID string, lease time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[sessionID]
	now := f.now()
	if !ok {
		return pending.ErrStatusMismatch
	}
	if rec.Status != pending.StatusPending &&
		!(rec.Status == pending.StatusMaterializing && rec.LeaseUntil < now.Unix()) {
		return pending.ErrStatusMismatch
	}
	rec.Status = pending.StatusMaterializing
	rec.LeaseUntil = now.Add(lease).Unix()
	rec.Attempts++
	return nil
}

func (f *fakePending) Complete(ctx context.Context, sessionID string, sum pending.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[sessionID]
	if !ok || rec.Status != pending.StatusMaterializing {
		return pending.ErrStatusMismatch
	}
	rec.Status = pending.StatusDone
	rec.LeaseUntil = 0
	rec.OrdersCreated = sum.OrdersCreated
	rec.LinesFailed = sum.LinesFailed
	rec.NeedsReview = sum.NeedsReview
	rec.Note = sum.Note
	return nil
}

type fakeOrders struct {
	mu         sync.Mutex
	orders     map[string]orders.Order
	stock      map[string]int
	decrements map[string]int
	failFor    map[string]error
}

func newFakeOrders(stock map[string]int) *fakeOrders {
	return &fakeOrders{
		orders:     map[string]orders.Order{},
		stock:      stock,
		decrements: map[string]int{},
		failFor:    map[string]error{},
	}
}

func (f *fakeOrders) MaterializeLine(ctx context.Context, o orders.Order) (orders.LineResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := orders.LineResult{OrderID: o.OrderID}
	if err := f.failFor[o.ProductID]; err != nil {
		return res, err
	}
	if _, ok := f.orders[o.OrderID]; ok {
		return res, nil
	}
	f.orders[o.OrderID] = o
	res.Created = true
	s, ok := f.stock[o.ProductID]
	if !ok {
		res.ProductMissing = true
		return res, nil
	}
	f.decrements[o.ProductID]++
	if s < o.Quantities {
		f.stock[o.ProductID] = 0
		res.Clamped = true
		return res, nil
	}
	f.stock[o.ProductID] = s - o.Quantities
	return res, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeUsers struct {
	byID map[string]*users.User
}

func newFakeUsers() (*fakeUsers, string) {
	id := primitive.NewObjectID()
	return &fakeUsers{byID: map[string]*users.User{
		id.Hex(): {ID: id, Email: "buyer@example.com", Name: "Buyer"},
	}}, id.Hex()
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]cache.Entry{}}
}

func (f *fakeCache) Get(ctx context.Context, id string) (*cache.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &e, nil
}

func (f *fakeCache) Set(ctx context.Context, id string, e cache.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = e
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) RecordVerification(ctx context.Context, outcome string, ordersCreated, linesFailed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}
