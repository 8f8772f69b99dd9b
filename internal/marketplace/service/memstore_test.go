package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/outbox"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory stand-in for PostgreSQL. Stored values are never mutated in
// place, so a shallow copy of the maps is a full snapshot.
type memStore struct {
	txMu sync.Mutex // serializes ExecuteTx the way row locks serialize the real store
	mu   sync.Mutex

	titles    map[uuid.UUID]*title.Title
	listings  map[uuid.UUID]*listing.Listing
	proposals map[uuid.UUID]*proposal.Proposal
	txs       map[uuid.UUID]*settlement.Transaction
	accounts  map[uuid.UUID]*wallet.Account
	wtxs      map[uuid.UUID]*wallet.Transaction
	outbox    []*outbox.Message
	titleSeq  int

	// failures maps an operation name such as "wallet_txs.create" to the error it returns
	failures map[string]error

	// hooks run once, just before the named operation
	hooks map[string]func()

	// outside holds listings committed by other writers; a rollback keeps them
	outside []*listing.Listing

	txCount int
}

func newMemStore() *memStore {
	return &memStore{
		titles:    map[uuid.UUID]*title.Title{},
		listings:  map[uuid.UUID]*listing.Listing{},
		proposals: map[uuid.UUID]*proposal.Proposal{},
		txs:       map[uuid.UUID]*settlement.Transaction{},
		accounts:  map[uuid.UUID]*wallet.Account{},
		wtxs:      map[uuid.UUID]*wallet.Transaction{},
		failures:  map[string]error{},
		hooks:     map[string]func(){},
	}
}

func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

func (s *memStore) fail(op string) error {
	return s.failures[op]
}

func (s *memStore) before(op string) {
	s.mu.Lock()
	hook := s.hooks[op]
	delete(s.hooks, op)
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// insertListing stores l directly, as a writer outside the current transaction would
func (s *memStore) insertListing(l *listing.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = clone(l)
	s.outside = append(s.outside, clone(l))
}

type memSnapshot struct {
	titles    map[uuid.UUID]*title.Title
	listings  map[uuid.UUID]*listing.Listing
	proposals map[uuid.UUID]*proposal.Proposal
	txs       map[uuid.UUID]*settlement.Transaction
	accounts  map[uuid.UUID]*wallet.Account
	wtxs      map[uuid.UUID]*wallet.Transaction
	outbox    []*outbox.Message
	titleSeq  int
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		titles:    copyMap(s.titles),
		listings:  copyMap(s.listings),
		proposals: copyMap(s.proposals),
		txs:       copyMap(s.txs),
		accounts:  copyMap(s.accounts),
		wtxs:      copyMap(s.wtxs),
		outbox:    slices.Clone(s.outbox),
		titleSeq:  s.titleSeq,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = snap.titles
	s.listings = snap.listings
	s.proposals = snap.proposals
	s.txs = snap.txs
	s.accounts = snap.accounts
	s.wtxs = snap.wtxs
	s.outbox = snap.outbox
	s.titleSeq = snap.titleSeq
	for _, l := range s.outside {
		if _, ok := s.listings[l.ID]; !ok {
			s.listings[l.ID] = clone(l)
		}
	}
}

// ExecuteTx runs fn atomically: any error restores the state seen before fn started
func (s *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txCount++

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		Titles:       &memTitleRepo{s},
		Listings:     &memListingRepo{s},
		Proposals:    &memProposalRepo{s},
		Transactions: &memTransactionRepo{s},
		Accounts:     &memAccountRepo{s},
		WalletTxs:    &memWalletTxRepo{s},
		Outbox:       &memOutboxRepo{s},
	}
}

func (s *memStore) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, string(m.EventType))
	}
	return out
}

func byID(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }

func sortedValues[V any](m map[uuid.UUID]V, keep func(V) bool) []V {
	ids := make([]uuid.UUID, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, byID)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// titles

type memTitleRepo struct{ s *memStore }

func (r *memTitleRepo) Create(ctx context.Context, t *title.Title) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.titles[t.ID] = clone(t)
	return nil
}

func (r *memTitleRepo) GetByID(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.titles[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "credit_title", ID: id}
	}
	return clone(t), nil
}

func (r *memTitleRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	r.s.before("titles.lock")
	return r.GetByID(ctx, id)
}

func (r *memTitleRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*title.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*title.Title
	for _, t := range sortedValues(r.s.titles, func(t *title.Title) bool { return t.OwnerID == ownerID }) {
		out = append(out, clone(t))
	}
	return out, nil
}

func (r *memTitleRepo) ListMaturedValidated(ctx context.Context, now time.Time, limit int) ([]*title.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*title.Title
	for _, t := range sortedValues(r.s.titles, func(t *title.Title) bool {
		return t.Status == title.StatusValidated && t.MaturityDate.Before(now)
	}) {
		out = append(out, clone(t))
	}
	return out, nil
}

func (r *memTitleRepo) NextNumber(ctx context.Context, year int) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.titleSeq++
	return fmt.Sprintf("TC-%d-%06d", year, r.s.titleSeq), nil
}

func (r *memTitleRepo) Update(ctx context.Context, t *title.Title) error {
	if err := r.s.fail("titles.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.titles[t.ID]
	if !ok || stored.Version != t.Version {
		return shared.ErrConcurrentModification{Entity: "credit_title", ID: t.ID}
	}
	t.Version++
	r.s.titles[t.ID] = clone(t)
	return nil
}

func (r *memTitleRepo) WithTx(tx pgx.Tx) title.Repository { return r }

// listings

type memListingRepo struct{ s *memStore }

func (r *memListingRepo) Create(ctx context.Context, l *listing.Listing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.listings[l.ID] = clone(l)
	return nil
}

func (r *memListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "listing", ID: id}
	}
	return clone(l), nil
}

func (r *memListingRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	return r.GetByID(ctx, id)
}

func (r *memListingRepo) list(keep func(*listing.Listing) bool) []*listing.Listing {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*listing.Listing
	for _, l := range sortedValues(r.s.listings, keep) {
		out = append(out, clone(l))
	}
	return out
}

func (r *memListingRepo) Search(ctx context.Context, f listing.Filter, now time.Time) ([]*listing.Listing, error) {
	return listing.Project(r.list(func(*listing.Listing) bool { return true }), f, now), nil
}

func (r *memListingRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*listing.Listing, error) {
	return r.list(func(l *listing.Listing) bool { return l.SellerID == sellerID }), nil
}

func (r *memListingRepo) FindOpenByTitle(ctx context.Context, titleID uuid.UUID) (*listing.Listing, error) {
	open := r.list(func(l *listing.Listing) bool { return l.TitleID == titleID && !l.Status.Terminal() })
	if len(open) == 0 {
		return nil, nil
	}
	return open[0], nil
}

func (r *memListingRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error) {
	return r.list(func(l *listing.Listing) bool { return !l.Status.Terminal() && l.ExpiresAt.Before(now) }), nil
}

func (r *memListingRepo) Update(ctx context.Context, l *listing.Listing) error {
	if err := r.s.fail("listings.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.listings[l.ID]
	if !ok || stored.Version != l.Version {
		return shared.ErrConcurrentModification{Entity: "listing", ID: l.ID}
	}
	l.Version++
	r.s.listings[l.ID] = clone(l)
	return nil
}

func (r *memListingRepo) WithTx(tx pgx.Tx) listing.Repository { return r }

// proposals

type memProposalRepo struct{ s *memStore }

func (r *memProposalRepo) Create(ctx context.Context, p *proposal.Proposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.proposals[p.ID] = clone(p)
	return nil
}

func (r *memProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.proposals[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "proposal", ID: id}
	}
	return clone(p), nil
}

func (r *memProposalRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r *memProposalRepo) list(keep func(*proposal.Proposal) bool) []*proposal.Proposal {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*proposal.Proposal
	for _, p := range sortedValues(r.s.proposals, keep) {
		out = append(out, clone(p))
	}
	return out
}

func (r *memProposalRepo) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	return r.list(func(p *proposal.Proposal) bool { return p.ListingID == listingID }), nil
}

func (r *memProposalRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*proposal.Proposal, error) {
	return r.list(func(p *proposal.Proposal) bool { return p.BuyerID == buyerID }), nil
}

func (r *memProposalRepo) LockPendingByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	return r.list(func(p *proposal.Proposal) bool {
		return p.ListingID == listingID && p.Status == proposal.StatusPending
	}), nil
}

func (r *memProposalRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*proposal.Proposal, error) {
	return r.list(func(p *proposal.Proposal) bool { return p.ExpiredAt(now) }), nil
}

func (r *memProposalRepo) Update(ctx context.Context, p *proposal.Proposal) error {
	if err := r.s.fail("proposals.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.proposals[p.ID]
	if !ok || stored.Version != p.Version {
		return shared.ErrConcurrentModification{Entity: "proposal", ID: p.ID}
	}
	p.Version++
	r.s.proposals[p.ID] = clone(p)
	return nil
}

func (r *memProposalRepo) WithTx(tx pgx.Tx) proposal.Repository { return r }

// transactions

type memTransactionRepo struct{ s *memStore }

func (r *memTransactionRepo) Create(ctx context.Context, t *settlement.Transaction) error {
	if err := r.s.fail("transactions.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.txs[t.ID] = clone(t)
	return nil
}

func (r *memTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txs[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "transaction", ID: id}
	}
	return clone(t), nil
}

func (r *memTransactionRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *memTransactionRepo) first(keep func(*settlement.Transaction) bool) *settlement.Transaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := sortedValues(r.s.txs, keep)
	if len(found) == 0 {
		return nil
	}
	return clone(found[0])
}

func (r *memTransactionRepo) GetByPaymentReference(ctx context.Context, ref string) (*settlement.Transaction, error) {
	t := r.first(func(t *settlement.Transaction) bool { return ref != "" && t.PaymentReference == ref })
	if t == nil {
		return nil, shared.ErrNotFound{Entity: "transaction"}
	}
	return t, nil
}

func (r *memTransactionRepo) FindActiveByTitle(ctx context.Context, titleID uuid.UUID) (*settlement.Transaction, error) {
	return r.first(func(t *settlement.Transaction) bool { return t.TitleID == titleID && t.Active() }), nil
}

func (r *memTransactionRepo) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*settlement.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*settlement.Transaction
	for _, t := range sortedValues(r.s.txs, func(t *settlement.Transaction) bool { return t.IsParty(partyID) }) {
		out = append(out, clone(t))
	}
	return out, nil
}

func (r *memTransactionRepo) Update(ctx context.Context, t *settlement.Transaction) error {
	if err := r.s.fail("transactions.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.txs[t.ID]
	if !ok || stored.Version != t.Version {
		return shared.ErrConcurrentModification{Entity: "transaction", ID: t.ID}
	}
	t.Version++
	r.s.txs[t.ID] = clone(t)
	return nil
}

func (r *memTransactionRepo) WithTx(tx pgx.Tx) settlement.Repository { return r }

// accounts

type memAccountRepo struct{ s *memStore }

func (r *memAccountRepo) Create(ctx context.Context, acc *wallet.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.OwnerID == acc.OwnerID {
			return shared.Precondition(shared.ErrAccountAlreadyExists, "owner %s already has an account", acc.OwnerID)
		}
	}
	r.s.accounts[acc.ID] = clone(acc)
	return nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "account", ID: id}
	}
	return clone(acc), nil
}

func (r *memAccountRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*wallet.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, acc := range r.s.accounts {
		if acc.OwnerID == ownerID {
			return clone(acc), nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *memAccountRepo) Update(ctx context.Context, acc *wallet.Account) error {
	if err := r.s.fail("accounts.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.accounts[acc.ID]
	if !ok || stored.Version != acc.Version {
		return shared.ErrConcurrentModification{Entity: "account", ID: acc.ID}
	}
	acc.Version++
	r.s.accounts[acc.ID] = clone(acc)
	return nil
}

func (r *memAccountRepo) WithTx(tx pgx.Tx) wallet.AccountRepository { return r }

// wallet transactions

type memWalletTxRepo struct{ s *memStore }

func (r *memWalletTxRepo) Create(ctx context.Context, wtx *wallet.Transaction) error {
	if err := r.s.fail("wallet_txs.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wtxs[wtx.ID] = clone(wtx)
	return nil
}

func (r *memWalletTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wtx, ok := r.s.wtxs[id]
	if !ok {
		return nil, shared.ErrNotFound{Entity: "wallet_transaction", ID: id}
	}
	return clone(wtx), nil
}

func (r *memWalletTxRepo) GetByExternalRef(ctx context.Context, ref string) (*wallet.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, wtx := range sortedValues(r.s.wtxs, func(w *wallet.Transaction) bool { return ref != "" && w.ExternalRef == ref }) {
		return clone(wtx), nil
	}
	return nil, shared.ErrNotFound{Entity: "wallet_transaction"}
}

func (r *memWalletTxRepo) byAccount(accountID uuid.UUID) []*wallet.Transaction {
	found := sortedValues(r.s.wtxs, func(w *wallet.Transaction) bool { return w.AccountID == accountID })
	slices.SortStableFunc(found, func(a, b *wallet.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return found
}

func (r *memWalletTxRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := r.byAccount(accountID)
	if offset >= len(found) {
		return []*wallet.Transaction{}, nil
	}
	found = found[offset:min(offset+limit, len(found))]
	out := make([]*wallet.Transaction, 0, len(found))
	for _, wtx := range found {
		out = append(out, clone(wtx))
	}
	return out, nil
}

func (r *memWalletTxRepo) CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.byAccount(accountID))), nil
}

func (r *memWalletTxRepo) UpdateStatus(ctx context.Context, wtx *wallet.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wtxs[wtx.ID]; !ok {
		return shared.ErrNotFound{Entity: "wallet_transaction", ID: wtx.ID}
	}
	r.s.wtxs[wtx.ID] = clone(wtx)
	return nil
}

func (r *memWalletTxRepo) WithTx(tx pgx.Tx) wallet.TransactionRepository { return r }

// outbox

type memOutboxRepo struct{ s *memStore }

func (r *memOutboxRepo) Create(ctx context.Context, msg *outbox.Message) error {
	if err := r.s.fail("outbox.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.outbox {
		if m.EventID == msg.EventID {
			return outbox.ErrDuplicateMessage{EventID: msg.EventID}
		}
	}
	msg.ID = int64(len(r.s.outbox) + 1)
	r.s.outbox = append(r.s.outbox, msg)
	return nil
}

func (r *memOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*outbox.Message
	for _, m := range r.s.outbox {
		if m.Status == shared.OutboxStatusPending && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return errors.New("not used by the engines")
}

func (r *memOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return errors.New("not used by the engines")
}

func (r *memOutboxRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.outbox {
		if m.EventID == eventID {
			return m, nil
		}
	}
	return nil, outbox.ErrMessageNotFound{}
}

func (r *memOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository { return r }
