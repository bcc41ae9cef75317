package state

import (
	"encoding/binary"
	"math/big"

	"deedescrow/native/escrow"
)

type storedListing struct {
	AssetID          uint64
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	EscrowAmount     *big.Int
	InspectionPassed bool
	Sold             bool
	IsListed         bool
	Cancelled        bool
	ListedAt         uint64
}

func newStoredListing(l *escrow.Listing) *storedListing {
	listedAt := uint64(0)
	if l.ListedAt > 0 {
		listedAt = uint64(l.ListedAt)
	}
	clone := l.Clone()
	return &storedListing{
		AssetID:          clone.AssetID,
		Seller:           clone.Seller,
		Buyer:            clone.Buyer,
		PurchasePrice:    clone.PurchasePrice,
		EscrowAmount:     clone.EscrowAmount,
		InspectionPassed: clone.InspectionPassed,
		Sold:             clone.Sold,
		IsListed:         clone.IsListed,
		Cancelled:        clone.Cancelled,
		ListedAt:         listedAt,
	}
}

func (s *storedListing) toListing() *escrow.Listing {
	return &escrow.Listing{
		AssetID:          s.AssetID,
		Seller:           s.Seller,
		Buyer:            s.Buyer,
		PurchasePrice:    nonNil(s.PurchasePrice),
		EscrowAmount:     nonNil(s.EscrowAmount),
		InspectionPassed: s.InspectionPassed,
		Sold:             s.Sold,
		IsListed:         s.IsListed,
		Cancelled:        s.Cancelled,
		ListedAt:         int64(s.ListedAt),
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func assetIDBytes(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func listingKey(id uint64) []byte { return hashKey(listingPrefix, assetIDBytes(id)) }

func approvalKey(id uint64, addr [20]byte) []byte {
	return hashKey(approvalPrefix, assetIDBytes(id), addr[:])
}

func approverIndexKey(id uint64) []byte { return hashKey(approverIndexPrefix, assetIDBytes(id)) }

func heldKey(id uint64) []byte { return hashKey(heldPrefix, assetIDBytes(id)) }

func loanKey(id uint64) []byte { return hashKey(loanPrefix, assetIDBytes(id)) }

func refundKey(id uint64, addr [20]byte) []byte {
	return hashKey(refundPrefix, assetIDBytes(id), addr[:])
}

// EscrowListingGet loads the listing for assetID.
func (m *Manager) EscrowListingGet(assetID uint64) (*escrow.Listing, bool, error) {
	stored := new(storedListing)
	ok, err := m.getRLP(listingKey(assetID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toListing(), true, nil
}

// EscrowListingPut validates and stores listing.
func (m *Manager) EscrowListingPut(listing *escrow.Listing) error {
	if err := listing.Validate(); err != nil {
		return err
	}
	return m.putRLP(listingKey(listing.AssetID), newStoredListing(listing))
}

func (m *Manager) approvers(assetID uint64) ([][20]byte, error) {
	var list [][20]byte
	if _, err := m.getRLP(approverIndexKey(assetID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// EscrowApprovers lists every address that approved assetID, in approval
// order.
func (m *Manager) EscrowApprovers(assetID uint64) ([][20]byte, error) {
	return m.approvers(assetID)
}

func (m *Manager) EscrowApprovalGet(assetID uint64, addr [20]byte) (bool, error) {
	return m.store.Has(approvalKey(assetID, addr))
}

func (m *Manager) EscrowApprovalSet(assetID uint64, addr [20]byte) error {
	exists, err := m.EscrowApprovalGet(assetID, addr)
	if err != nil || exists {
		return err
	}
	if err := m.store.Put(approvalKey(assetID, addr), []byte{1}); err != nil {
		return err
	}
	list, err := m.approvers(assetID)
	if err != nil {
		return err
	}
	return m.putRLP(approverIndexKey(assetID), append(list, addr))
}

// EscrowApprovalsClear removes every approval recorded for assetID.
func (m *Manager) EscrowApprovalsClear(assetID uint64) error {
	list, err := m.approvers(assetID)
	if err != nil {
		return err
	}
	for _, addr := range list {
		if err := m.delete(approvalKey(assetID, addr)); err != nil {
			return err
		}
	}
	if len(list) == 0 {
		return nil
	}
	return m.delete(approverIndexKey(assetID))
}

func (m *Manager) EscrowHeldGet(assetID uint64) (*big.Int, error) {
	return m.getAmount(heldKey(assetID))
}

func (m *Manager) EscrowHeldPut(assetID uint64, amount *big.Int) error {
	return m.putAmount(heldKey(assetID), amount)
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := m.getRLP(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.delete(key)
	}
	return m.putRLP(key, amount)
}

// EscrowLoanGet returns the part of the held ledger contributed by the lender.
func (m *Manager) EscrowLoanGet(assetID uint64) (*big.Int, error) {
	return m.getAmount(loanKey(assetID))
}

func (m *Manager) EscrowLoanPut(assetID uint64, amount *big.Int) error {
	return m.putAmount(loanKey(assetID), amount)
}

// EscrowRefundGet returns the refund owed to addr from a cancelled sale of
// assetID that could not be paid out at the time.
func (m *Manager) EscrowRefundGet(assetID uint64, addr [20]byte) (*big.Int, error) {
	return m.getAmount(refundKey(assetID, addr))
}

func (m *Manager) EscrowRefundPut(assetID uint64, addr [20]byte, amount *big.Int) error {
	return m.putAmount(refundKey(assetID, addr), amount)
}
