package escrow

// CanList reports whether caller may create listings.
func (r Roles) CanList(caller [20]byte) bool { return caller == r.Seller }

// CanInspect reports whether caller may record inspection outcomes.
func (r Roles) CanInspect(caller [20]byte) bool { return caller == r.Inspector }

// CanFundLoan reports whether caller may contribute financing.
func (r Roles) CanFundLoan(caller [20]byte) bool { return caller == r.Lender }

// CanDeposit reports whether caller is the buyer designated on the listing.
func CanDeposit(listing *Listing, caller [20]byte) bool {
	return listing != nil && caller == listing.Buyer
}

// CanCancel allows the configured seller or the listing's buyer.
func (r Roles) CanCancel(listing *Listing, caller [20]byte) bool {
	if caller == r.Seller {
		return true
	}
	return listing != nil && caller == listing.Buyer
}

// GatingApprovers returns the parties whose approval finalisation requires,
// in the order buyer, seller, lender.
func (r Roles) GatingApprovers(listing *Listing) [3][20]byte {
	var buyer [20]byte
	if listing != nil {
		buyer = listing.Buyer
	}
	return [3][20]byte{buyer, r.Seller, r.Lender}
}

// IsGatingApprover reports whether an approval from caller counts towards
// finalisation of listing.
func (r Roles) IsGatingApprover(listing *Listing, caller [20]byte) bool {
	for _, addr := range r.GatingApprovers(listing) {
		if addr == caller {
			return true
		}
	}
	return false
}

var gatingRoleNames = [3]string{"buyer", "seller", "lender"}
