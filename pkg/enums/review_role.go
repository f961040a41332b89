package enums

// ReviewRole names the direction of a review.
type ReviewRole string

const (
	ReviewRoleBuyerToVendor ReviewRole = "buyer_to_vendor"
	ReviewRoleVendorToBuyer ReviewRole = "vendor_to_buyer"
)

var reviewRoles = values[ReviewRole]{
	ReviewRoleBuyerToVendor,
	ReviewRoleVendorToBuyer,
}

func (r ReviewRole) String() string { return string(r) }

func (r ReviewRole) IsValid() bool { return reviewRoles.has(r) }

func ParseReviewRole(value string) (ReviewRole, error) {
	return reviewRoles.parse("review role", value)
}
