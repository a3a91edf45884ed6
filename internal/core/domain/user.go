package domain

import "time"

// Role enumerates the account roles recognised by the platform.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleTrader Role = "trader"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// roleLevels orders roles by increasing privilege.
var roleLevels = map[Role]int{
	RoleFarmer: 1,
	RoleTrader: 2,
	RoleExpert: 3,
	RoleAdmin:  4,
}

// Valid reports whether the role is one of the known account roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether the role carries at least the privilege of required.
func (r Role) AtLeast(required Role) bool {
	return roleLevels[r] >= roleLevels[required]
}

// CanModerate reports whether the role may moderate marketplace content.
func (r Role) CanModerate() bool {
	return r == RoleExpert || r == RoleAdmin
}

// Preference defaults applied when an account is created without them.
// They mirror the column defaults in the users table.
const (
	DefaultLanguage      = "en"
	DefaultPreferredUnit = "metric"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID            string
	Email         string
	Phone         *string
	PasswordHash  string
	FullName      string
	Role          Role
	IsActive      bool
	EmailVerified bool
	PhoneVerified bool
	AvatarURL     *string
	Address       *string
	City          *string
	District      *string
	State         *string
	Pincode       *string
	Latitude      *float64
	Longitude     *float64
	Language      *string
	PreferredUnit *string
	Notifications bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// Sanitized returns a copy of the user with credential material stripped.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// ProfileUpdate enumerates every profile field a user may change.
// A nil field leaves the stored value untouched; updatable columns are
// listed here explicitly rather than discovered at runtime.
type ProfileUpdate struct {
	FullName      *string
	Phone         *string
	AvatarURL     *string
	Address       *string
	City          *string
	District      *string
	State         *string
	Pincode       *string
	Latitude      *float64
	Longitude     *float64
	Language      *string
	PreferredUnit *string
	Notifications *bool
}

// IsEmpty reports whether the update would change nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.FullName == nil && p.Phone == nil && p.AvatarURL == nil &&
		p.Address == nil && p.City == nil && p.District == nil &&
		p.State == nil && p.Pincode == nil && p.Latitude == nil &&
		p.Longitude == nil && p.Language == nil && p.PreferredUnit == nil &&
		p.Notifications == nil
}
