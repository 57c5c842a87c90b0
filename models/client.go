package models

type Client struct {
	ID        uint   `gorm:"column:client_id;primaryKey;autoIncrement" json:"id"`
	FirstName string `gorm:"column:first_name;size:40;not null" json:"first_name"`
	LastName  string `gorm:"column:last_name;size:40;not null" json:"last_name"`
	Email     string `gorm:"column:email;size:40;not null;unique" json:"email"`
}

func (Client) TableName() string { return "clients" }

// Phone belongs to at most one client. Both the number and the owner are
// nullable; deleting a client never cascades to its phones.
type Phone struct {
	ID       uint    `gorm:"column:phone_id;primaryKey;autoIncrement" json:"id"`
	Phone    *string `gorm:"column:phone;size:40" json:"phone"`
	ClientID *uint   `gorm:"column:client_id" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID;references:ID" json:"-"`
}

func (Phone) TableName() string { return "phones" }

// Contact is one row of the clients/phones full outer join. Any column can
// be NULL: a client without phones has no number, an orphaned phone has no
// owner.
type Contact struct {
	FirstName *string `gorm:"column:first_name" json:"first_name"`
	LastName  *string `gorm:"column:last_name" json:"last_name"`
	Email     *string `gorm:"column:email" json:"email"`
	Phone     *string `gorm:"column:phone" json:"phone"`
}

// ClientUpdate lists the fields UpdateClient should touch. Nil and empty
// values are left alone.
type ClientUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	// Phone overwrites every phone number the client owns.
	Phone *string
}

func (u ClientUpdate) IsEmpty() bool {
	return !present(u.FirstName) && !present(u.LastName) && !present(u.Email) && !present(u.Phone)
}

type MatchMode int

const (
	// MatchAny keeps a row when at least one provided filter equals its column.
	MatchAny MatchMode = iota
	// MatchAll keeps a row only when every provided filter equals its column.
	MatchAll
)

// ClientFilter selects rows for FindClients. Nil fields are ignored; a
// filter with no fields set matches every row.
type ClientFilter struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Mode      MatchMode
}

// String returns a pointer to s, for building updates and filters.
func String(s string) *string { return &s }

func present(s *string) bool { return s != nil && *s != "" }
