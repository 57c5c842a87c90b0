package models

const (
	EventClientCreated = "client_created"
	EventClientUpdated = "client_updated"
	EventClientDeleted = "client_deleted"
	EventPhoneAdded    = "phone_added"
	EventPhoneDeleted  = "phone_deleted"
)

// ClientEvent is published on every change to the directory.
type ClientEvent struct {
	Event    string `json:"event"`
	ClientID uint   `json:"client_id"`
	Phone    string `json:"phone,omitempty"`
}

// ClientDocument is the denormalised view of a client kept in the cache and
// the search index.
type ClientDocument struct {
	ID        uint     `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phones    []string `json:"phones"`
}

func NewClientDocument(client *Client, phones []Phone) ClientDocument {
	doc := ClientDocument{
		ID:        client.ID,
		FirstName: client.FirstName,
		LastName:  client.LastName,
		Email:     client.Email,
		Phones:    make([]string, 0, len(phones)),
	}
	for _, p := range phones {
		if p.Phone != nil {
			doc.Phones = append(doc.Phones, *p.Phone)
		}
	}
	return doc
}
