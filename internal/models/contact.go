package models

// Contact is one direction of a contact link; links are stored in pairs.
type Contact struct {
	Base
	UserID    string `gorm:"size:36;not null;uniqueIndex:idx_contact_pair" json:"userId"`
	ContactID string `gorm:"size:36;not null;uniqueIndex:idx_contact_pair;index" json:"contactId"`
	Nickname  string `gorm:"size:64" json:"nickname"`

	Contact User `gorm:"foreignKey:ContactID" json:"contact"`
}

const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationDeclined = "DECLINED"
)

// Invitation is a contact request addressed to an email.
type Invitation struct {
	Base
	SenderID string `gorm:"size:36;not null;uniqueIndex:idx_invitation_sender_email" json:"senderId"`
	Email    string `gorm:"size:255;not null;uniqueIndex:idx_invitation_sender_email;index" json:"email"`
	Token    string `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Status   string `gorm:"size:16;not null;index" json:"status"`

	Sender User `gorm:"foreignKey:SenderID" json:"sender"`
}
