package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Juls95/Trinit-AI/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Contacts lists the user's contacts with the linked user, newest first.
func (s *Store) Contacts(ctx context.Context, userID string) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.conn(ctx).Preload("Contact").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// AreContacts reports whether every id is a contact of ownerID.
func (s *Store) AreContacts(ctx context.Context, ownerID string, ids []string) (bool, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return true, nil
	}
	var n int64
	err := s.conn(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND contact_id IN ?", ownerID, ids).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check contacts: %w", err)
	}
	return n == int64(len(ids)), nil
}

// HasContactWithEmail reports whether ownerID already has a contact with email.
func (s *Store) HasContactWithEmail(ctx context.Context, ownerID, email string) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Contact{}).
		Joins("JOIN users ON users.id = contacts.contact_id").
		Where("contacts.user_id = ? AND users.email = ?", ownerID, email).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check contact email: %w", err)
	}
	return n > 0, nil
}

// LinkContacts creates the mutual contact pair a<->b. Existing links are kept.
func (s *Store) LinkContacts(ctx context.Context, a, b string) error {
	return linkContacts(s.conn(ctx), a, b)
}

func linkContacts(db *gorm.DB, a, b string) error {
	rows := []models.Contact{
		{UserID: a, ContactID: b},
		{UserID: b, ContactID: a},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("link contacts: %w", err)
	}
	return nil
}

// PendingSent lists pending invitations sent by senderID.
func (s *Store) PendingSent(ctx context.Context, senderID string) ([]models.Invitation, error) {
	var invs []models.Invitation
	err := s.conn(ctx).
		Where("sender_id = ? AND status = ?", senderID, models.InvitationPending).
		Order("created_at DESC").
		Find(&invs).Error
	if err != nil {
		return nil, fmt.Errorf("list sent invitations: %w", err)
	}
	return invs, nil
}

// PendingReceived lists pending invitations addressed to email.
func (s *Store) PendingReceived(ctx context.Context, email string) ([]models.Invitation, error) {
	var invs []models.Invitation
	err := s.conn(ctx).Preload("Sender").
		Where("email = ? AND status = ?", email, models.InvitationPending).
		Order("created_at DESC").
		Find(&invs).Error
	if err != nil {
		return nil, fmt.Errorf("list received invitations: %w", err)
	}
	return invs, nil
}

// InvitationBySenderEmail finds the invitation keyed by (sender, email).
func (s *Store) InvitationBySenderEmail(ctx context.Context, senderID, email string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.conn(ctx).Where("sender_id = ? AND email = ?", senderID, email).First(&inv).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// UpsertInvitation creates the (sender, email) invitation or moves an
// existing one to status. New invitations get a fresh token.
func (s *Store) UpsertInvitation(ctx context.Context, senderID, email, status string) (*models.Invitation, error) {
	inv, err := s.InvitationBySenderEmail(ctx, senderID, email)
	switch {
	case err == nil:
		if err := s.conn(ctx).Model(inv).Update("status", status).Error; err != nil {
			return nil, fmt.Errorf("update invitation: %w", err)
		}
		inv.Status = status
		return inv, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	inv = &models.Invitation{
		SenderID: senderID,
		Email:    email,
		Token:    uuid.NewString(),
		Status:   status,
	}
	if err := s.conn(ctx).Create(inv).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// InvitationByID loads an invitation with its sender.
func (s *Store) InvitationByID(ctx context.Context, id string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.conn(ctx).Preload("Sender").Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// InvitationByToken loads an invitation with its sender.
func (s *Store) InvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.conn(ctx).Preload("Sender").Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// AcceptInvitation marks a pending invitation accepted and links the sender
// and acceptor as mutual contacts in one database transaction. A concurrent
// accept loses with ErrConflict.
func (s *Store) AcceptInvitation(ctx context.Context, inv *models.Invitation, acceptorID string) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		res := db.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
			Update("status", models.InvitationAccepted)
		if res.Error != nil {
			return fmt.Errorf("accept invitation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := linkContacts(db, inv.SenderID, acceptorID); err != nil {
			return err
		}
		inv.Status = models.InvitationAccepted
		return nil
	})
}
