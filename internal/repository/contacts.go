package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/mensajemagico/backend/internal/types"
)

// contactModel maps to the contacts table.
type contactModel struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"index:idx_contacts_user"`
	Name              string
	Relationship      string
	GrammaticalGender string
	RelationalHealth  float64
	SnoozeCount       int
	LastInteraction   time.Time
	// Guardian holds the learned style profile as JSONB.
	Guardian  json.RawMessage `gorm:"type:jsonb;column:guardian_metadata"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (contactModel) TableName() string {
	return "contacts"
}

// historyModel maps to the contact_history table, one row per sent message.
type historyModel struct {
	ID              string `gorm:"primaryKey"`
	ContactID       string `gorm:"index:idx_history_contact"`
	Date            time.Time
	Occasion        string
	Tone            string
	Content         string
	SentimentScore  float64
	WasEdited       bool
	OriginalContent string
	IsUsed          bool
	// Embedding stores the content vector for near-duplicate checks.
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
}

func (historyModel) TableName() string {
	return "contact_history"
}

// ContactRepo accesses contact and history data.
type ContactRepo struct {
	db *gorm.DB
}

func NewContactRepo(db *gorm.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// GetContact loads a contact with its recent history, oldest first.
// Returns (nil, nil) when the contact does not exist.
func (r *ContactRepo) GetContact(ctx context.Context, userID, contactID string) (*types.Contact, error) {
	var record contactModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", contactID, userID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}

	var rows []historyModel
	if err := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query contact history: %w", err)
	}

	contact := contactFromModel(record)
	for _, row := range rows {
		contact.History = append(contact.History, historyFromModel(row))
	}
	return &contact, nil
}

// SaveContact upserts the contact row, inserts any new history entries, and
// trims rows that fell off the in-memory window.
func (r *ContactRepo) SaveContact(ctx context.Context, contact *types.Contact) error {
	guardianJSON, err := json.Marshal(contact.Guardian)
	if err != nil {
		return fmt.Errorf("failed to encode guardian metadata: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := contactModel{
			ID:                contact.ID,
			UserID:            contact.UserID,
			Name:              contact.Name,
			Relationship:      contact.Relationship,
			GrammaticalGender: contact.GrammaticalGender,
			RelationalHealth:  contact.RelationalHealth,
			SnoozeCount:       contact.SnoozeCount,
			LastInteraction:   contact.LastInteraction,
			Guardian:          guardianJSON,
			CreatedAt:         contact.CreatedAt,
			UpdatedAt:         contact.UpdatedAt,
		}
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save contact: %w", err)
		}

		keep := make([]string, 0, len(contact.History))
		for i := range contact.History {
			entry := &contact.History[i]
			if entry.ID == "" {
				entry.ID = uuid.NewString()
				var vector *pgvector.Vector
				if len(entry.Embedding) > 0 {
					v := pgvector.NewVector(entry.Embedding)
					vector = &v
				}
				row := historyModel{
					ID:              entry.ID,
					ContactID:       contact.ID,
					Date:            entry.Date,
					Occasion:        entry.Occasion,
					Tone:            entry.Tone,
					Content:         entry.Content,
					SentimentScore:  entry.SentimentScore,
					WasEdited:       entry.WasEdited,
					OriginalContent: entry.OriginalContent,
					IsUsed:          entry.IsUsed,
					Embedding:       vector,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to insert history entry: %w", err)
				}
			}
			keep = append(keep, entry.ID)
		}

		if len(keep) > 0 {
			if err := tx.Where("contact_id = ? AND id NOT IN ?", contact.ID, keep).
				Delete(&historyModel{}).Error; err != nil {
				return fmt.Errorf("failed to trim contact history: %w", err)
			}
		}
		return nil
	})
}

// SimilarHistoryExists reports whether the contact already has a stored
// message whose embedding is at least minSimilarity close by cosine distance.
func (r *ContactRepo) SimilarHistoryExists(ctx context.Context, contactID string, embedding []float32, minSimilarity float64) (bool, error) {
	if len(embedding) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM contact_history
		WHERE contact_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2) >= $3`,
		contactID, pgvector.NewVector(embedding), minSimilarity,
	).Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to search similar history: %w", err)
	}
	return count > 0, nil
}

func contactFromModel(model contactModel) types.Contact {
	var meta types.GuardianMetadata
	if len(model.Guardian) > 0 {
		_ = json.Unmarshal(model.Guardian, &meta)
	}
	return types.Contact{
		ID:                model.ID,
		UserID:            model.UserID,
		Name:              model.Name,
		Relationship:      model.Relationship,
		GrammaticalGender: model.GrammaticalGender,
		RelationalHealth:  model.RelationalHealth,
		SnoozeCount:       model.SnoozeCount,
		LastInteraction:   model.LastInteraction,
		Guardian:          meta,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

func historyFromModel(model historyModel) types.HistoryEntry {
	entry := types.HistoryEntry{
		ID:              model.ID,
		Date:            model.Date,
		Occasion:        model.Occasion,
		Tone:            model.Tone,
		Content:         model.Content,
		SentimentScore:  model.SentimentScore,
		WasEdited:       model.WasEdited,
		OriginalContent: model.OriginalContent,
		IsUsed:          model.IsUsed,
	}
	if model.Embedding != nil {
		entry.Embedding = model.Embedding.Slice()
	}
	return entry
}
