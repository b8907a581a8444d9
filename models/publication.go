package models

import (
	"time"
)

type PublicationType string

const (
	TypeArticle   PublicationType = "article"
	TypeEditorial PublicationType = "editorial"
)

// PublicationState is derived from the flags and timestamps, never stored.
type PublicationState string

const (
	StateDraft     PublicationState = "draft"
	StateApproved  PublicationState = "approved"
	StatePublished PublicationState = "published"
	StateHidden    PublicationState = "hidden"
)

type Publication struct {
	ID              uint            `json:"id" gorm:"primarykey"`
	PublicationType PublicationType `json:"publication_type" gorm:"size:16;index;not null"`
	Title           string          `json:"title" gorm:"size:128;not null"`
	Slug            string          `json:"slug" gorm:"size:128;uniqueIndex;not null"`
	Content         string          `json:"content" gorm:"type:text"`
	Thumbnail       string          `json:"-"`
	ThumbnailURL    *string         `json:"thumbnail_url" gorm:"-"`
	Hide            bool            `json:"hide" gorm:"index;default:false"`
	Published       bool            `json:"published" gorm:"index;default:false"`
	PublishedOn     *time.Time      `json:"published_on" gorm:"index"`
	ApprovedByID    *uint           `json:"approved_by"`
	ApprovedBy      *User           `json:"-" gorm:"foreignKey:ApprovedByID"`
	ApprovedOn      *time.Time      `json:"approved_on"`
	CreatedByID     uint            `json:"-" gorm:"not null;index"`
	CreatedBy       User            `json:"created_by" gorm:"foreignKey:CreatedByID"`
	Authors         []User          `json:"authors" gorm:"many2many:publication_authors;"`
	CreatedAt       time.Time       `json:"created_on"`
	UpdatedAt       time.Time       `json:"updated_on"`
}

// PublicationAuthor is the join row between a publication and one of its authors.
type PublicationAuthor struct {
	PublicationID uint      `json:"publication_id" gorm:"primaryKey"`
	UserID        uint      `json:"user_id" gorm:"primaryKey"`
	CreatedAt     time.Time `json:"created_at"`
}

func (p *Publication) State() PublicationState {
	switch {
	case p.Hide:
		return StateHidden
	case p.Published:
		return StatePublished
	case p.ApprovedByID != nil:
		return StateApproved
	default:
		return StateDraft
	}
}

// IsPubliclyVisible reports whether anonymous readers may see the publication at now.
// Publications scheduled for the future stay invisible until their publish time.
func (p *Publication) IsPubliclyVisible(now time.Time) bool {
	if p.Hide || !p.Published || p.PublishedOn == nil {
		return false
	}
	return !p.PublishedOn.After(now)
}

// IsScheduled reports a publication whose publish time is still in the future.
func (p *Publication) IsScheduled(now time.Time) bool {
	return p.Published && p.PublishedOn != nil && p.PublishedOn.After(now)
}

// HasAuthor reports whether userID created or co-authors the publication.
func (p *Publication) HasAuthor(userID uint) bool {
	if p.CreatedByID == userID {
		return true
	}
	for _, a := range p.Authors {
		if a.ID == userID {
			return true
		}
	}
	return false
}

func (p *Publication) AuthorIDs() []uint {
	ids := make([]uint, 0, len(p.Authors))
	for _, a := range p.Authors {
		ids = append(ids, a.ID)
	}
	return ids
}

// Approve moves a draft to Approved. approved_on is stamped exactly once.
func (p *Publication) Approve(editorID uint, now time.Time) error {
	if p.Hide {
		return ErrPublicationHidden
	}
	if p.ApprovedByID != nil {
		return ErrAlreadyApproved
	}
	p.ApprovedByID = &editorID
	p.ApprovedOn = &now
	return nil
}

// Publish marks approved content published at the given time, which may lie in the future.
func (p *Publication) Publish(at time.Time) error {
	if p.Hide {
		return ErrPublicationHidden
	}
	if p.ApprovedByID == nil {
		return ErrNotApproved
	}
	if p.Published {
		return ErrAlreadyPublished
	}
	p.Published = true
	p.PublishedOn = &at
	return nil
}

// Unpublish withdraws the publication; approval is kept.
func (p *Publication) Unpublish() error {
	if p.Hide {
		return ErrPublicationHidden
	}
	p.Published = false
	p.PublishedOn = nil
	return nil
}

// MarkHidden soft-deletes the publication. It returns false when it was already hidden.
func (p *Publication) MarkHidden() bool {
	if p.Hide {
		return false
	}
	p.Hide = true
	return true
}
