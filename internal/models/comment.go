package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const MessageMaxLength = 255

// Comment is a node in a per-book discussion tree.
type Comment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Message         string     `gorm:"type:text;not null" json:"message"`
	PublicationDate time.Time  `gorm:"autoCreateTime;index" json:"publication_date"`
	OwnerID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner           *User      `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT;" json:"owner,omitempty"`
	ContentID       uint       `gorm:"not null;index" json:"content_id"`
	Content         *Book      `gorm:"foreignKey:ContentID;constraint:OnDelete:RESTRICT;" json:"-"`
	ParentID        *uint      `gorm:"index" json:"parent_id,omitempty"`
	Parent          *Comment   `gorm:"foreignKey:ParentID;constraint:OnDelete:RESTRICT;" json:"-"`
	Children        []*Comment `gorm:"-" json:"-"`
}

// LinkChildren wires Children for every comment in the slice and returns the roots.
// Siblings end up in publication order regardless of input order.
func LinkChildren(comments []*Comment) []*Comment {
	byID := make(map[uint]*Comment, len(comments))
	for _, c := range comments {
		c.Children = nil
		byID[c.ID] = c
	}

	var roots []*Comment
	for _, c := range comments {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		parent, ok := byID[*c.ParentID]
		if !ok {
			roots = append(roots, c)
			continue
		}
		parent.Children = append(parent.Children, c)
	}

	for _, c := range comments {
		sortByPublication(c.Children)
	}
	sortByPublication(roots)
	return roots
}

// Thread returns the comment's descendants depth-first, each node before its
// own children, optionally starting with the comment itself.
func (c *Comment) Thread(includeSelf bool) []*Comment {
	var out []*Comment
	if includeSelf {
		out = append(out, c)
	}
	var walk func(n *Comment)
	walk = func(n *Comment) {
		for _, child := range n.Children {
			if child == c {
				continue
			}
			out = append(out, child)
			walk(child)
		}
	}
	walk(c)
	return out
}

func sortByPublication(cs []*Comment) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].PublicationDate.Equal(cs[j].PublicationDate) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].PublicationDate.Before(cs[j].PublicationDate)
	})
}
