package community

import "time"

// Project is a student-posted project looking for collaborators.
type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    *string   `json:"category,omitempty"`
	SkillsNeed  []string  `json:"skillsNeeded,omitempty"`
	IsOpen      bool      `json:"isOpen"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Startup is a startup posting looking for students.
type Startup struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Pitch       string    `json:"pitch"`
	Industry    *string   `json:"industry,omitempty"`
	Website     *string   `json:"website,omitempty"`
	Stage       *string   `json:"stage,omitempty"`
	IsHiring    bool      `json:"isHiring"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is one direct message between two users.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Conversation summarizes the latest exchange with one peer.
type Conversation struct {
	PeerID      string    `json:"peerId"`
	LastMessage string    `json:"lastMessage"`
	LastAt      time.Time `json:"lastAt"`
	Unread      int       `json:"unread"`
}
