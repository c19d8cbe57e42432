package game

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Email is an in-game message. Mission briefings are delivered as email
// when their mission starts.
type Email struct {
	ID        string   `yaml:"id"`
	MissionID string   `yaml:"mission"`
	From      string   `yaml:"from"`
	Subject   string   `yaml:"subject"`
	Body      []string `yaml:"body"`
}

// MailStore is the static email content table.
type MailStore struct {
	byID      map[string]*Email
	byMission map[string][]*Email
}

// NewMailStore indexes the emails, rejecting duplicate IDs.
func NewMailStore(emails []Email) (*MailStore, error) {
	ms := &MailStore{
		byID:      make(map[string]*Email, len(emails)),
		byMission: make(map[string][]*Email),
	}
	for i := range emails {
		e := &emails[i]
		if e.ID == "" {
			return nil, fmt.Errorf("email %d: missing id", i)
		}
		if _, dup := ms.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate email id %q", e.ID)
		}
		ms.byID[e.ID] = e
		if e.MissionID != "" {
			ms.byMission[e.MissionID] = append(ms.byMission[e.MissionID], e)
		}
	}
	return ms, nil
}

// Get returns an email by ID, nil if unknown.
func (ms *MailStore) Get(id string) *Email {
	return ms.byID[id]
}

// ForMission returns the emails owned by a mission, in content order.
func (ms *MailStore) ForMission(missionID string) []*Email {
	return ms.byMission[missionID]
}

// mailContentFile is the YAML document shape for email content.
type mailContentFile struct {
	Emails []Email `yaml:"emails"`
}

// LoadMailFile reads email content YAML.
func LoadMailFile(path string) (*MailStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mail content: %w", err)
	}
	return LoadMailBytes(data)
}

// LoadMailBytes builds a mail store from raw YAML.
func LoadMailBytes(data []byte) (*MailStore, error) {
	var cf mailContentFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse mail content: %w", err)
	}
	return NewMailStore(cf.Emails)
}
