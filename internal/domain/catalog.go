package domain

import "strings"

// NationwideRegion marks rebates available in every state and territory.
const NationwideRegion = "All states/territories"

// Rebate is a government energy rebate or concession program.
type Rebate struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Level          string         `json:"level" yaml:"level"`
	Benefit        string         `json:"benefit" yaml:"benefit"`
	Region         string         `json:"region" yaml:"region"`
	Eligibility    map[string]any `json:"eligibility_criteria,omitempty" yaml:"eligibility_criteria,omitempty"`
	ApplicationURL string         `json:"application_url,omitempty" yaml:"application_url,omitempty"`
}

func (r Rebate) RecordID() string { return r.ID }

func (r Rebate) Document() Document {
	doc := Document{
		"id":      r.ID,
		"name":    r.Name,
		"level":   r.Level,
		"benefit": r.Benefit,
		"region":  r.Region,
	}
	if len(r.Eligibility) > 0 {
		doc["eligibility_criteria"] = r.Eligibility
	}
	if r.ApplicationURL != "" {
		doc["application_url"] = r.ApplicationURL
	}
	return doc
}

// Contractor is an installer or service provider listed in the directory.
type Contractor struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Services     []string `json:"services" yaml:"services"`
	Region       string   `json:"region" yaml:"region"`
	ContactEmail string   `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	Website      string   `json:"website,omitempty" yaml:"website,omitempty"`
}

func (c Contractor) RecordID() string { return c.ID }

func (c Contractor) Document() Document {
	services := make([]any, 0, len(c.Services))
	for _, s := range c.Services {
		services = append(services, s)
	}
	doc := Document{
		"id":       c.ID,
		"name":     c.Name,
		"services": services,
		"region":   c.Region,
	}
	if c.ContactEmail != "" {
		doc["contact_email"] = c.ContactEmail
	}
	if c.Website != "" {
		doc["website"] = c.Website
	}
	return doc
}

// UserRecord is a seeded user profile.
type UserRecord struct {
	ID      string         `yaml:"id"`
	Profile map[string]any `yaml:"profile"`
}

func (u UserRecord) RecordID() string { return u.ID }

func (u UserRecord) Document() Document {
	return Document(u.Profile)
}

// MatchesRegion reports whether a rebate or contractor region applies to the
// requested region. An empty request matches everything.
func MatchesRegion(recordRegion, requested string) bool {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return true
	}
	if strings.EqualFold(recordRegion, NationwideRegion) {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(recordRegion), requested)
}

// RebateFromDocument maps a stored rebate document back to a Rebate.
func RebateFromDocument(d Document) Rebate {
	r := Rebate{
		ID:             d.String("id"),
		Name:           d.String("name"),
		Level:          d.String("level"),
		Benefit:        d.String("benefit"),
		Region:         d.String("region"),
		ApplicationURL: d.String("application_url"),
	}
	if m, ok := d["eligibility_criteria"].(map[string]any); ok {
		r.Eligibility = m
	}
	return r
}

// ContractorFromDocument maps a stored contractor document back to a Contractor.
func ContractorFromDocument(d Document) Contractor {
	return Contractor{
		ID:           d.String("id"),
		Name:         d.String("name"),
		Services:     d.Strings("services"),
		Region:       d.String("region"),
		ContactEmail: d.String("contact_email"),
		Website:      d.String("website"),
	}
}

// OffersService reports whether the contractor lists service
// (case-insensitive). An empty service matches everything.
func (c Contractor) OffersService(service string) bool {
	service = strings.TrimSpace(service)
	if service == "" {
		return true
	}
	for _, s := range c.Services {
		if strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}
