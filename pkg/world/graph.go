// Package world holds the static entity graph the game is played against:
// hosts, the organizations that own them, and the contacts attached to
// those organizations. The graph is populated once at startup and is
// read-only afterwards; per-player visibility is tracked separately by
// Discovery.
package world

import (
	"fmt"
	"sort"
	"strings"
)

// File is a single entry in a host's simulated filesystem.
type File struct {
	Name      string   `yaml:"name"`
	Content   []string `yaml:"content"`
	Encrypted bool     `yaml:"encrypted"`
	// CrackSeconds is how long the cracking tool runs against this file.
	// Zero means the host's default applies.
	CrackSeconds int `yaml:"crack_seconds"`
}

// Host is a machine on the simulated network.
type Host struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	IP             string   `yaml:"ip"`
	OrganizationID string   `yaml:"organization"`
	Services       []string `yaml:"services"`
	SecurityLevel  int      `yaml:"security_level"`
	Files          []File   `yaml:"files"`
}

// FindFile returns the named file on the host, nil if absent.
func (h *Host) FindFile(name string) *File {
	for i := range h.Files {
		if h.Files[i].Name == name {
			return &h.Files[i]
		}
	}
	return nil
}

// Organization owns hosts and employs contacts.
type Organization struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Sector     string   `yaml:"sector"`
	HostIDs    []string `yaml:"hosts"`
	ContactIDs []string `yaml:"contacts"`
}

// Contact is a person attached to an organization.
type Contact struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Title          string `yaml:"title"`
	Email          string `yaml:"email"`
	OrganizationID string `yaml:"organization"`
}

// Registry is the loaded entity graph. All lookups are by ID; FindHostByIP
// resolves the simulated addresses the player types. Methods are safe for
// concurrent use because the maps are never written after Load.
type Registry struct {
	hosts    map[string]*Host
	orgs     map[string]*Organization
	contacts map[string]*Contact
	byIP     map[string]string // ip -> host id
}

// NewRegistry builds a registry from entity slices, verifying referential
// integrity of the cross-links.
func NewRegistry(hosts []Host, orgs []Organization, contacts []Contact) (*Registry, error) {
	r := &Registry{
		hosts:    make(map[string]*Host, len(hosts)),
		orgs:     make(map[string]*Organization, len(orgs)),
		contacts: make(map[string]*Contact, len(contacts)),
		byIP:     make(map[string]string, len(hosts)),
	}
	for i := range hosts {
		h := &hosts[i]
		if h.ID == "" {
			return nil, fmt.Errorf("host %d: missing id", i)
		}
		if _, dup := r.hosts[h.ID]; dup {
			return nil, fmt.Errorf("duplicate host id %q", h.ID)
		}
		r.hosts[h.ID] = h
		if h.IP != "" {
			if prev, dup := r.byIP[h.IP]; dup {
				return nil, fmt.Errorf("hosts %q and %q share ip %s", prev, h.ID, h.IP)
			}
			r.byIP[h.IP] = h.ID
		}
	}
	for i := range orgs {
		o := &orgs[i]
		if o.ID == "" {
			return nil, fmt.Errorf("organization %d: missing id", i)
		}
		if _, dup := r.orgs[o.ID]; dup {
			return nil, fmt.Errorf("duplicate organization id %q", o.ID)
		}
		r.orgs[o.ID] = o
	}
	for i := range contacts {
		c := &contacts[i]
		if c.ID == "" {
			return nil, fmt.Errorf("contact %d: missing id", i)
		}
		if _, dup := r.contacts[c.ID]; dup {
			return nil, fmt.Errorf("duplicate contact id %q", c.ID)
		}
		r.contacts[c.ID] = c
	}

	// Cross-link integrity.
	for _, h := range r.hosts {
		if h.OrganizationID != "" {
			if _, ok := r.orgs[h.OrganizationID]; !ok {
				return nil, fmt.Errorf("host %q references unknown organization %q", h.ID, h.OrganizationID)
			}
		}
	}
	for _, o := range r.orgs {
		for _, hid := range o.HostIDs {
			if _, ok := r.hosts[hid]; !ok {
				return nil, fmt.Errorf("organization %q references unknown host %q", o.ID, hid)
			}
		}
		for _, cid := range o.ContactIDs {
			if _, ok := r.contacts[cid]; !ok {
				return nil, fmt.Errorf("organization %q references unknown contact %q", o.ID, cid)
			}
		}
	}
	for _, c := range r.contacts {
		if c.OrganizationID != "" {
			if _, ok := r.orgs[c.OrganizationID]; !ok {
				return nil, fmt.Errorf("contact %q references unknown organization %q", c.ID, c.OrganizationID)
			}
		}
	}
	return r, nil
}

// GetHost returns the host with the given ID, nil if unknown.
func (r *Registry) GetHost(id string) *Host {
	return r.hosts[id]
}

// GetOrganization returns the organization with the given ID, nil if unknown.
func (r *Registry) GetOrganization(id string) *Organization {
	return r.orgs[id]
}

// GetContact returns the contact with the given ID, nil if unknown.
func (r *Registry) GetContact(id string) *Contact {
	return r.contacts[id]
}

// FindHostByIP resolves a simulated IP address to its host, nil if no
// host claims the address.
func (r *Registry) FindHostByIP(ip string) *Host {
	id, ok := r.byIP[ip]
	if !ok {
		return nil
	}
	return r.hosts[id]
}

// ResolveHost accepts either a host ID or an IP and returns the host.
func (r *Registry) ResolveHost(ref string) *Host {
	ref = strings.TrimSpace(ref)
	if h := r.hosts[ref]; h != nil {
		return h
	}
	return r.FindHostByIP(ref)
}

// Hosts returns all hosts sorted by ID.
func (r *Registry) Hosts() []*Host {
	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Organizations returns all organizations sorted by ID.
func (r *Registry) Organizations() []*Organization {
	out := make([]*Organization, 0, len(r.orgs))
	for _, o := range r.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HostCount returns the number of hosts in the graph.
func (r *Registry) HostCount() int { return len(r.hosts) }
