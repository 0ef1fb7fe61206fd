package matching

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Keys are the normalized identity signals of one lead.
type Keys struct {
	Phone       string
	Handles     []string
	IdentityKey string
	Company     string
	City        string
}

// KeysFor derives the match keys of a lead from its raw attributes.
func KeysFor(lead *models.Lead) Keys {
	return Keys{
		Phone:       normalizers.NormalizePhone(lead.Phone),
		Handles:     normalizers.Handles(lead.FacebookURL, lead.InstagramURL, lead.LinkedInURL),
		IdentityKey: normalizers.IdentityKey(lead.CompanyName, lead.City),
		Company:     normalizers.Normalize(lead.CompanyName),
		City:        normalizers.Normalize(lead.City),
	}
}

// Matchable reports whether the lead carries a phone or an identity key.
func (k Keys) Matchable() bool {
	return k.Phone != "" || k.IdentityKey != ""
}

// Index is an in-memory lookup of leads by their match keys. It is owned by a
// single import run and is not safe for concurrent use.
type Index struct {
	leads    map[string]*models.Lead
	order    []string
	byPhone  map[string]string
	byHandle map[string]string
	byKey    map[string]string
	byCity   map[string][]string
}

func NewIndex(leads []models.Lead) *Index {
	idx := &Index{
		leads:    make(map[string]*models.Lead, len(leads)),
		byPhone:  make(map[string]string, len(leads)),
		byHandle: make(map[string]string),
		byKey:    make(map[string]string, len(leads)),
		byCity:   make(map[string][]string),
	}
	for i := range leads {
		idx.Add(&leads[i])
	}
	return idx
}

// Add registers a copy of lead, or refreshes the stored copy when the id is known.
// The first lead registered under a key keeps it.
func (idx *Index) Add(lead *models.Lead) {
	stored := *lead
	if _, ok := idx.leads[stored.ID]; !ok {
		idx.order = append(idx.order, stored.ID)
	}
	idx.leads[stored.ID] = &stored

	keys := KeysFor(&stored)
	register(idx.byPhone, keys.Phone, stored.ID)
	for _, h := range keys.Handles {
		register(idx.byHandle, h, stored.ID)
	}
	register(idx.byKey, keys.IdentityKey, stored.ID)

	if keys.City != "" && keys.Company != "" {
		ids := idx.byCity[keys.City]
		for _, id := range ids {
			if id == stored.ID {
				return
			}
		}
		idx.byCity[keys.City] = append(ids, stored.ID)
	}
}

func register(m map[string]string, key, id string) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = id
	}
}

// Get returns a copy of the lead with the given id.
func (idx *Index) Get(id string) (models.Lead, bool) {
	lead, ok := idx.leads[id]
	if !ok {
		return models.Lead{}, false
	}
	return *lead, true
}

func (idx *Index) Len() int {
	return len(idx.leads)
}

// Leads returns copies of the indexed leads in registration order.
func (idx *Index) Leads() []models.Lead {
	leads := make([]models.Lead, 0, len(idx.order))
	for _, id := range idx.order {
		leads = append(leads, *idx.leads[id])
	}
	return leads
}
