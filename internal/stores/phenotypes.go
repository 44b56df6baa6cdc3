package stores

import (
	"encoding/json"
	"io"
	"os"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// Stratification identifies a phenotype's ancestry/sex slice.
type Stratification struct {
	Ancestry string `json:"ancestry,omitempty"`
	Sex      string `json:"sex,omitempty"`
}

// Phenotype is one entry of phenotypes.json.
type Phenotype struct {
	Phenocode      string          `json:"phenocode"`
	Category       string          `json:"category,omitempty"`
	Phenostring    string          `json:"phenostring,omitempty"`
	AssocFiles     string          `json:"assoc_files,omitempty"`
	NumSamples     *int            `json:"num_samples,omitempty"`
	NumCases       *int            `json:"num_cases,omitempty"`
	NumControls    *int            `json:"num_controls,omitempty"`
	Interaction    string         `json:"interaction,omitempty"`
	Stratification Stratification `json:"stratification,omitempty"`
}

// PhenoStore holds the full phenotype catalog, loaded once from
// phenotypes.json and split into regular phenotypes and interaction
// phenotypes the way create_phenotypes_list does.
type PhenoStore struct {
	phenotypes  []Phenotype
	interaction []Phenotype
}

// LoadPhenoStore reads phenotypes.json and partitions its entries: any
// entry with a non-empty "interaction" field goes to the interaction list,
// everything else is a regular phenotype.
func LoadPhenoStore(path string) (*PhenoStore, error) {
	const op = apperr.Op("stores.LoadPhenoStore")
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening phenotypes.json", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.WrapMsg(op, "reading phenotypes.json", err)
	}
	var entries []Phenotype
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, apperr.WrapMsg(op, "decoding phenotypes.json", err)
	}

	store := &PhenoStore{}
	for _, p := range entries {
		if p.Interaction != "" {
			store.interaction = append(store.interaction, p)
		} else {
			store.phenotypes = append(store.phenotypes, p)
		}
	}
	return store, nil
}

// AllPhenoNames returns a phenocode -> {phenostring, feature} summary of
// every regular phenotype, for the unified autocomplete/listing surface.
func (s *PhenoStore) AllPhenoNames() map[string]struct {
	Phenostring string
	Feature     string
} {
	out := make(map[string]struct {
		Phenostring string
		Feature     string
	}, len(s.phenotypes))
	for _, p := range s.phenotypes {
		out[p.Phenocode] = struct {
			Phenostring string
			Feature     string
		}{Phenostring: p.Phenostring, Feature: "pheno"}
	}
	return out
}

// Phenotypes returns every regular phenotype, or only those matching
// phenocode when it's non-empty.
func (s *PhenoStore) Phenotypes(phenocode string) []Phenotype {
	if phenocode == "" {
		return s.phenotypes
	}
	var out []Phenotype
	for _, p := range s.phenotypes {
		if p.Phenocode == phenocode {
			out = append(out, p)
		}
	}
	return out
}

// InteractionPhenotypes returns every interaction phenotype, or only those
// matching phenocode when it's non-empty.
func (s *PhenoStore) InteractionPhenotypes(phenocode string) []Phenotype {
	if phenocode == "" {
		return s.interaction
	}
	var out []Phenotype
	for _, p := range s.interaction {
		if p.Phenocode == phenocode {
			out = append(out, p)
		}
	}
	return out
}
