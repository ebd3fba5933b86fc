package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// MissingRefs returns the names in refNames that have no matching reference in
// h, in the order given.
func MissingRefs(h *sam.Header, refNames []string) []string {
	var missing []string
	for _, name := range refNames {
		if RefByName(h, name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
