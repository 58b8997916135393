package database

import (
	"fmt"

	"gorm.io/gorm"
)

// maxTaxonomyDepth bounds ancestor walks so a corrupted tree with a parent
// cycle cannot loop forever.
const maxTaxonomyDepth = 32

// TopLevelIncidentType walks the parent chain of the given incident type and
// returns its root node. A node without a parent is its own top-level type.
func TopLevelIncidentType(db *gorm.DB, incidentTypeID uint) (*IncidentType, error) {
	var node IncidentType
	if err := db.First(&node, incidentTypeID).Error; err != nil {
		return nil, err
	}

	for depth := 0; node.ParentID != nil; depth++ {
		if depth >= maxTaxonomyDepth {
			return nil, fmt.Errorf("incident type %d exceeds maximum taxonomy depth", incidentTypeID)
		}
		var parent IncidentType
		if err := db.First(&parent, *node.ParentID).Error; err != nil {
			return nil, err
		}
		node = parent
	}

	return &node, nil
}

// AncestorChain returns the incident type and its ancestors, leaf first,
// root last.
func AncestorChain(db *gorm.DB, incidentTypeID uint) ([]IncidentType, error) {
	var chain []IncidentType

	var node IncidentType
	if err := db.First(&node, incidentTypeID).Error; err != nil {
		return nil, err
	}
	chain = append(chain, node)

	for depth := 0; node.ParentID != nil; depth++ {
		if depth >= maxTaxonomyDepth {
			return nil, fmt.Errorf("incident type %d exceeds maximum taxonomy depth", incidentTypeID)
		}
		var parent IncidentType
		if err := db.First(&parent, *node.ParentID).Error; err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		node = parent
	}

	return chain, nil
}
