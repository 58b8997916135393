package database

import (
	_ "embed"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed taxonomy.yaml
var taxonomySeed []byte

type seedIncidentType struct {
	Name     string             `yaml:"name"`
	Severity string             `yaml:"severity"`
	Children []seedIncidentType `yaml:"children"`
}

type seedDocument struct {
	Severities []struct {
		Name string `yaml:"name"`
		Rank int    `yaml:"rank"`
	} `yaml:"severities"`
	IncidentTypes []seedIncidentType `yaml:"incident_types"`
}

// SeedTaxonomy populates the severity scale and the incident classification
// tree from the embedded seed document. It is a no-op when the tables
// already contain rows, so it is safe to run on every startup.
func SeedTaxonomy(db *gorm.DB) error {
	var doc seedDocument
	if err := yaml.Unmarshal(taxonomySeed, &doc); err != nil {
		return fmt.Errorf("failed to parse taxonomy seed: %w", err)
	}

	var severityCount int64
	if err := db.Model(&Severity{}).Count(&severityCount).Error; err != nil {
		return err
	}
	if severityCount == 0 {
		for _, s := range doc.Severities {
			if err := db.Create(&Severity{Name: s.Name, Rank: s.Rank}).Error; err != nil {
				return fmt.Errorf("failed to seed severity %q: %w", s.Name, err)
			}
		}
		log.Printf("Seeded %d severities", len(doc.Severities))
	}

	var typeCount int64
	if err := db.Model(&IncidentType{}).Count(&typeCount).Error; err != nil {
		return err
	}
	if typeCount > 0 {
		return nil
	}

	severityByName := make(map[string]uint)
	var severities []Severity
	if err := db.Find(&severities).Error; err != nil {
		return err
	}
	for _, s := range severities {
		severityByName[s.Name] = s.ID
	}

	created := 0
	for _, node := range doc.IncidentTypes {
		n, err := seedIncidentTypeTree(db, node, nil, severityByName)
		if err != nil {
			return err
		}
		created += n
	}
	log.Printf("Seeded %d incident types", created)

	return nil
}

func seedIncidentTypeTree(db *gorm.DB, node seedIncidentType, parentID *uint, severityByName map[string]uint) (int, error) {
	severityID, ok := severityByName[node.Severity]
	if !ok {
		return 0, fmt.Errorf("incident type %q references unknown severity %q", node.Name, node.Severity)
	}

	record := IncidentType{
		Name:       node.Name,
		ParentID:   parentID,
		SeverityID: severityID,
	}
	if err := db.Create(&record).Error; err != nil {
		return 0, fmt.Errorf("failed to seed incident type %q: %w", node.Name, err)
	}

	created := 1
	for _, child := range node.Children {
		n, err := seedIncidentTypeTree(db, child, &record.ID, severityByName)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}
