package database

import (
	"testing"
)

func TestSeedTaxonomy(t *testing.T) {
	db := setupNumberTestDB(t)

	if err := SeedTaxonomy(db); err != nil {
		t.Fatalf("SeedTaxonomy failed: %v", err)
	}

	var severityCount, typeCount int64
	db.Model(&Severity{}).Count(&severityCount)
	db.Model(&IncidentType{}).Count(&typeCount)
	if severityCount == 0 {
		t.Error("expected severities to be seeded")
	}
	if typeCount == 0 {
		t.Error("expected incident types to be seeded")
	}

	var roots []IncidentType
	if err := db.Where("parent_id IS NULL").Find(&roots).Error; err != nil {
		t.Fatalf("failed to query root types: %v", err)
	}
	if len(roots) == 0 {
		t.Fatal("expected at least one root incident type")
	}

	// Running the seed again must not duplicate anything.
	if err := SeedTaxonomy(db); err != nil {
		t.Fatalf("second SeedTaxonomy failed: %v", err)
	}
	var severityCount2, typeCount2 int64
	db.Model(&Severity{}).Count(&severityCount2)
	db.Model(&IncidentType{}).Count(&typeCount2)
	if severityCount2 != severityCount || typeCount2 != typeCount {
		t.Errorf("seed is not idempotent: severities %d -> %d, types %d -> %d",
			severityCount, severityCount2, typeCount, typeCount2)
	}
}

func TestTopLevelIncidentType(t *testing.T) {
	db := setupNumberTestDB(t)

	severity := Severity{Name: "Test", Rank: 1}
	if err := db.Create(&severity).Error; err != nil {
		t.Fatalf("failed to create severity: %v", err)
	}

	root := IncidentType{Name: "Root", SeverityID: severity.ID}
	if err := db.Create(&root).Error; err != nil {
		t.Fatalf("failed to create root: %v", err)
	}
	child := IncidentType{Name: "Child", ParentID: &root.ID, SeverityID: severity.ID}
	if err := db.Create(&child).Error; err != nil {
		t.Fatalf("failed to create child: %v", err)
	}
	grandchild := IncidentType{Name: "Grandchild", ParentID: &child.ID, SeverityID: severity.ID}
	if err := db.Create(&grandchild).Error; err != nil {
		t.Fatalf("failed to create grandchild: %v", err)
	}

	top, err := TopLevelIncidentType(db, grandchild.ID)
	if err != nil {
		t.Fatalf("TopLevelIncidentType failed: %v", err)
	}
	if top.ID != root.ID {
		t.Errorf("expected top-level type %d, got %d", root.ID, top.ID)
	}

	top, err = TopLevelIncidentType(db, root.ID)
	if err != nil {
		t.Fatalf("TopLevelIncidentType on root failed: %v", err)
	}
	if top.ID != root.ID {
		t.Errorf("root should be its own top-level type, got %d", top.ID)
	}
}

func TestAncestorChain(t *testing.T) {
	db := setupNumberTestDB(t)

	severity := Severity{Name: "Test", Rank: 1}
	if err := db.Create(&severity).Error; err != nil {
		t.Fatalf("failed to create severity: %v", err)
	}
	root := IncidentType{Name: "Root", SeverityID: severity.ID}
	db.Create(&root)
	child := IncidentType{Name: "Child", ParentID: &root.ID, SeverityID: severity.ID}
	db.Create(&child)

	chain, err := AncestorChain(db, child.ID)
	if err != nil {
		t.Fatalf("AncestorChain failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(chain))
	}
	if chain[0].ID != child.ID || chain[1].ID != root.ID {
		t.Errorf("expected leaf-first chain [%d %d], got [%d %d]",
			child.ID, root.ID, chain[0].ID, chain[1].ID)
	}
}

func TestTopLevelIncidentType_CycleGuard(t *testing.T) {
	db := setupNumberTestDB(t)

	severity := Severity{Name: "Test", Rank: 1}
	db.Create(&severity)
	a := IncidentType{Name: "A", SeverityID: severity.ID}
	db.Create(&a)
	b := IncidentType{Name: "B", ParentID: &a.ID, SeverityID: severity.ID}
	db.Create(&b)
	// Corrupt the tree: A's parent is B.
	if err := db.Model(&a).Update("parent_id", b.ID).Error; err != nil {
		t.Fatalf("failed to corrupt tree: %v", err)
	}

	if _, err := TopLevelIncidentType(db, a.ID); err == nil {
		t.Error("expected an error on a cyclic taxonomy")
	}
}
