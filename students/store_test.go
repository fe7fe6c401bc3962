package students

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

func testStudent(rollNo string, target *models.Label) *Student {
	return &Student{
		RollNo: rollNo,
		Attributes: features.Record{
			features.AgeAttribute: 21.0,
			"Debtor":              1.0,
		},
		Target: target,
	}
}

// TestInMemoryStoreGet verifies stored students round trip by roll number
func TestInMemoryStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if err := store.Put(ctx, testStudent("123456", labelPtr(models.Dropout))); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, "123456")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Attributes["Debtor"] != 1.0 || *got.Target != models.Dropout {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	if rec := got.Record(); rec[features.RollNoAttribute] != "123456" {
		t.Errorf("Record() roll number = %v", rec[features.RollNoAttribute])
	}

	// Mutating the returned copy must not change the store.
	got.Attributes["Debtor"] = 0.0
	again, _ := store.Get(ctx, "123456")
	if again.Attributes["Debtor"] != 1.0 {
		t.Error("Get() should return a copy")
	}
}

func TestInMemoryStoreNotFound(t *testing.T) {
	_, err := NewInMemoryStore().Get(context.Background(), "999999")
	if !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestInMemoryStorePutPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if err := store.Put(ctx, testStudent("100001", nil)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	first, _ := store.Get(ctx, "100001")

	time.Sleep(2 * time.Millisecond)
	if err := store.Put(ctx, testStudent("100001", labelPtr(models.Graduate))); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	second, _ := store.Get(ctx, "100001")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed from %v to %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("UpdatedAt should advance")
	}
	if !second.Labeled() {
		t.Error("replacement should carry the new target")
	}
}

func TestInMemoryStoreListLabeled(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.PutMany(ctx, []*Student{
		testStudent("300000", labelPtr(models.Dropout)),
		testStudent("100000", labelPtr(models.Graduate)),
		testStudent("200000", nil),
	})
	if err != nil {
		t.Fatalf("PutMany() failed: %v", err)
	}

	labeled, err := store.ListLabeled(ctx)
	if err != nil {
		t.Fatalf("ListLabeled() failed: %v", err)
	}
	if len(labeled) != 2 {
		t.Fatalf("ListLabeled() returned %d students, want 2", len(labeled))
	}
	if labeled[0].RollNo != "100000" || labeled[1].RollNo != "300000" {
		t.Errorf("ListLabeled() order = %s, %s", labeled[0].RollNo, labeled[1].RollNo)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	labeled, _ = store.ListLabeled(ctx)
	if len(labeled) != 0 {
		t.Errorf("ListLabeled() after DeleteAll() = %d", len(labeled))
	}
}

func TestInMemoryStorePutManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.PutMany(ctx, []*Student{
		testStudent("100000", nil),
		testStudent("not-a-number", nil),
	})
	if !errors.Is(err, ErrInvalidRollNo) {
		t.Fatalf("expected ErrInvalidRollNo, got %v", err)
	}
	if _, err := store.Get(ctx, "100000"); !errors.Is(err, ErrStudentNotFound) {
		t.Error("no student should be written when validation fails")
	}
}

func TestValidateRollNo(t *testing.T) {
	testCases := []struct {
		in      string
		wantErr bool
	}{
		{"123456", false},
		{"1", false},
		{"", true},
		{"12a456", true},
		{"-12", true},
		{"1234567890123", true},
	}

	for _, tc := range testCases {
		err := ValidateRollNo(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateRollNo(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestPutRejectsEmptyAttributes(t *testing.T) {
	err := NewInMemoryStore().Put(context.Background(), &Student{RollNo: "123"})
	if err == nil {
		t.Error("expected error for a student without attributes")
	}
}
