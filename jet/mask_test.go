package jet

import "testing"

func TestTriangularMask(t *testing.T) {
	mask, err := TriangularMask([]int{0, 1, 3, 5}, 3)
	if err != nil {
		t.Fatalf("Failed to build mask: %v", err)
	}

	shape := mask.Shape()
	if shape[0] != 4 || shape[1] != 3 || shape[2] != 1 {
		t.Fatalf("Unexpected mask shape: %v", shape)
	}

	counts := MaskCounts(mask)
	expected := []int{0, 1, 3, 3} // 5 is clipped to the jet size
	for i, want := range expected {
		if counts[i] != want {
			t.Errorf("Jet %d: expected %d active particles, got %d", i, want, counts[i])
		}
	}
}

func TestTriangularMaskContiguous(t *testing.T) {
	mask, err := TriangularMask([]int{2}, 4)
	if err != nil {
		t.Fatalf("Failed to build mask: %v", err)
	}
	data := mask.Data().([]float32)
	expected := []float32{1, 1, 0, 0}
	for i, want := range expected {
		if data[i] != want {
			t.Errorf("Slot %d: expected %v, got %v", i, want, data[i])
		}
	}
}

func TestTriangularMaskExactMultiplicities(t *testing.T) {
	// 50 jets with multiplicities below the jet size must keep their
	// multiplicity exactly.
	jetSize := 30
	nums := make([]int, 50)
	for i := range nums {
		nums[i] = i % (jetSize + 1)
	}
	mask, err := TriangularMask(nums, jetSize)
	if err != nil {
		t.Fatalf("Failed to build mask: %v", err)
	}
	for i, count := range MaskCounts(mask) {
		if count != nums[i] {
			t.Errorf("Jet %d: expected %d active particles, got %d", i, nums[i], count)
		}
	}
}

func TestTriangularMaskInvalidJetSize(t *testing.T) {
	if _, err := TriangularMask([]int{1}, 0); err == nil {
		t.Fatal("Expected error for non-positive jet size")
	}
}
