package e2e

import (
	"testing"
)

var e2eSplits = []string{"train", "test", "val"}

func TestBuildCorpus_ImageCount(t *testing.T) {
	c := BuildCorpus(e2eSplits, 12)
	if c.TotalImages != 36 {
		t.Errorf("expected 36 images, got %d", c.TotalImages)
	}
	for _, split := range e2eSplits {
		if got := len(c.ImagesInSplit(split)); got != 12 {
			t.Errorf("split %s: expected 12 images, got %d", split, got)
		}
	}
}

func TestBuildCorpus_QueryTestCasesExist(t *testing.T) {
	c := BuildCorpus(e2eSplits, 12)
	if c.TotalQueries != 12 {
		t.Fatalf("expected 12 query test cases, got %d", c.TotalQueries)
	}
	for i, tc := range c.TestCases {
		if tc.Query == nil {
			t.Errorf("test case %d: nil query", i)
		}
		if tc.ExpectedName == "" || tc.ExpectedSplit == "" {
			t.Errorf("test case %d: no expected image", i)
		}
	}
}

func TestBuildCorpus_UniqueNames(t *testing.T) {
	c := BuildCorpus(e2eSplits, 12)
	seen := make(map[string]bool)
	for _, img := range c.Images {
		if seen[img.Name] {
			t.Errorf("duplicate image name %s", img.Name)
		}
		seen[img.Name] = true
	}
}

func TestBuildCorpus_Deterministic(t *testing.T) {
	a := BuildCorpus(e2eSplits, 3)
	b := BuildCorpus(e2eSplits, 3)
	for i := range a.Images {
		pa := a.Images[i].Image.(interface{ Opaque() bool })
		if !pa.Opaque() {
			t.Errorf("image %d should be opaque", i)
		}
		if a.Images[i].Name != b.Images[i].Name {
			t.Errorf("image %d name differs: %s vs %s", i, a.Images[i].Name, b.Images[i].Name)
		}
	}
	if string(blockImage(7).Pix) != string(blockImage(7).Pix) {
		t.Error("blockImage is not deterministic")
	}
	if string(blockImage(7).Pix) == string(blockImage(8).Pix) {
		t.Error("different seeds should produce different images")
	}
}
