package embedding

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"resume-matcher/internal/models"
)

const eps = 1e-9

func l2(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Python, FLASK & C++ dev_ops 2024 é résumé", Options{})
	want := []string{"python", "flask", "dev_ops", "2024", "résumé"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}

	got = Tokenize("developer with flask experience", Options{Stopwords: true})
	want = []string{"developer", "flask", "experience"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize with stopwords = %v, want %v", got, want)
	}
}

func TestBuildVocabularyIsSorted(t *testing.T) {
	s, err := Build("Go developer", []string{"developer go go", "Zig"}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m := s.Model
	want := []string{"developer", "go", "zig"}
	if !reflect.DeepEqual(m.terms, want) {
		t.Errorf("terms = %v, want %v", m.terms, want)
	}
	if m.Dimension() != 3 {
		t.Errorf("Dimension = %d, want 3", m.Dimension())
	}
}

func TestIDFIncludesReference(t *testing.T) {
	s, err := Build("match", []string{"match", "nomatch"}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// n = 3 documents, reference included.
	idfMatch, _ := s.Model.idfOf("match")
	idfNomatch, _ := s.Model.idfOf("nomatch")
	if math.Abs(idfMatch-(math.Log(4.0/3.0)+1)) > eps {
		t.Errorf("idf(match) = %v", idfMatch)
	}
	if math.Abs(idfNomatch-(math.Log(4.0/2.0)+1)) > eps {
		t.Errorf("idf(nomatch) = %v", idfNomatch)
	}
	if _, ok := s.Model.idfOf("absent"); ok {
		t.Error("expected no idf for an absent term")
	}
}

func TestBuildRowsAreAligned(t *testing.T) {
	s, err := Build("python flask", []string{"python", "", "java"}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(s.Rows))
	}
	if len(s.Candidates()) != 3 {
		t.Fatalf("got %d candidate rows, want 3", len(s.Candidates()))
	}
	for i, row := range s.Rows {
		if len(row) != s.Model.Dimension() {
			t.Errorf("row %d has %d columns, want %d", i, len(row), s.Model.Dimension())
		}
	}
	for _, i := range []int{0, 1, 3} {
		if n := l2(s.Rows[i]); math.Abs(n-1) > eps {
			t.Errorf("row %d norm = %v, want 1", i, n)
		}
	}
	if n := l2(s.Rows[2]); n != 0 {
		t.Errorf("empty candidate row norm = %v, want 0", n)
	}
}

func TestBuildWeights(t *testing.T) {
	s, err := Build("go go rust", []string{"go"}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// n=2: idf(go)=ln(3/3)+1=1, idf(rust)=ln(3/2)+1.
	goW, rustW := 2.0, math.Log(1.5)+1
	norm := math.Sqrt(goW*goW + rustW*rustW)
	ref := s.Reference()
	if math.Abs(ref[0]-goW/norm) > eps || math.Abs(ref[1]-rustW/norm) > eps {
		t.Errorf("reference row = %v, want [%v %v]", ref, goW/norm, rustW/norm)
	}
}

func TestSublinearTF(t *testing.T) {
	s, err := Build("go go go rust", []string{"go"}, Options{SublinearTF: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	goW, rustW := 1+math.Log(3), math.Log(1.5)+1
	norm := math.Sqrt(goW*goW + rustW*rustW)
	if got := s.Reference()[0]; math.Abs(got-goW/norm) > eps {
		t.Errorf("sublinear go weight = %v, want %v", got, goW/norm)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	cases := map[string]struct {
		reference  string
		candidates []string
	}{
		"all empty":         {"", []string{""}},
		"single characters": {"a", []string{"b c"}},
		"punctuation only":  {"!!", []string{"--", "  "}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(tc.reference, tc.candidates, Options{})
			if !errors.Is(err, models.ErrEmptyCorpus) {
				t.Errorf("expected ErrEmptyCorpus, got %v", err)
			}
		})
	}

	if _, err := Build("the and", []string{"with"}, Options{Stopwords: true}); !errors.Is(err, models.ErrEmptyCorpus) {
		t.Errorf("stopword-only corpus: expected ErrEmptyCorpus, got %v", err)
	}
}

func TestWeighIgnoresUnknownTerms(t *testing.T) {
	s, err := Build("python developer", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	vector := func(text string) []float64 {
		return s.Model.weigh(termCounts(Tokenize(text, Options{})))
	}
	v := vector("haskell elixir")
	if l2(v) != 0 {
		t.Errorf("expected zero vector, got %v", v)
	}
	v = vector("Python haskell")
	if math.Abs(l2(v)-1) > eps {
		t.Errorf("expected unit vector, got %v", v)
	}
}

func TestSharedTerms(t *testing.T) {
	s, err := Build("python flask developer", []string{"python python flask java", "java"}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := s.SharedTerms(0, 5)
	want := []string{"python", "flask"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SharedTerms(0) = %v, want %v", got, want)
	}
	if got := s.SharedTerms(0, 1); !reflect.DeepEqual(got, []string{"python"}) {
		t.Errorf("SharedTerms(0, 1) = %v", got)
	}
	if got := s.SharedTerms(1, 5); len(got) != 0 {
		t.Errorf("SharedTerms(1) = %v, want none", got)
	}
	if got := s.SharedTerms(9, 5); got != nil {
		t.Errorf("SharedTerms out of range = %v, want nil", got)
	}
}
