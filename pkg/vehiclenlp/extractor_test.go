package vehiclenlp

import "testing"

func TestBest(t *testing.T) {
	tests := []struct {
		input     string
		wantMake  string
		wantModel string
		wantYear  int
	}{
		{"Chevrolet Onix LT 1.0 2020", "Chevrolet", "Onix", 2020},
		{"VW Polo Highline 200 TSI 21/22", "Volkswagen", "Polo", 2022},
		{"Fiat Strada Freedom cabine dupla 2023", "Fiat", "Strada", 2023},
		{"Toyota Corolla Cross XRE 2022", "Toyota", "Corolla Cross", 2022},
		{"Honda HR-V EXL 2019 impecável", "Honda", "HR-V", 2019},
		{"Hyundai HB20 Sense 2021", "Hyundai", "HB20", 2021},
		{"Jeep Compass Longitude diesel", "Jeep", "Compass", 0},
		{"2018 Renault Kwid Zen", "Renault", "Kwid", 2018},
		{"Onix Plus Premier 2023", "Chevrolet", "Onix Plus", 2023},
		{"Hilux SRV 4x4 2017/2018", "Toyota", "Hilux", 2018},
		{"Caoa Chery Tiggo 7 2022", "Chery", "Tiggo 7", 2022},
		{"Peugeot 208 Griffe", "Peugeot", "208", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m := Best(tt.input)
			if m == nil {
				t.Fatalf("Best(%q) = nil, want match", tt.input)
			}
			if m.Make != tt.wantMake {
				t.Errorf("Make = %q, want %q", m.Make, tt.wantMake)
			}
			if m.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", m.Model, tt.wantModel)
			}
			if m.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", m.Year, tt.wantYear)
			}
		})
	}
}

func TestBestEmpty(t *testing.T) {
	if m := Best(""); m != nil {
		t.Error("expected nil for empty string")
	}
	if m := Best("carro em ótimo estado"); m != nil {
		t.Errorf("expected nil, got %+v", m)
	}
}

func TestExtractMultiple(t *testing.T) {
	matches := Extract("Troco Fiat Argo 2020 por VW Nivus 2022")
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(matches))
	}
}

func TestCaseInsensitive(t *testing.T) {
	m := Best("FIAT ARGO DRIVE 2021")
	if m == nil || m.Make != "Fiat" || m.Model != "Argo" {
		t.Errorf("case insensitive failed: %+v", m)
	}
}
