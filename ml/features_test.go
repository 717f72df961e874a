package ml

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func decodeInput(t *testing.T, body string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return raw
}

func TestNormalizeFeaturesOrdersVector(t *testing.T) {
	raw := decodeInput(t, `{"pH": 7.1, "TDS": "300", "Turbidity": 2.0, "Temperature": 25, "Dissolved_Oxygen": "6.5"}`)

	reading, err := NormalizeFeatures(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []float64{7.1, 300, 2, 25, 6.5}
	if got := reading.Vector(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestNormalizeFeaturesKeyVariants(t *testing.T) {
	cases := map[string]string{
		"lower":      `{"ph": 7, "totaldissolvedsolids": 300, "turbidity": 2, "temperature": 25, "dissolvedoxygen": 6}`,
		"spaced":     `{" PH ": 7, "Total Dissolved Solids": 300, "TURBIDITY": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
		"dashed":     `{"p-h": 7, "total_dissolved_solids": "300", "Turbidity": "2", "temp": 25, "dissolved-oxygen": "6"}`,
		"aliases":    `{"pH": 7, "tds": 300, "Turbidity": 2, "TEMP": 25, "DO": 6}`,
		"extra keys": `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6, "site": "well-3"}`,
	}
	expected := []float64{7, 300, 2, 25, 6}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			reading, err := NormalizeFeatures(decodeInput(t, body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := reading.Vector(); !reflect.DeepEqual(got, expected) {
				t.Fatalf("expected %v, got %v", expected, got)
			}
		})
	}
}

func TestNormalizeFeaturesErrors(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{
			name:    "non numeric",
			body:    `{"pH": "abc", "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeaturePH,
			message: "Invalid value for ph: abc",
		},
		{
			name:    "missing",
			body:    `{"pH": 7, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeatureTDS,
			message: "Missing required field: totaldissolvedsolids",
		},
		{
			name:    "null counts as missing",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": null, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeatureTurbidity,
			message: "Missing required field: turbidity",
		},
		{
			name:    "boolean",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": true, "Dissolved Oxygen": 6}`,
			field:   FeatureTemperature,
			message: "Invalid value for temperature: true",
		},
		{
			name:    "not finite",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": "NaN"}`,
			field:   FeatureDissolvedOxygen,
			message: "Invalid value for dissolvedoxygen: NaN",
		},
		{
			name:    "first feature wins across errors",
			body:    `{"pH": "abc", "TDS": "xyz", "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeaturePH,
			message: "Invalid value for ph: abc",
		},
		{
			name:    "missing before later invalid",
			body:    `{"TDS": "xyz", "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeaturePH,
			message: "Missing required field: ph",
		},
		{
			name:    "duplicate",
			body:    `{"pH": 7, "PH": 7.2, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			field:   FeaturePH,
			message: "Duplicate field: ph",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Map iteration order varies, so the same input is checked repeatedly.
			for i := 0; i < 50; i++ {
				_, err := NormalizeFeatures(decodeInput(t, tc.body))
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Field != tc.field {
					t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
				}
				if verr.Error() != tc.message {
					t.Fatalf("expected %q, got %q", tc.message, verr.Error())
				}
			}
		})
	}
}

func TestReadingInputsUsesDisplayNames(t *testing.T) {
	reading := Reading{PH: 7.1, TDS: 300, Turbidity: 2, Temperature: 25, DissolvedOxygen: 6.5}
	inputs := reading.Inputs()
	if len(inputs) != 5 {
		t.Fatalf("expected 5 inputs, got %d", len(inputs))
	}
	if inputs["Dissolved Oxygen"] != 6.5 || inputs["TDS"] != 300 {
		t.Fatalf("unexpected inputs: %v", inputs)
	}
}
